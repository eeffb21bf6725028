package internal

import (
	"strings"
	"unicode"
)

// AnonymousIdentity is the sentinel key used when normalization strips an
// identity down to nothing.
const AnonymousIdentity = "anonymous"

// NormalizeIdentity maps an account handle onto the form used for every
// cache and storage key: letters, digits, '_' and '-' survive, everything
// else is dropped, the result is lower-cased, and an empty result becomes
// the anonymous sentinel. Deterministic and idempotent:
// NormalizeIdentity(NormalizeIdentity(x)) == NormalizeIdentity(x).
func NormalizeIdentity(identity string) string {
	var b strings.Builder
	b.Grow(len(identity))

	for _, r := range identity {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}

	safe := strings.ToLower(b.String())
	if safe == "" {
		return AnonymousIdentity
	}
	return safe
}
