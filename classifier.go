package perch

import (
	"regexp"
	"strings"
)

// Masked-email shape the provider embeds in its verification wording,
// e.g. "te*****@g***.com". Tokens are alphanumeric or asterisks.
var emailHintPattern = regexp.MustCompile(`[a-zA-Z0-9*]+@[a-zA-Z0-9*]+\.[a-zA-Z0-9*]+`)

// classifyPrompt decides whether an upstream prompt is a verification
// challenge. The provider splits its wording across output lines and the
// prompt itself ("A confirmation code has been sent to ..." is printed, then
// a bare input prompt follows), so matching spans the concatenation of the
// most recent non-empty emitted line and the prompt, case-insensitively.
// First matching rule wins; no match means the prompt is an ordinary
// question.
func classifyPrompt(lastLine, prompt string) (*Challenge, bool) {
	combined := strings.ToLower(lastLine + " " + prompt)

	message := lastLine
	if message == "" {
		message = prompt
	}

	switch {
	case strings.Contains(combined, "confirmation code") && strings.Contains(combined, "sent"):
		return &Challenge{
			Kind:    ChallengeConfirmationCode,
			Message: message,
			Hint:    extractEmailHint(combined),
		}, true
	case (strings.Contains(combined, "email address") && strings.Contains(combined, "verify")) ||
		strings.Contains(combined, "verify your identity"):
		return &Challenge{
			Kind:    ChallengeEmailVerification,
			Message: message,
			Hint:    extractEmailHint(combined),
		}, true
	}

	return nil, false
}

func extractEmailHint(s string) string {
	return emailHintPattern.FindString(s)
}
