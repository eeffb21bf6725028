package perch

import (
	"context"
)

// ChallengeKind identifies the class of out-of-band verification the upstream
// service demanded mid-login.
type ChallengeKind string

const (
	// ChallengeConfirmationCode means the provider mailed a one-time code that
	// must be submitted to continue.
	ChallengeConfirmationCode ChallengeKind = "confirmation_code"
	// ChallengeEmailVerification means the provider wants the account's email
	// address (or an identity confirmation) before continuing.
	ChallengeEmailVerification ChallengeKind = "email_verification"
)

// Challenge describes a verification step intercepted from the upstream login
// client. It is a transient value: it travels to the caller in the attempt
// result and is never persisted beyond that round-trip.
type Challenge struct {
	Kind ChallengeKind
	// Message is the provider's own wording, verbatim, so a UI can show it.
	Message string
	// Hint is a masked email shape like "te***@g***.com" when the provider
	// leaked one, otherwise empty.
	Hint string
}

// AttemptState is the terminal state of one Begin/Resume invocation.
type AttemptState uint8

const (
	// StateSuccess means the upstream client authenticated. The caller still
	// owns cookie persistence and session removal.
	StateSuccess AttemptState = iota
	// StateSuspended means a verification challenge was intercepted; the
	// session is pending and the attempt can be resumed with an answer.
	StateSuspended
)

// AttemptResult is the non-error outcome of Begin or Resume. Failures travel
// on the error return; callers therefore handle exactly three branches:
// error, suspended with Challenge set, or success.
type AttemptResult struct {
	State     AttemptState
	Challenge *Challenge
}

// Suspended reports whether the attempt stopped on a verification challenge.
func (r *AttemptResult) Suspended() bool {
	return r != nil && r.State == StateSuspended
}

// Credentials carries what the upstream client needs for one authenticate
// call. CookiePath points at the local credential blob; the file may not
// exist, in which case the client performs a fresh login.
type Credentials struct {
	Identity   string
	Secret     string
	CookiePath string
}

// Hooks are the explicit interception points handed to the upstream client
// for the duration of a single authenticate call. No global state is swapped;
// the hooks live on the call's stack frame and die with it.
type Hooks struct {
	// Emit receives informational output lines the client would otherwise
	// print for a human. May be called zero or more times.
	Emit func(line string)
	// Prompt is invoked whenever the client needs an answer to continue.
	// Returning an error aborts the authenticate call.
	Prompt func(prompt string) (string, error)
}

// LoginClient is the narrow capability interface isolating the opaque
// third-party login implementation.
//
// Contract: the provider is assumed to treat a re-submitted authenticate call
// after a partial attempt as idempotent (an already-issued verification code
// stays valid). The driver cannot verify this; Resume re-executes the whole
// call and relies on it.
type LoginClient interface {
	Authenticate(ctx context.Context, creds Credentials, hooks Hooks) error
}

// ClientFactory creates one fresh LoginClient per login session. The same
// client instance is reused when the session is resumed.
type ClientFactory interface {
	NewClient() LoginClient
}

// ClientFactoryFunc adapts a function to the ClientFactory interface.
type ClientFactoryFunc func() LoginClient

// NewClient implements ClientFactory.
func (f ClientFactoryFunc) NewClient() LoginClient { return f() }

// SessionInfo is a read-only view of an in-flight login session, exposed for
// service layers that need to inspect state without reaching into the
// registry.
type SessionInfo struct {
	Token            string
	Identity         string
	ChallengePending bool
	ChallengeKind    ChallengeKind
}
