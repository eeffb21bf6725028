package perch

import (
	"errors"
)

var (
	// ErrDriverNotReady is returned when a Driver method is called before the
	// builder wired its required dependencies.
	ErrDriverNotReady = errors.New("driver not ready")

	// ErrSessionExists is returned by Begin when the supplied token is already
	// bound to an in-flight session. Tokens are single-use; generate a fresh
	// one per attempt.
	ErrSessionExists = errors.New("session token already in use")

	// ErrInvalidSession is returned when an operation references an unknown or
	// already-removed session token.
	ErrInvalidSession = errors.New("unknown session token")

	// ErrSessionExpired is returned when lazy expiry reclaimed the session
	// before the operation ran. Only produced when Session.TTL is set.
	ErrSessionExpired = errors.New("session expired")

	// ErrUnexpectedPrompt is returned when the upstream client asked a
	// question that is neither a recognized verification challenge nor
	// answerable from the session's queued answer. Fatal to the attempt; the
	// session is retained for caller-driven cleanup.
	ErrUnexpectedPrompt = errors.New("unexpected login prompt")

	// ErrUpstreamLogin wraps any other upstream client failure: bad
	// credentials, transport errors, protocol drift. The cause is preserved in
	// the error message; there is no implicit retry.
	ErrUpstreamLogin = errors.New("upstream login failed")
)

// errChallengeIntercepted aborts the upstream authenticate call from inside
// the prompt hook once a challenge is recognized. It never escapes runLogin.
var errChallengeIntercepted = errors.New("verification challenge intercepted")
