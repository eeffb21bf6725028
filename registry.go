package perch

import (
	"sync"
	"time"

	"github.com/perchlabs/perch/credcache"
)

// loginSession is one in-flight login attempt. identity, secret, client and
// cookie are fixed at creation; the challenge flags and the one-shot answer
// slot mutate under the registry mutex.
type loginSession struct {
	token    string
	identity string
	secret   string
	client   LoginClient
	cookie   credcache.BlobRef

	pending   bool
	kind      ChallengeKind
	answer    string
	hasAnswer bool

	createdAt time.Time
	touchedAt time.Time
}

// sessionRegistry maps opaque session tokens to in-flight login sessions.
// It is process-local by design: a session holds a live LoginClient that
// cannot be serialized, so there is nothing to share across processes.
//
// A single mutex guards all mutations; expected concurrency is low (one
// upstream attempt runs at a time anyway). Entries are reclaimed only by
// Remove, plus an optional lazy expiry checked on access when ttl > 0;
// there is no background sweeper.
type sessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*loginSession
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*loginSession),
	}
}

// Create inserts a new session with no pending challenge. The token must not
// already be present: tokens are never reused, even after removal, and the
// caller is expected to mint a fresh one per attempt.
func (r *sessionRegistry) Create(token, identity, secret string, client LoginClient, cookie credcache.BlobRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[token]; exists {
		return ErrSessionExists
	}

	now := r.now()
	r.sessions[token] = &loginSession{
		token:     token,
		identity:  identity,
		secret:    secret,
		client:    client,
		cookie:    cookie,
		createdAt: now,
		touchedAt: now,
	}
	return nil
}

// Get returns the session for token, refreshing its access timestamp.
// An entry past its TTL is deleted on the spot and reported as expired.
func (r *sessionRegistry) Get(token string) (*loginSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(token)
}

func (r *sessionRegistry) getLocked(token string) (*loginSession, error) {
	sess, ok := r.sessions[token]
	if !ok {
		return nil, ErrInvalidSession
	}
	if r.ttl > 0 && r.now().Sub(sess.touchedAt) > r.ttl {
		delete(r.sessions, token)
		return nil, ErrSessionExpired
	}
	sess.touchedAt = r.now()
	return sess, nil
}

// MarkChallenge records that the session suspended on a challenge of the
// given kind. Idempotent; marking an unknown token is a no-op because the
// attempt that produced the challenge already holds the session.
func (r *sessionRegistry) MarkChallenge(token string, kind ChallengeKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[token]; ok {
		sess.pending = true
		sess.kind = kind
		sess.touchedAt = r.now()
	}
}

// SetAnswer stores the one-shot verification answer and clears the pending
// flag. The flag is informational only; the answer slot is authoritative.
// Concurrent SetAnswer calls on one token overwrite whole values under the
// mutex; the next prompt observes exactly one of them.
func (r *sessionRegistry) SetAnswer(token, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.getLocked(token)
	if err != nil {
		return err
	}
	sess.answer = answer
	sess.hasAnswer = true
	sess.pending = false
	return nil
}

// ConsumeAnswer takes the queued answer, clearing the slot before returning
// so a second prompt in the same attempt can never see it again
// (at-most-once delivery).
func (r *sessionRegistry) ConsumeAnswer(token string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[token]
	if !ok || !sess.hasAnswer {
		return "", false
	}
	answer := sess.answer
	sess.answer = ""
	sess.hasAnswer = false
	return answer, true
}

// Info returns a read-only view of the session behind token.
func (r *sessionRegistry) Info(token string) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.getLocked(token)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{
		Token:            sess.token,
		Identity:         sess.identity,
		ChallengePending: sess.pending,
		ChallengeKind:    sess.kind,
	}, nil
}

// Remove deletes the session. This is the only reclamation path besides lazy
// expiry; callers own cleanup after terminal outcomes.
func (r *sessionRegistry) Remove(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[token]; !ok {
		return false
	}
	delete(r.sessions, token)
	return true
}

// Len reports the number of live sessions (expired-but-unvisited entries
// included; they are reclaimed on next access).
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
