package perch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/perchlabs/perch/credcache"
)

// Driver orchestrates login attempts against the upstream client: it
// intercepts verification prompts, records suspensions in the session
// registry, and reports a three-way outcome (success / suspended / failed)
// per entry point.
//
// Driver instances are built through [Builder.Build] and safe for concurrent
// use afterwards.
type Driver struct {
	config   Config
	sessions *sessionRegistry
	cookies  *credcache.Store
	factory  ClientFactory
	audit    *auditDispatcher
	metrics  *Metrics

	// loginMu serializes every upstream authenticate call in this process.
	// This is a deliberate serialization point, not an accident: the
	// provider's verification side effects (an emailed code tied to "the
	// current" login) are not isolated between concurrent attempts, so at
	// most one attempt may be in flight at a time.
	loginMu sync.Mutex
}

// Begin starts a login attempt for identity under the caller-supplied opaque
// token. The token must be fresh; the service layer owns its generation.
//
// Outcomes: a Suspended result carries the intercepted [Challenge] and the
// session stays pending for [Driver.Resume]; a Success result means the
// upstream authenticated, and the caller then persists the cookie blob and
// removes the session; an error is terminal for this invocation but the
// session is retained for caller-driven cleanup.
func (d *Driver) Begin(ctx context.Context, token, identity, secret string) (*AttemptResult, error) {
	if d == nil || d.factory == nil {
		return nil, ErrDriverNotReady
	}
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidSession)
	}

	cookie := d.cookies.Load(ctx, identity)
	client := d.factory.NewClient()

	if err := d.sessions.Create(token, identity, secret, client, cookie); err != nil {
		d.emitAudit(ctx, auditEventAuthBegin, false, identity, token, err, nil)
		return nil, err
	}
	d.metricInc(MetricSessionCreated)
	d.emitAudit(ctx, auditEventAuthBegin, true, identity, token, nil, func() map[string]string {
		return map[string]string{
			"cookie_present": fmt.Sprintf("%t", cookie.Exists()),
		}
	})

	return d.runLogin(ctx, token)
}

// Resume continues a suspended attempt: it queues the one-shot answer and
// re-executes the entire authenticate call. The upstream client exposes no
// checkpoint to continue from, so re-execution is the only resumption
// mechanism; see the [LoginClient] idempotency contract.
func (d *Driver) Resume(ctx context.Context, token, answer string) (*AttemptResult, error) {
	if d == nil || d.factory == nil {
		return nil, ErrDriverNotReady
	}

	sess, err := d.sessions.Get(token)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			d.metricInc(MetricSessionExpired)
			d.emitAudit(ctx, auditEventSessionExpired, false, "", token, err, nil)
		}
		return nil, err
	}

	// Storing the answer also clears any stale pending state, so a resumed
	// attempt starts from a clean slate.
	if err := d.sessions.SetAnswer(token, answer); err != nil {
		return nil, err
	}

	d.metricInc(MetricResumeAttempt)
	d.emitAudit(ctx, auditEventAuthResume, true, sess.identity, token, nil, nil)

	return d.runLogin(ctx, token)
}

// Session returns a read-only view of an in-flight session.
func (d *Driver) Session(token string) (SessionInfo, error) {
	if d == nil || d.sessions == nil {
		return SessionInfo{}, ErrDriverNotReady
	}

	info, err := d.sessions.Info(token)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			d.metricInc(MetricSessionExpired)
		}
		return SessionInfo{}, err
	}
	return info, nil
}

// RemoveSession deletes the session for token. It is the caller's cleanup
// hook after terminal success or failure and reports whether a session was
// actually removed.
func (d *Driver) RemoveSession(token string) bool {
	if d == nil || d.sessions == nil {
		return false
	}
	removed := d.sessions.Remove(token)
	if removed {
		d.metricInc(MetricSessionRemoved)
		d.emitAudit(context.Background(), auditEventSessionRemoved, true, "", token, nil, nil)
	}
	return removed
}

// Cookies exposes the credential cache so the service layer can persist and
// evict blobs; the driver itself never writes through it.
func (d *Driver) Cookies() *credcache.Store {
	if d == nil {
		return nil
	}
	return d.cookies
}

// Close flushes and stops the audit dispatcher. In-flight attempts are not
// interrupted.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	if d.audit != nil {
		d.audit.Close()
	}
}

// MetricsSnapshot copies the driver's counters for exporters.
func (d *Driver) MetricsSnapshot() MetricsSnapshot {
	if d == nil || d.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return d.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (d *Driver) AuditDropped() uint64 {
	if d == nil || d.audit == nil {
		return 0
	}
	return d.audit.Dropped()
}

// runLogin executes one full authenticate call for the session behind token,
// intercepting prompts through stack-scoped hooks. Every exit path leaves the
// upstream client free of interception state (the hooks die with this call
// frame), so one attempt's failure cannot corrupt a later attempt's prompt
// handling.
func (d *Driver) runLogin(ctx context.Context, token string) (*AttemptResult, error) {
	sess, err := d.sessions.Get(token)
	if err != nil {
		return nil, err
	}

	d.loginMu.Lock()
	defer d.loginMu.Unlock()

	buf := newPromptBuffer(d.config.Login.MaxBufferLines)
	var suspended *Challenge

	hooks := Hooks{
		Emit: buf.append,
		Prompt: func(prompt string) (string, error) {
			// Answer slot first: a resumed attempt replays the same challenge
			// prompt, which must receive the queued answer instead of being
			// classified into a second suspension. The slot is cleared before
			// this prompt returns: at-most-once.
			if answer, ok := d.sessions.ConsumeAnswer(token); ok {
				return answer, nil
			}
			if ch, ok := classifyPrompt(buf.lastNonEmpty(), prompt); ok {
				suspended = ch
				return "", errChallengeIntercepted
			}
			return "", fmt.Errorf("%w: %q", ErrUnexpectedPrompt, prompt)
		},
	}

	started := time.Now()
	err = sess.client.Authenticate(ctx, Credentials{
		Identity:   sess.identity,
		Secret:     sess.secret,
		CookiePath: sess.cookie.Path(),
	}, hooks)
	d.metricObserve(MetricLoginLatency, time.Since(started))

	if suspended != nil {
		// A controlled, expected outcome, not an error. The challenge kind
		// is recorded so the service layer can re-inspect the session.
		d.sessions.MarkChallenge(token, suspended.Kind)
		d.metricInc(MetricLoginSuspended)
		d.emitAudit(ctx, auditEventAuthSuspended, true, sess.identity, token, nil, func() map[string]string {
			meta := map[string]string{"kind": string(suspended.Kind)}
			if suspended.Hint != "" {
				meta["hint"] = suspended.Hint
			}
			return meta
		})
		return &AttemptResult{State: StateSuspended, Challenge: suspended}, nil
	}

	if err != nil {
		if errors.Is(err, ErrUnexpectedPrompt) {
			d.metricInc(MetricUnexpectedPrompt)
			d.metricInc(MetricLoginFailure)
			d.emitAudit(ctx, auditEventAuthFailure, false, sess.identity, token, err, func() map[string]string {
				return map[string]string{"reason": "unexpected_prompt"}
			})
			return nil, err
		}
		wrapped := fmt.Errorf("%w: %v", ErrUpstreamLogin, err)
		d.metricInc(MetricLoginFailure)
		d.emitAudit(ctx, auditEventAuthFailure, false, sess.identity, token, wrapped, func() map[string]string {
			return map[string]string{"reason": "upstream"}
		})
		return nil, wrapped
	}

	d.metricInc(MetricLoginSuccess)
	d.emitAudit(ctx, auditEventAuthSuccess, true, sess.identity, token, nil, nil)
	return &AttemptResult{State: StateSuccess}, nil
}

func (d *Driver) metricInc(id MetricID) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.Inc(id)
}

func (d *Driver) metricObserve(id MetricID, dur time.Duration) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.Observe(id, dur)
}

func (d *Driver) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identity string,
	token string,
	cause error,
	metaFn func() map[string]string,
) {
	if d == nil || d.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Identity:  identity,
		Token:     token,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metaFn != nil {
		event.Metadata = metaFn()
	}

	d.audit.Emit(ctx, event)
}

// promptBuffer is the rolling window of upstream output lines retained as
// classification context. The "sent" acknowledgment and the "confirmation
// code" prompt often arrive on separate lines, so the classifier reads the
// last non-empty line alongside the prompt.
type promptBuffer struct {
	max   int
	lines []string
}

func newPromptBuffer(max int) *promptBuffer {
	if max <= 0 {
		max = 1
	}
	return &promptBuffer{max: max}
}

func (b *promptBuffer) append(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *promptBuffer) lastNonEmpty() string {
	for i := len(b.lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(b.lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
