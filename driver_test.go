package perch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// scriptClient drives the login hooks from a per-call script, standing in for
// the opaque upstream client.
type scriptClient struct {
	calls int
	run   func(call int, creds Credentials, hooks Hooks) error
}

func (c *scriptClient) Authenticate(_ context.Context, creds Credentials, hooks Hooks) error {
	c.calls++
	return c.run(c.calls, creds, hooks)
}

// challengeOnFirstCall scripts the canonical flow: the first call suspends on
// a confirmation code, a later call receives the queued answer through the
// same prompt and succeeds.
func challengeOnFirstCall(got *string) *scriptClient {
	return &scriptClient{
		run: func(_ int, _ Credentials, hooks Hooks) error {
			hooks.Emit("A confirmation code has been sent to te***@g***.com.")
			answer, err := hooks.Prompt("Enter the confirmation code:")
			if err != nil {
				return err
			}
			if got != nil {
				*got = answer
			}
			return nil
		},
	}
}

func newTestDriver(t *testing.T, client LoginClient, mutate func(*Config)) *Driver {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Cookie.Dir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	driver, err := New().
		WithConfig(cfg).
		WithClientFactory(ClientFactoryFunc(func() LoginClient { return client })).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(driver.Close)
	return driver
}

func TestBeginSuccessWithoutPrompts(t *testing.T) {
	client := &scriptClient{
		run: func(_ int, _ Credentials, hooks Hooks) error {
			hooks.Emit("restored session from cookies")
			return nil
		},
	}
	driver := newTestDriver(t, client, nil)

	result, err := driver.Begin(context.Background(), "tok-1", "alice", "secret")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if result.Suspended() {
		t.Fatal("expected success, got suspension")
	}
	if result.State != StateSuccess {
		t.Fatalf("expected StateSuccess, got %v", result.State)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", client.calls)
	}
}

func TestBeginRequiresToken(t *testing.T) {
	driver := newTestDriver(t, challengeOnFirstCall(nil), nil)

	if _, err := driver.Begin(context.Background(), "", "alice", "secret"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for empty token, got %v", err)
	}
}

func TestBeginDuplicateTokenRejected(t *testing.T) {
	driver := newTestDriver(t, challengeOnFirstCall(nil), nil)

	if _, err := driver.Begin(context.Background(), "tok-1", "alice", "secret"); err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	if _, err := driver.Begin(context.Background(), "tok-1", "alice", "secret"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestBeginSuspendsOnChallenge(t *testing.T) {
	driver := newTestDriver(t, challengeOnFirstCall(nil), nil)

	result, err := driver.Begin(context.Background(), "tok-1", "alice", "secret")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !result.Suspended() {
		t.Fatal("expected suspension on the confirmation-code prompt")
	}
	if result.Challenge == nil || result.Challenge.Kind != ChallengeConfirmationCode {
		t.Fatalf("expected confirmation_code challenge, got %+v", result.Challenge)
	}
	if result.Challenge.Hint != "te***@g***.com" {
		t.Fatalf("expected masked email hint, got %q", result.Challenge.Hint)
	}

	info, err := driver.Session("tok-1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if !info.ChallengePending || info.ChallengeKind != ChallengeConfirmationCode {
		t.Fatalf("expected pending challenge recorded, got %+v", info)
	}
}

func TestResumeCompletesSuspendedLogin(t *testing.T) {
	var answer string
	client := challengeOnFirstCall(&answer)
	driver := newTestDriver(t, client, nil)

	result, err := driver.Begin(context.Background(), "tok-1", "alice", "secret")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !result.Suspended() {
		t.Fatal("expected suspension before resume")
	}

	result, err = driver.Resume(context.Background(), "tok-1", "424242")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if result.State != StateSuccess {
		t.Fatalf("expected StateSuccess after resume, got %v", result.State)
	}
	if client.calls != 2 {
		t.Fatalf("expected the whole login re-executed once, got %d calls", client.calls)
	}
	if answer != "424242" {
		t.Fatalf("expected queued answer delivered to the prompt, got %q", answer)
	}

	if !driver.RemoveSession("tok-1") {
		t.Fatal("expected session removable after success")
	}
}

func TestResumeUnknownToken(t *testing.T) {
	driver := newTestDriver(t, challengeOnFirstCall(nil), nil)

	if _, err := driver.Resume(context.Background(), "nope", "424242"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestResumeExpiredSession(t *testing.T) {
	driver := newTestDriver(t, challengeOnFirstCall(nil), func(cfg *Config) {
		cfg.Session.TTL = 5 * time.Millisecond
	})

	if _, err := driver.Begin(context.Background(), "tok-1", "alice", "secret"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	if _, err := driver.Resume(context.Background(), "tok-1", "424242"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestUnexpectedPromptFailsAttempt(t *testing.T) {
	client := &scriptClient{
		run: func(_ int, _ Credentials, hooks Hooks) error {
			_, err := hooks.Prompt("What is your favorite color?")
			return err
		},
	}
	driver := newTestDriver(t, client, nil)

	_, err := driver.Begin(context.Background(), "tok-1", "alice", "secret")
	if !errors.Is(err, ErrUnexpectedPrompt) {
		t.Fatalf("expected ErrUnexpectedPrompt, got %v", err)
	}
	if !strings.Contains(err.Error(), "favorite color") {
		t.Fatalf("expected prompt text in error, got %v", err)
	}

	// The session stays for caller-driven cleanup.
	if _, err := driver.Session("tok-1"); err != nil {
		t.Fatalf("expected session retained after failure, got %v", err)
	}
}

func TestUpstreamFailureRetainsSession(t *testing.T) {
	client := &scriptClient{
		run: func(_ int, _ Credentials, _ Hooks) error {
			return errors.New("bad credentials")
		},
	}
	driver := newTestDriver(t, client, nil)

	_, err := driver.Begin(context.Background(), "tok-1", "alice", "secret")
	if !errors.Is(err, ErrUpstreamLogin) {
		t.Fatalf("expected ErrUpstreamLogin, got %v", err)
	}
	if _, err := driver.Session("tok-1"); err != nil {
		t.Fatalf("expected session retained after failure, got %v", err)
	}
}

func TestAnswerDeliveredAtMostOnce(t *testing.T) {
	client := &scriptClient{
		run: func(call int, _ Credentials, hooks Hooks) error {
			hooks.Emit("A confirmation code has been sent.")
			if _, err := hooks.Prompt("Enter the confirmation code:"); err != nil {
				return err
			}
			// A second, unrelated prompt in the same attempt must not see the
			// consumed answer again.
			hooks.Emit("code accepted")
			_, err := hooks.Prompt("Type it once more:")
			return err
		},
	}
	driver := newTestDriver(t, client, nil)

	result, err := driver.Begin(context.Background(), "tok-1", "alice", "secret")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !result.Suspended() {
		t.Fatal("expected suspension on first call")
	}

	if _, err := driver.Resume(context.Background(), "tok-1", "424242"); !errors.Is(err, ErrUnexpectedPrompt) {
		t.Fatalf("expected ErrUnexpectedPrompt on the second prompt, got %v", err)
	}
}

func TestCookiePathHandedToClient(t *testing.T) {
	dir := t.TempDir()
	seeded := filepath.Join(dir, "alice.json")
	if err := os.WriteFile(seeded, []byte(`{"session":"cached"}`), 0o600); err != nil {
		t.Fatalf("seed cookie file: %v", err)
	}

	var sawPath string
	client := &scriptClient{
		run: func(_ int, creds Credentials, _ Hooks) error {
			sawPath = creds.CookiePath
			return nil
		},
	}
	driver := newTestDriver(t, client, func(cfg *Config) {
		cfg.Cookie.Dir = dir
	})

	if _, err := driver.Begin(context.Background(), "tok-1", "alice", "secret"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if sawPath != seeded {
		t.Fatalf("expected client handed %q, got %q", seeded, sawPath)
	}
}

func TestMetricsCountLoginOutcomes(t *testing.T) {
	var answer string
	driver := newTestDriver(t, challengeOnFirstCall(&answer), func(cfg *Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	})

	if _, err := driver.Begin(context.Background(), "tok-1", "alice", "secret"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := driver.Resume(context.Background(), "tok-1", "424242"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	driver.RemoveSession("tok-1")

	snap := driver.MetricsSnapshot()
	for id, want := range map[MetricID]uint64{
		MetricSessionCreated: 1,
		MetricLoginSuspended: 1,
		MetricResumeAttempt:  1,
		MetricLoginSuccess:   1,
		MetricSessionRemoved: 1,
		MetricLoginFailure:   0,
	} {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("counter %d = %d, want %d", id, got, want)
		}
	}

	buckets := snap.Histograms[MetricLoginLatency]
	var samples uint64
	for _, b := range buckets {
		samples += b
	}
	if samples != 2 {
		t.Fatalf("expected 2 latency samples (one per authenticate call), got %d", samples)
	}
}

func TestAuditTrailForSuccessfulLogin(t *testing.T) {
	sink := NewChannelSink(16)
	client := &scriptClient{
		run: func(_ int, _ Credentials, _ Hooks) error { return nil },
	}

	cfg := DefaultConfig()
	cfg.Cookie.Dir = t.TempDir()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	driver, err := New().
		WithConfig(cfg).
		WithClientFactory(ClientFactoryFunc(func() LoginClient { return client })).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := driver.Begin(ctx, "tok-1", "alice", "secret"); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	driver.Close() // flushes the dispatcher

	var types []string
	for {
		select {
		case event := <-sink.Events():
			types = append(types, event.EventType)
			if event.IP != "203.0.113.7" {
				t.Fatalf("expected client IP on event %s, got %q", event.EventType, event.IP)
			}
		default:
			if len(types) != 2 || types[0] != "auth.begin" || types[1] != "auth.success" {
				t.Fatalf("expected [auth.begin auth.success], got %v", types)
			}
			return
		}
	}
}

func TestBuilderRequiresFactory(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected Build to fail without a client factory")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithClientFactory(ClientFactoryFunc(func() LoginClient { return nil }))
	b.config.Cookie.Dir = t.TempDir()

	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
