// Package perch turns an interactive, human-in-the-loop login against an
// upstream scraping client into a resumable protocol. A login attempt runs
// until the upstream client asks for out-of-band verification (an emailed
// confirmation code, an identity check); at that point the attempt suspends
// with a structured [Challenge], and a later [Driver.Resume] replays the
// attempt with the caller-supplied answer.
//
// The package is designed for concurrent server workloads: Driver methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Attempts themselves are serialized process-wide because
// the upstream provider's verification side effects are not isolated per
// client.
//
// # Architecture boundaries
//
// perch is the public surface. It exposes [Driver], [Builder], [Config], the
// challenge and result value types, and the audit/metrics plumbing. Cookie
// persistence lives in the credcache subpackage; the HTTP service layer in
// httpapi; private helpers under internal/.
//
// # What this package must NOT do
//
//   - Persist credentials itself: on success the Driver only signals, and the
//     caller decides when to push the cookie blob through credcache and when
//     to remove the session.
//   - Retry a failed attempt implicitly, or impose its own network timeout on
//     the upstream call.
package perch
