// Package internaldefs holds the metric name table shared by every exporter,
// so the text and OTel renderings can never drift apart.
package internaldefs

import (
	perch "github.com/perchlabs/perch"
)

// CounterDef binds a counter ID to its exported name and help text.
type CounterDef struct {
	ID   perch.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram ID to its exported name and help text.
type HistogramDef struct {
	ID   perch.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: perch.MetricLoginSuccess, Name: "perch_login_success_total", Help: "Login attempts that authenticated upstream."},
	{ID: perch.MetricLoginSuspended, Name: "perch_login_suspended_total", Help: "Login attempts suspended on a verification challenge."},
	{ID: perch.MetricLoginFailure, Name: "perch_login_failure_total", Help: "Login attempts that failed upstream."},
	{ID: perch.MetricUnexpectedPrompt, Name: "perch_unexpected_prompt_total", Help: "Login attempts aborted on an unclassifiable prompt."},
	{ID: perch.MetricResumeAttempt, Name: "perch_resume_attempt_total", Help: "Resume invocations."},
	{ID: perch.MetricSessionCreated, Name: "perch_session_created_total", Help: "Sessions inserted into the registry."},
	{ID: perch.MetricSessionRemoved, Name: "perch_session_removed_total", Help: "Sessions removed explicitly."},
	{ID: perch.MetricSessionExpired, Name: "perch_session_expired_total", Help: "Sessions reclaimed by lazy expiry."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: perch.MetricLoginLatency, Name: "perch_login_latency_seconds", Help: "Upstream authenticate-call latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// driver's bucketing of real-network login latencies.
var HistogramBounds = []string{
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"10",
	"30",
	"+Inf",
}

// HistogramBoundSuffix renders the same bounds as metric-name-safe suffixes
// for backends without labeled buckets.
var HistogramBoundSuffix = []string{
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"10",
	"30",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
