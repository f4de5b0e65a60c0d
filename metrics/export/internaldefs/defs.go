package internaldefs

import (
	"github.com/MrEthical07/otpflow"
)

// CounterDef names one exported counter and binds it to its engine
// metric id.
type CounterDef struct {
	ID   otpflow.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram and binds it to its engine
// metric id.
type HistogramDef struct {
	ID   otpflow.MetricID
	Name string
	Help string
}

// CounterDefs is the canonical exported-counter list shared by all
// exporter backends.
var CounterDefs = []CounterDef{
	{ID: otpflow.MetricCodeRequested, Name: "otpflow_code_requested_total", Help: "Accepted one-time code requests."},
	{ID: otpflow.MetricCodeDenied, Name: "otpflow_code_denied_total", Help: "Invite-only denials on code request or resend."},
	{ID: otpflow.MetricVerifySuccess, Name: "otpflow_verify_success_total", Help: "Successful code verifications."},
	{ID: otpflow.MetricVerifyFailure, Name: "otpflow_verify_failure_total", Help: "Rejected code verifications."},
	{ID: otpflow.MetricResendSuccess, Name: "otpflow_resend_success_total", Help: "Accepted code resends."},
	{ID: otpflow.MetricChallengeSuperseded, Name: "otpflow_challenge_superseded_total", Help: "Challenges replaced by a newer request for the same email."},
	{ID: otpflow.MetricChallengeBusy, Name: "otpflow_challenge_busy_total", Help: "Verify or resend attempts rejected because the other was in flight."},
	{ID: otpflow.MetricRateLimitHit, Name: "otpflow_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: otpflow.MetricSessionCreated, Name: "otpflow_session_created_total", Help: "Established sessions."},
	{ID: otpflow.MetricSessionRevoked, Name: "otpflow_session_revoked_total", Help: "Revoked sessions."},
	{ID: otpflow.MetricGuardDeny, Name: "otpflow_guard_deny_total", Help: "Protected-area entries denied by the session guard."},
	{ID: otpflow.MetricProfileLoad, Name: "otpflow_profile_load_total", Help: "Profile loads that applied store data."},
	{ID: otpflow.MetricProfileLoadEmpty, Name: "otpflow_profile_load_empty_total", Help: "Profile loads for identities without a stored row."},
	{ID: otpflow.MetricProfileLoadFailed, Name: "otpflow_profile_load_failed_total", Help: "Degraded profile loads."},
	{ID: otpflow.MetricProfileLoadSuppressed, Name: "otpflow_profile_load_suppressed_total", Help: "Profile loads suppressed as redundant or stale."},
	{ID: otpflow.MetricProfileCommitSuccess, Name: "otpflow_profile_commit_success_total", Help: "Successful profile commits."},
	{ID: otpflow.MetricProfileCommitFailed, Name: "otpflow_profile_commit_failed_total", Help: "Failed profile commits."},
	{ID: otpflow.MetricProfileCommitBusy, Name: "otpflow_profile_commit_busy_total", Help: "Profile commits rejected while another was in flight."},
}

// HistogramDefs is the canonical exported-histogram list.
var HistogramDefs = []HistogramDef{
	{ID: otpflow.MetricVerifyLatency, Name: "otpflow_verify_latency_seconds", Help: "Verify-path latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds metric-name-safe renderings of the bounds
// for backends without labeled buckets.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
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
// both exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
