package otpflow

import "time"

// SetupReport summarizes the engine's effective configuration for
// operator inspection and startup logging. It contains no secrets.
type SetupReport struct {
	SigningAlgorithm  string
	TokenTTL          time.Duration
	SessionLifetime   time.Duration
	SlidingSessions   bool
	CodeDigits        int
	ChallengeTTL      time.Duration
	ResendAckWindow   time.Duration
	EmailThrottle     bool
	IPThrottle        bool
	MaxPerWindow      int
	ThrottleWindow    time.Duration
	AuditActive       bool
	MetricsActive     bool
	LatencyHistograms bool
}

// Report returns the engine's setup report.
func (e *Engine) Report() SetupReport {
	if e == nil {
		return SetupReport{}
	}

	return SetupReport{
		SigningAlgorithm:  e.config.Token.SigningMethod,
		TokenTTL:          e.config.Token.TTL,
		SessionLifetime:   e.config.Session.Lifetime,
		SlidingSessions:   e.config.Session.SlidingExpiration,
		CodeDigits:        e.config.Challenge.CodeDigits,
		ChallengeTTL:      e.config.Challenge.ChallengeTTL,
		ResendAckWindow:   e.config.Challenge.ResendAckWindow,
		EmailThrottle:     e.config.Challenge.EnableEmailThrottle,
		IPThrottle:        e.config.Challenge.EnableIPThrottle,
		MaxPerWindow:      e.config.Challenge.MaxPerWindow,
		ThrottleWindow:    e.config.Challenge.ThrottleWindow,
		AuditActive:       e.audit != nil,
		MetricsActive:     e.metrics.Enabled(),
		LatencyHistograms: e.metrics.LatencyEnabled(),
	}
}
