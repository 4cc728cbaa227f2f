package module

import (
	"time"

	"hdfsaudit/internal/platform/config"
)

// Options holds env-tunable knobs for the audit module
type Options struct {
	// CountTimeout bounds one counter invocation
	CountTimeout time.Duration

	// MaxCaptureBytes caps each captured subprocess stream
	MaxCaptureBytes int
}

// FromConfig reads the audit options from config with AUDIT_ prefix
func FromConfig(cfg config.Conf) Options {
	a := cfg.Prefix("AUDIT_")
	return Options{
		CountTimeout:    a.MayDuration("COUNT_TIMEOUT", time.Hour),
		MaxCaptureBytes: a.MayInt("COUNT_CAPTURE_BYTES", 8<<20),
	}
}
