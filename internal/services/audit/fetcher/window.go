// Package fetcher plans query windows and pulls completed task records
// from the upstream completion log
package fetcher

import (
	"time"

	"hdfsaudit/internal/platform/logger"
	"hdfsaudit/internal/services/audit/domain"
)

// Window planning defaults
const (
	DefaultOverlapSeconds        = 600
	DefaultMaxWindowHours        = 24.0
	DefaultFallbackLookbackHours = 24.0
)

// WindowOptions controls how the completion window is derived
type WindowOptions struct {
	OverlapSeconds        int
	MaxWindowHours        float64
	FallbackLookbackHours float64
	WatermarkEnabled      bool
	InitNow               bool
}

// Plan is the outcome of window planning
type Plan struct {
	// Window is the half-open completion range to query
	Window domain.Window

	// FromWatermark is true when Start derives from a stored watermark
	FromWatermark bool

	// InitOnly means: initialize the watermark to Window.End and do no work
	InitOnly bool
}

// PlanWindow computes the half-open query window [start, end).
//
// With a watermark, start backs up by the overlap and the window length is
// capped so catch-up after an outage is bounded; subsequent runs make
// progress one window at a time. Without one, the run cold-starts from the
// fallback lookback, or initializes and exits when InitNow is set
func PlanWindow(now time.Time, wm *domain.Watermark, opt WindowOptions) Plan {
	if opt.OverlapSeconds < 0 {
		opt.OverlapSeconds = 0
	}
	if opt.FallbackLookbackHours <= 0 {
		opt.FallbackLookbackHours = DefaultFallbackLookbackHours
	}

	end := now
	fallback := Plan{Window: domain.Window{
		Start: now.Add(-time.Duration(opt.FallbackLookbackHours * float64(time.Hour))),
		End:   end,
	}}

	if !opt.WatermarkEnabled {
		return fallback
	}
	if wm == nil {
		if opt.InitNow {
			return Plan{Window: domain.Window{End: end}, InitOnly: true}
		}
		return fallback
	}

	start := wm.LastEndTime.Add(-time.Duration(opt.OverlapSeconds) * time.Second)
	if opt.MaxWindowHours > 0 {
		maxLen := time.Duration(opt.MaxWindowHours * float64(time.Hour))
		if end.Sub(start) > maxLen {
			end = start.Add(maxLen)
			logger.Named("fetcher").Warn().
				Time("window_end", end).
				Float64("max_window_hours", opt.MaxWindowHours).
				Msg("watermark lag is large, limiting this run window")
		}
	}

	// a watermark ahead of the clock would yield an empty or inverted
	// window; fall back to the lookback rather than silently doing nothing
	if !start.Before(end) {
		logger.Named("fetcher").Warn().
			Time("watermark", wm.LastEndTime).
			Time("now", now).
			Msg("watermark is in the future, falling back to lookback window")
		return fallback
	}

	return Plan{Window: domain.Window{Start: start, End: end}, FromWatermark: true}
}
