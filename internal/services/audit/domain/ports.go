package domain

import (
	"context"
	"time"
)

// RunnerPort is the public port exposed by the module (what the binary calls)
type RunnerPort interface {
	Run(ctx context.Context, req RunRequest) (Summary, error)
}

// RunRequest carries the per-invocation inputs that select mode and period
type RunRequest struct {
	// Date overrides the resolved business date (YYYYMMDD); empty means yesterday
	Date string

	// Tasks switches to explicit-list mode when non-empty
	Tasks []string

	// SkipUpstream turns every catalog entry into a completion record
	SkipUpstream bool
}

// RunMode is the fetch strategy selected from the request
type RunMode string

// Fetch strategies in priority order
const (
	ModeExplicit RunMode = "explicit-list"
	ModeSkip     RunMode = "skip-upstream"
	ModeUpstream RunMode = "upstream"
)

// Mode resolves the fetch strategy; explicit task lists win over skip-upstream
func (r RunRequest) Mode() RunMode {
	switch {
	case len(r.Tasks) > 0:
		return ModeExplicit
	case r.SkipUpstream:
		return ModeSkip
	default:
		return ModeUpstream
	}
}

// TaskFetcher pulls completed task records for a half-open window
type TaskFetcher interface {
	FetchCompleted(ctx context.Context, win Window, dataDate string) ([]CompletionRecord, error)
}

// Counter measures one audit job and returns a normalized report
type Counter interface {
	Count(ctx context.Context, job AuditJob) CountReport
}

// ResultSink appends one ledger row; failures attach to the job, never abort the run
type ResultSink interface {
	Append(ctx context.Context, row LedgerRow) error
}

// ResultRepo is the ledger storage surface. Writes are append-only
type ResultRepo interface {
	// Insert appends one result row
	Insert(ctx context.Context, row LedgerRow) error

	// LatestForTable returns the most recent entries for a logical table
	LatestForTable(ctx context.Context, tableName string, limit int) ([]LedgerEntry, error)

	// ListByPartner returns entries for a partner on a business date
	ListByPartner(ctx context.Context, partnerID, dataDate string) ([]LedgerEntry, error)

	// ListByInterface returns entries for an interface on a business date
	ListByInterface(ctx context.Context, interfaceID, dataDate string) ([]LedgerEntry, error)
}

// WatermarkStore persists the last processed completion time
type WatermarkStore interface {
	// Load returns nil when no usable watermark exists
	Load() (*Watermark, error)

	// Save atomically persists the new upper bound
	Save(at time.Time) error

	// Reset removes the stored watermark
	Reset() error

	// InitializeTo writes an initial watermark without running any work
	InitializeTo(at time.Time) error
}
