// Package service implements the audit run orchestration
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	perr "hdfsaudit/internal/platform/errors"
	"hdfsaudit/internal/platform/logger"
	"hdfsaudit/internal/services/audit/catalog"
	"hdfsaudit/internal/services/audit/domain"
	"hdfsaudit/internal/services/audit/fetcher"

	"github.com/google/uuid"
)

// WatermarkConfig controls incremental window planning
type WatermarkConfig struct {
	Enabled        bool
	OverlapSeconds int
	MaxWindowHours float64
	InitNow        bool

	// AdvanceOnFailure saves the watermark even when jobs failed.
	// Strongly discouraged; failed windows will never be rescanned
	AdvanceOnFailure bool
}

// Config holds run-level options for the service
type Config struct {
	// Concurrency overrides the catalog worker count; <=0 uses the catalog
	Concurrency int

	// DryRun builds and logs the job list without executing or writing
	DryRun bool

	// HoursLookback is the cold-start window size in hours
	HoursLookback float64

	Watermark WatermarkConfig
}

// Service orchestrates one audit run end to end
type Service struct {
	Catalog *catalog.Catalog
	Fetcher domain.TaskFetcher    // nil when no completion log is configured
	Counter domain.Counter        // nil only in dry-run wiring
	Sink    domain.ResultSink     // nil only in dry-run wiring
	Marks   domain.WatermarkStore // nil when watermark is disabled
	Loc     *time.Location
	Cfg     Config

	now func() time.Time
}

var _ domain.RunnerPort = (*Service)(nil)

// New constructs the audit service
func New(
	cat *catalog.Catalog,
	f domain.TaskFetcher,
	c domain.Counter,
	sink domain.ResultSink,
	marks domain.WatermarkStore,
	loc *time.Location,
	cfg Config,
) *Service {
	if cat == nil {
		panic("audit.Service requires a non nil Catalog")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		Catalog: cat,
		Fetcher: f,
		Counter: c,
		Sink:    sink,
		Marks:   marks,
		Loc:     loc,
		Cfg:     cfg,
		now:     time.Now,
	}
}

// Run executes one audit cycle: resolve mode and period, fetch completions,
// expand to jobs, fan out the counts, persist results, and advance the
// watermark when the run qualifies
func (s *Service) Run(ctx context.Context, req domain.RunRequest) (domain.Summary, error) {
	ctx = logger.WithRun(ctx, uuid.NewString())
	log := logger.C(ctx)

	now := s.now().In(s.Loc)
	mode := req.Mode()

	date, err := s.Catalog.ResolveDataDate(req.Date, now)
	if err != nil {
		return domain.Summary{}, err
	}
	log.Info().
		Str("mode", string(mode)).
		Str("data_date", date).
		Bool("dry_run", s.Cfg.DryRun).
		Msg("audit run starting")

	records, plan, err := s.collect(ctx, req, mode, date, now)
	if err != nil {
		return domain.Summary{}, err
	}
	if plan.InitOnly {
		if s.Cfg.DryRun {
			log.Info().Msg("dry run: would initialize watermark and exit")
			return domain.Summary{}, nil
		}
		if err := s.Marks.InitializeTo(plan.Window.End); err != nil {
			return domain.Summary{}, err
		}
		log.Warn().Time("last_end_time", plan.Window.End).Msg("watermark initialized, no jobs this run")
		return domain.Summary{}, nil
	}

	// the date override only applies when the caller actually passed one;
	// otherwise each record resolves its own period
	override := ""
	if req.Date != "" {
		override = date
	}
	jobs, broken := s.Catalog.BuildJobs(records, override, now, s.Loc)
	log.Info().Int("jobs", len(jobs)).Int("broken", len(broken)).Int("records", len(records)).Msg("jobs built")

	if s.Cfg.DryRun {
		for _, j := range jobs {
			log.Info().
				Str("table", j.TableName).
				Str("path", j.HDFSPath).
				Str("format", j.Format).
				Int("threads", j.Threads).
				Str("batch_no", j.BatchNo).
				Msg("dry run: job")
		}
		for _, b := range broken {
			log.Warn().Str("table", b.Job.TableName).Str("reason", b.Reason).Msg("dry run: broken job")
		}
		return domain.Summary{Total: len(jobs)}, nil
	}

	if s.Counter == nil || s.Sink == nil {
		return domain.Summary{}, perr.Configf("audit service wired without counter or sink")
	}

	sum := s.execute(ctx, jobs, broken)
	log.Info().
		Int("total", sum.Total).
		Int("success", sum.Success).
		Int("partial", sum.Partial).
		Int("failed", sum.Failed).
		Int("sink_failures", sum.SinkFailures).
		Bool("cancelled", sum.Cancelled).
		Msg("audit run finished")

	if err := s.advance(ctx, mode, plan, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// collect resolves the completion record set for the selected mode
func (s *Service) collect(
	ctx context.Context,
	req domain.RunRequest,
	mode domain.RunMode,
	date string,
	now time.Time,
) ([]domain.CompletionRecord, fetcher.Plan, error) {
	log := logger.C(ctx)

	switch mode {
	case domain.ModeExplicit:
		var records []domain.CompletionRecord
		for _, t := range req.Tasks {
			if s.Catalog.ByTask(t) == nil {
				log.Warn().Str("task", t).Msg("task not in catalog, ignoring")
				continue
			}
			records = append(records, domain.CompletionRecord{TaskName: t})
		}
		return records, fetcher.Plan{}, nil

	case domain.ModeSkip:
		var records []domain.CompletionRecord
		for i := range s.Catalog.Schedules {
			sch := &s.Catalog.Schedules[i]
			records = append(records, domain.CompletionRecord{
				TaskName:   sch.TaskName,
				PeriodType: sch.PeriodType,
			})
		}
		return records, fetcher.Plan{}, nil

	default:
		if s.Fetcher == nil {
			return nil, fetcher.Plan{}, perr.Configf(
				"upstream mode requires a clickhouse completion log, use --skip-clickhouse or --tasks otherwise")
		}

		var wm *domain.Watermark
		if s.Cfg.Watermark.Enabled && s.Marks != nil {
			var err error
			if wm, err = s.Marks.Load(); err != nil {
				return nil, fetcher.Plan{}, err
			}
		}

		plan := fetcher.PlanWindow(now, wm, fetcher.WindowOptions{
			OverlapSeconds:        s.Cfg.Watermark.OverlapSeconds,
			MaxWindowHours:        s.Cfg.Watermark.MaxWindowHours,
			FallbackLookbackHours: s.Cfg.HoursLookback,
			WatermarkEnabled:      s.Cfg.Watermark.Enabled && s.Marks != nil,
			InitNow:               s.Cfg.Watermark.InitNow,
		})
		if plan.InitOnly {
			return nil, plan, nil
		}

		records, err := s.Fetcher.FetchCompleted(ctx, plan.Window, date)
		if err != nil {
			// the window was not processed; the watermark stays put so the
			// next run rescans it
			return nil, fetcher.Plan{}, err
		}
		return records, plan, nil
	}
}

// execute fans the jobs out over the clamped worker pool and records every
// outcome, including synthetic rows for jobs that could not be built
func (s *Service) execute(ctx context.Context, jobs []domain.AuditJob, broken []catalog.BrokenJob) domain.Summary {
	log := logger.C(ctx)

	var success, partial, failed, sinkFails int64

	// results drained after a cancellation must still reach the ledger, so
	// writes run on a context detached from the run's cancellation
	writeCtx := context.WithoutCancel(ctx)
	submit := func(row domain.LedgerRow) {
		if err := s.Sink.Append(writeCtx, row); err != nil {
			log.Error().Err(err).Str("table", row.Job.TableName).Msg("ledger write failed")
			atomic.AddInt64(&sinkFails, 1)
		}
	}

	for _, b := range broken {
		log.Error().Str("table", b.Job.TableName).Str("reason", b.Reason).Msg("job construction failed")
		atomic.AddInt64(&failed, 1)
		submit(domain.LedgerRow{
			Job:       b.Job,
			Report:    domain.FailedCount(b.Job.HDFSPath, b.Reason, 0),
			CreatedAt: time.Now(),
		})
	}

	n := s.Cfg.Concurrency
	if n <= 0 {
		n = s.Catalog.Defaults.Concurrency
	}
	n = s.Catalog.ClampConcurrency(n)
	n = s.Catalog.ClampEffective(n, catalog.MaxThreads(jobs))
	log.Info().Int("concurrency", n).Msg("dispatching jobs")

	jobCh := make(chan domain.AuditJob)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for job := range jobCh {
			rep := s.Counter.Count(ctx, job)
			switch rep.Status {
			case domain.StatusSuccess:
				atomic.AddInt64(&success, 1)
			case domain.StatusPartial:
				atomic.AddInt64(&partial, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
			submit(domain.LedgerRow{Job: job, Report: rep, CreatedAt: time.Now()})
		}
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go worker()
	}

	cancelled := false
dispatch:
	for _, job := range jobs {
		// cancellation wins even when a worker is ready to receive
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		default:
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()

	if ctx.Err() != nil {
		cancelled = true
	}
	if cancelled {
		log.Warn().Msg("run cancelled, undispatched jobs dropped")
	}

	return domain.Summary{
		Total:        len(jobs) + len(broken),
		Success:      int(success),
		Partial:      int(partial),
		Failed:       int(failed),
		SinkFailures: int(sinkFails),
		Cancelled:    cancelled,
	}
}

// advance persists the window end as the new watermark when the run
// qualifies: upstream mode, watermark on, not cancelled, and a clean run
// (or advance_on_failure). A run with zero jobs still advances
func (s *Service) advance(ctx context.Context, mode domain.RunMode, plan fetcher.Plan, sum domain.Summary) error {
	if mode != domain.ModeUpstream || !s.Cfg.Watermark.Enabled || s.Marks == nil {
		return nil
	}
	if sum.Cancelled {
		logger.C(ctx).Warn().Msg("watermark not advanced: run cancelled")
		return nil
	}
	if !sum.AllSucceeded() && !s.Cfg.Watermark.AdvanceOnFailure {
		logger.C(ctx).Warn().Msg("watermark not advanced: run had failures")
		return nil
	}

	if err := s.Marks.Save(plan.Window.End); err != nil {
		logger.C(ctx).Error().Err(err).Msg("watermark save failed, next run will rescan this window")
		return err
	}
	logger.C(ctx).Info().Time("last_end_time", plan.Window.End).Msg("watermark advanced")
	return nil
}
