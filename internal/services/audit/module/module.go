// Package module wires the audit service from platform deps and CLI params
package module

import (
	"time"

	"hdfsaudit/internal/modkit"
	"hdfsaudit/internal/services/audit/catalog"
	"hdfsaudit/internal/services/audit/counter"
	"hdfsaudit/internal/services/audit/domain"
	"hdfsaudit/internal/services/audit/fetcher"
	"hdfsaudit/internal/services/audit/repo"
	"hdfsaudit/internal/services/audit/service"
	"hdfsaudit/internal/services/audit/watermark"
)

// Ports defines the audit module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Params carries the CLI-resolved inputs the module cannot read from env
type Params struct {
	Catalog *catalog.Catalog
	DB      *catalog.DBConfig

	JarPath       string
	JavaHome      string
	HadoopConfDir string

	// WatermarkPath is the fully resolved watermark file; empty disables
	// the file store
	WatermarkPath string

	DryRun        bool
	Concurrency   int
	HoursLookback float64
	Watermark     service.WatermarkConfig
}

// Module implements the audit module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New wires the fetcher, counter, sink and watermark store into the service.
// The counter and sink are skipped in dry-run wiring; the service never
// reaches them on that path
func New(deps modkit.Deps, p Params) (*Module, error) {
	opts := FromConfig(deps.Cfg)

	loc := time.Local
	if p.DB != nil && p.DB.ClickHouse != nil {
		var err error
		if loc, err = p.DB.ClickHouse.Location(); err != nil {
			return nil, err
		}
	}

	var fetch domain.TaskFetcher
	if deps.CH != nil && p.DB != nil && p.DB.ClickHouse != nil {
		fetch = fetcher.NewClickHouse(deps.CH, p.DB.ClickHouse.QueryTemplate, loc)
	}

	var count domain.Counter
	if !p.DryRun {
		jar := p.JarPath
		if jar == "" {
			jar = deps.Cfg.MayString("HDFS_COUNTER_JAR", "")
		}
		d, err := counter.New(counter.Options{
			JarPath:         jar,
			JavaHome:        p.JavaHome,
			HadoopConfDir:   p.HadoopConfDir,
			Timeout:         opts.CountTimeout,
			MaxCaptureBytes: opts.MaxCaptureBytes,
		})
		if err != nil {
			return nil, err
		}
		count = d
	}

	var sink domain.ResultSink
	if !p.DryRun && deps.DB != nil {
		sink = repo.NewSink(deps.DB)
	}

	var marks domain.WatermarkStore
	if p.WatermarkPath != "" {
		marks = watermark.NewFileStore(p.WatermarkPath)
	}

	svc := service.New(p.Catalog, fetch, count, sink, marks, loc, service.Config{
		Concurrency:   p.Concurrency,
		DryRun:        p.DryRun,
		HoursLookback: p.HoursLookback,
		Watermark:     p.Watermark,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Runner: svc}
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return "audit" }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }
