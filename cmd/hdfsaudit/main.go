// Command hdfsaudit runs one scheduled audit cycle: it pulls completed
// warehouse tasks, counts the rows they wrote to HDFS, and appends the
// results to the audit ledger
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"hdfsaudit/internal/modkit"
	"hdfsaudit/internal/platform/config"
	"hdfsaudit/internal/platform/logger"
	"hdfsaudit/internal/platform/store"
	pstrings "hdfsaudit/internal/platform/strings"
	"hdfsaudit/internal/services/audit/catalog"
	"hdfsaudit/internal/services/audit/domain"
	auditmod "hdfsaudit/internal/services/audit/module"
	"hdfsaudit/internal/services/audit/service"
	"hdfsaudit/internal/services/audit/watermark"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		fDate          string
		fTasks         string
		fSkipCH        bool
		fConcurrency   int
		fDryRun        bool
		fLookback      float64
		fWMPath        string
		fWMOverlap     int
		fWMMaxWindow   float64
		fWMInitNow     bool
		fWMReset       bool
		fWMDisable     bool
		fCatalogPath   string
		fDBConfigPath  string
		fJarPath       string
		fJavaHome      string
		fHadoopConfDir string
	)

	flag.StringVar(&fDate, "date", "", "business date YYYYMMDD (default: yesterday)")
	flag.StringVar(&fDate, "d", "", "shorthand for --date")
	flag.StringVar(&fTasks, "tasks", "", "comma-separated task names; skips the completion log")
	flag.StringVar(&fTasks, "t", "", "shorthand for --tasks")
	flag.BoolVar(&fSkipCH, "skip-clickhouse", false, "audit every catalog entry without querying the completion log")
	flag.IntVar(&fConcurrency, "concurrency", 0, "parallel audit jobs (still clamped by catalog limits)")
	flag.IntVar(&fConcurrency, "n", 0, "shorthand for --concurrency")
	flag.BoolVar(&fDryRun, "dry-run", false, "build and print the job list without executing")
	flag.Float64Var(&fLookback, "hours-lookback", 24, "cold-start lookback window in hours")
	flag.StringVar(&fWMPath, "watermark-path", "", "watermark file path (default: from db config)")
	flag.IntVar(&fWMOverlap, "watermark-overlap-seconds", 600, "window overlap to tolerate ingestion latency")
	flag.Float64Var(&fWMMaxWindow, "watermark-max-window-hours", 24, "catch-up window cap in hours")
	flag.BoolVar(&fWMInitNow, "watermark-init-now", false, "on first use, write now and exit with zero work")
	flag.BoolVar(&fWMReset, "watermark-reset", false, "delete the watermark file before running")
	flag.BoolVar(&fWMDisable, "disable-watermark", false, "ignore the watermark for this run")
	flag.StringVar(&fCatalogPath, "config", "config/config.yaml", "audit catalog path")
	flag.StringVar(&fCatalogPath, "c", "config/config.yaml", "shorthand for --config")
	flag.StringVar(&fDBConfigPath, "db-config", "config/db_config.yaml", "db and completion-log config path")
	flag.StringVar(&fJarPath, "jar", "", "counter jar path (default: HDFS_COUNTER_JAR)")
	flag.StringVar(&fJavaHome, "java-home", "", "JAVA_HOME for the counter subprocess")
	flag.StringVar(&fHadoopConfDir, "hadoop-conf-dir", "", "HADOOP_CONF_DIR for the counter subprocess")
	flag.Parse()

	logger.Init(logger.FromEnv())
	l := logger.Get()

	cat, err := catalog.Load(fCatalogPath)
	if err != nil {
		l.Error().Err(err).Msg("catalog load failed")
		return 1
	}
	db, err := catalog.LoadDB(fDBConfigPath)
	if err != nil {
		l.Error().Err(err).Msg("db config load failed")
		return 1
	}

	wmCfg, wmPath := resolveWatermark(db, fWMPath, fWMOverlap, fWMMaxWindow, fWMDisable, fWMInitNow)

	if fWMReset && wmPath != "" {
		if err := watermark.NewFileStore(wmPath).Reset(); err != nil {
			l.Error().Err(err).Msg("watermark reset failed")
			return 1
		}
	}

	tasks := pstrings.SplitCSV(fTasks)
	upstream := len(tasks) == 0 && !fSkipCH

	if upstream && !db.HasClickHouse() {
		l.Error().Msg("no completion log configured; set clickhouse in db config or use --tasks / --skip-clickhouse")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeCfg := store.Config{
		AppName: "hdfsaudit",
		MySQL: store.MySQLConfig{
			Enabled:  !fDryRun,
			DSN:      db.MySQL.DSN(),
			MaxConns: 5,
		},
	}
	if upstream {
		ch := db.ClickHouse
		storeCfg.CH = store.CHConfig{
			Enabled:    true,
			Addrs:      ch.Addrs(),
			Database:   ch.Database,
			Username:   ch.User,
			Password:   ch.Password,
			ClientName: "hdfsaudit",
			ClientTag:  "audit",
		}
	}

	st, err := store.Open(ctx, storeCfg, store.WithLogger(*l))
	if err != nil {
		l.Error().Err(err).Msg("store open failed")
		return 1
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("store close failed")
		}
	}()

	if err := st.Guard(ctx); err != nil {
		l.Error().Err(err).Msg("backend readiness check failed")
		return 1
	}

	root := config.New()
	mod, err := auditmod.New(modkit.Deps{Log: *l, Cfg: root, DB: st.DB, CH: st.CH}, auditmod.Params{
		Catalog:       cat,
		DB:            db,
		JarPath:       fJarPath,
		JavaHome:      fJavaHome,
		HadoopConfDir: fHadoopConfDir,
		WatermarkPath: wmPath,
		DryRun:        fDryRun,
		Concurrency:   fConcurrency,
		HoursLookback: fLookback,
		Watermark:     wmCfg,
	})
	if err != nil {
		l.Error().Err(err).Msg("audit module wiring failed")
		return 1
	}

	sum, err := mod.Ports().Runner.Run(ctx, domain.RunRequest{
		Date:         fDate,
		Tasks:        tasks,
		SkipUpstream: fSkipCH,
	})
	if err != nil {
		l.Error().Err(err).Msg("audit run failed")
		return 1
	}
	if !sum.AllSucceeded() {
		return 1
	}
	return 0
}

// resolveWatermark merges CLI flags with db-config values. Config values win
// for overlap and window cap so one file governs every scheduled invocation;
// the path resolves relative to the config file's directory
func resolveWatermark(
	db *catalog.DBConfig,
	flagPath string,
	overlap int,
	maxWindow float64,
	disabled, initNow bool,
) (service.WatermarkConfig, string) {
	enabled := !disabled
	path := flagPath

	if ch := db.ClickHouse; ch != nil {
		if ch.WatermarkEnabled != nil && !*ch.WatermarkEnabled {
			enabled = false
		}
		if ch.WatermarkOverlapSeconds != nil {
			overlap = *ch.WatermarkOverlapSeconds
		}
		if ch.WatermarkMaxWindowHours != nil {
			maxWindow = *ch.WatermarkMaxWindowHours
		}
		if path == "" && ch.WatermarkPath != "" {
			path = ch.WatermarkPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(db.Dir(), path)
			}
		}
	}
	if overlap < 0 {
		overlap = 0
	}
	if path == "" {
		enabled = false
	}

	cfg := service.WatermarkConfig{
		Enabled:        enabled,
		OverlapSeconds: overlap,
		MaxWindowHours: maxWindow,
		InitNow:        initNow,
	}
	if ch := db.ClickHouse; ch != nil {
		cfg.AdvanceOnFailure = ch.AdvanceOnFailure
	}
	if !enabled {
		path = ""
	}
	return cfg, path
}
