// Package catalog loads the audit catalog and expands completion records into audit jobs
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	perr "hdfsaudit/internal/platform/errors"
	"hdfsaudit/internal/platform/logger"
	"hdfsaudit/internal/services/audit/domain"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the catalog omits values
const (
	defaultJarThreads  = 10
	defaultConcurrency = 1
	defaultDataDate    = "${yesterday}"
)

// Limits caps runaway parallelism; zero values mean unlimited
type Limits struct {
	MaxConcurrency          int `yaml:"max_python_concurrency"`
	MaxJarThreads           int `yaml:"max_jar_threads"`
	MaxEffectiveParallelism int `yaml:"max_effective_parallelism"`
}

// JarOptions holds pass-through defaults for the counter subprocess
type JarOptions struct {
	Threads int `yaml:"threads"`
}

// Defaults is the catalog defaults section
type Defaults struct {
	DataDate    string     `yaml:"data_date"`
	Concurrency int        `yaml:"python_concurrency"`
	JarOptions  JarOptions `yaml:"jar_options"`
	Limits      Limits     `yaml:"limits"`
}

// Table is one physical location audited for a schedule
type Table struct {
	Name              string `yaml:"name"               validate:"required"`
	HDFSPath          string `yaml:"hdfs_path"          validate:"required"`
	Format            string `yaml:"format"             validate:"required,oneof=orc parquet textfile"`
	Delimiter         string `yaml:"delimiter"`
	PartitionTemplate string `yaml:"partition_template"`
	Threads           int    `yaml:"threads"            validate:"min=0"`
}

// Schedule maps one upstream task to the tables it writes
type Schedule struct {
	TaskName    string            `yaml:"task_name"    validate:"required"`
	InterfaceID string            `yaml:"interface_id"`
	PlatformID  string            `yaml:"platform_id"`
	PartnerID   string            `yaml:"partner_id"`
	PeriodType  domain.PeriodType `yaml:"period_type"`
	Tables      []Table           `yaml:"tables"       validate:"required,min=1,dive"`
}

// Catalog is the parsed audit catalog document
type Catalog struct {
	Defaults  Defaults   `yaml:"defaults"`
	Schedules []Schedule `yaml:"schedules" validate:"required,min=1,dive"`

	byTask map[string]*Schedule
	log    *logger.Logger
}

// BrokenJob is a job that could not be fully constructed; it is reported
// against that job alone and never aborts the run
type BrokenJob struct {
	Job    domain.AuditJob
	Reason string
}

var placeholderRe = regexp.MustCompile(`\$\{[^}]*\}`)

// Load reads and validates the catalog at path
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "read catalog %s", path)
	}

	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "parse catalog %s", path)
	}

	c.applyDefaults()
	if err := validator.New().Struct(&c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "validate catalog %s", path)
	}
	if err := c.checkAlignment(); err != nil {
		return nil, err
	}

	c.byTask = make(map[string]*Schedule, len(c.Schedules))
	for i := range c.Schedules {
		s := &c.Schedules[i]
		if _, dup := c.byTask[s.TaskName]; dup {
			return nil, perr.Configf("duplicate task_name %q in catalog", s.TaskName)
		}
		c.byTask[s.TaskName] = s
	}
	c.log = logger.Named("catalog")
	c.log.Info().Int("schedules", len(c.Schedules)).Str("path", path).Msg("catalog loaded")
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	if c.Defaults.DataDate == "" {
		c.Defaults.DataDate = defaultDataDate
	}
	if c.Defaults.Concurrency <= 0 {
		c.Defaults.Concurrency = defaultConcurrency
	}
	if c.Defaults.JarOptions.Threads <= 0 {
		c.Defaults.JarOptions.Threads = defaultJarThreads
	}
	for i := range c.Schedules {
		if c.Schedules[i].PeriodType == "" {
			c.Schedules[i].PeriodType = domain.PeriodDaily
		}
	}
}

// checkAlignment rejects partition templates whose placeholders disagree
// with the schedule's period granularity
func (c *Catalog) checkAlignment() error {
	for _, s := range c.Schedules {
		if !s.PeriodType.Valid() {
			return perr.Configf("schedule %q: unknown period_type %q", s.TaskName, s.PeriodType)
		}
		for _, t := range s.Tables {
			tpl := t.PartitionTemplate
			if tpl == "" {
				continue
			}
			hasDate := strings.Contains(tpl, "${data_date}")
			hasHour := strings.Contains(tpl, "${data_hour}")
			switch s.PeriodType {
			case domain.PeriodDaily:
				if hasHour {
					return perr.Configf(
						"schedule %q table %q: daily period cannot reference ${data_hour}", s.TaskName, t.Name)
				}
			case domain.PeriodMonthly:
				if hasDate || hasHour {
					return perr.Configf(
						"schedule %q table %q: monthly period can only reference ${data_month}", s.TaskName, t.Name)
				}
			case domain.PeriodHourly:
				// date and hour both allowed
			}
		}
	}
	return nil
}

// ByTask returns the schedule for a task name, or nil
func (c *Catalog) ByTask(name string) *Schedule {
	return c.byTask[name]
}

// TaskNames returns every configured task name in catalog order
func (c *Catalog) TaskNames() []string {
	out := make([]string, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		out = append(out, s.TaskName)
	}
	return out
}

// ResolveDataDate resolves the run's business date. An empty input falls
// back to the catalog default, which understands ${yesterday} and ${today}
func (c *Catalog) ResolveDataDate(input string, now time.Time) (string, error) {
	if input == "" {
		input = c.Defaults.DataDate
	}
	switch input {
	case "${yesterday}":
		return now.AddDate(0, 0, -1).Format("20060102"), nil
	case "${today}":
		return now.Format("20060102"), nil
	}
	if _, err := time.ParseInLocation("20060102", input, now.Location()); err != nil {
		return "", perr.Configf("invalid date %q, expected YYYYMMDD", input)
	}
	return input, nil
}

// defaultDateForPeriod derives the business date when no override and no
// completion timestamp are available. Monthly audits the previous month,
// so the returned date is the last day of it
func defaultDateForPeriod(p domain.PeriodType, now time.Time) string {
	switch p {
	case domain.PeriodHourly:
		return now.Format("20060102")
	case domain.PeriodMonthly:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first.AddDate(0, 0, -1).Format("20060102")
	default:
		return now.AddDate(0, 0, -1).Format("20060102")
	}
}

// ClampConcurrency caps the run's worker count to the configured limit
func (c *Catalog) ClampConcurrency(n int) int {
	if n < 1 {
		n = 1
	}
	if max := c.Defaults.Limits.MaxConcurrency; max > 0 && n > max {
		c.log.Warn().Int("requested", n).Int("max", max).Msg("concurrency exceeds limit, clamping")
		return max
	}
	return n
}

// ClampThreads caps a job's counter thread count to the configured limit
func (c *Catalog) ClampThreads(t int) int {
	if t < 1 {
		t = 1
	}
	if max := c.Defaults.Limits.MaxJarThreads; max > 0 && t > max {
		c.log.Warn().Int("requested", t).Int("max", max).Msg("jar threads exceed limit, clamping")
		return max
	}
	return t
}

// ClampEffective reduces concurrency (never threads) so n*t stays within
// max_effective_parallelism. Deterministic for identical inputs
func (c *Catalog) ClampEffective(n, t int) int {
	max := c.Defaults.Limits.MaxEffectiveParallelism
	if max <= 0 {
		return n
	}
	if t < 1 {
		t = 1
	}
	if n*t <= max {
		return n
	}
	clamped := max / t
	if clamped < 1 {
		clamped = 1
	}
	c.log.Warn().
		Int("effective", n*t).
		Int("max", max).
		Int("concurrency", clamped).
		Msg("effective parallelism exceeds limit, clamping concurrency")
	return clamped
}

// MaxThreads returns the largest clamped thread count across jobs, used for
// the effective parallelism computation
func MaxThreads(jobs []domain.AuditJob) int {
	t := 1
	for _, j := range jobs {
		if j.Threads > t {
			t = j.Threads
		}
	}
	return t
}

// BuildJobs expands completion records into audit jobs.
//
// Period resolution priority per record: explicit date override, then the
// completion timestamp, then the period-type default. Hourly jobs always
// take their hour from the completion timestamp; with no timestamp the
// hour placeholder stays unresolved and the job is reported broken.
// Records whose period disagrees with the catalog entry are skipped
func (c *Catalog) BuildJobs(
	records []domain.CompletionRecord,
	dateOverride string,
	now time.Time,
	loc *time.Location,
) (jobs []domain.AuditJob, broken []BrokenJob) {
	if loc == nil {
		loc = now.Location()
	}

	byTask := make(map[string][]domain.CompletionRecord)
	for _, r := range records {
		byTask[r.TaskName] = append(byTask[r.TaskName], r)
	}

	for i := range c.Schedules {
		s := &c.Schedules[i]
		for _, rec := range byTask[s.TaskName] {
			if rec.PeriodType != "" && rec.PeriodType != s.PeriodType {
				c.log.Warn().
					Str("task", s.TaskName).
					Str("batch_no", rec.BatchNo).
					Str("catalog_period", string(s.PeriodType)).
					Str("upstream_period", string(rec.PeriodType)).
					Msg("period type mismatch, skipping batch")
				continue
			}

			period := c.resolvePeriod(s.PeriodType, rec, dateOverride, now, loc)
			for _, tbl := range s.Tables {
				job, reason := c.buildOne(s, tbl, rec, period)
				if reason != "" {
					broken = append(broken, BrokenJob{Job: job, Reason: reason})
					continue
				}
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, broken
}

func (c *Catalog) resolvePeriod(
	pt domain.PeriodType,
	rec domain.CompletionRecord,
	dateOverride string,
	now time.Time,
	loc *time.Location,
) domain.Period {
	switch pt {
	case domain.PeriodMonthly:
		date := dateOverride
		if date == "" {
			date = defaultDateForPeriod(pt, now)
		}
		return domain.MonthlyPeriod(date[:6])

	case domain.PeriodHourly:
		// the hour comes only from the completion timestamp; an explicit
		// date overrides the date alone
		var date, hour string
		if !rec.CompleteAt.IsZero() {
			at := rec.CompleteAt.In(loc)
			date = at.Format("20060102")
			hour = at.Format("15")
		}
		if dateOverride != "" {
			date = dateOverride
		}
		if date == "" {
			date = defaultDateForPeriod(pt, now)
		}
		return domain.HourlyPeriod(date, hour)

	default:
		date := dateOverride
		if date == "" {
			date = defaultDateForPeriod(pt, now)
		}
		return domain.DailyPeriod(date)
	}
}

func (c *Catalog) buildOne(
	s *Schedule,
	tbl Table,
	rec domain.CompletionRecord,
	period domain.Period,
) (domain.AuditJob, string) {
	threads := tbl.Threads
	if threads <= 0 {
		threads = c.Defaults.JarOptions.Threads
	}
	threads = c.ClampThreads(threads)

	path := tbl.HDFSPath
	if tbl.PartitionTemplate != "" {
		path = joinHDFSPath(tbl.HDFSPath, ResolvePartition(tbl.PartitionTemplate, period))
	}

	job := domain.AuditJob{
		TaskName:    s.TaskName,
		InterfaceID: s.InterfaceID,
		PlatformID:  s.PlatformID,
		PartnerID:   s.PartnerID,
		TableName:   tbl.Name,
		HDFSPath:    path,
		Format:      strings.ToLower(tbl.Format),
		Delimiter:   tbl.Delimiter,
		Threads:     threads,
		Period:      period,
		BatchNo:     rec.BatchNo,
	}

	if ph := placeholderRe.FindString(path); ph != "" {
		return job, fmt.Sprintf("unresolved placeholder: %s", ph)
	}
	return job, ""
}

// ResolvePartition substitutes period values into a partition template.
// Substitution is purely textual; placeholders with no value are left intact
func ResolvePartition(template string, p domain.Period) string {
	out := template
	if p.Date != "" {
		out = strings.ReplaceAll(out, "${data_date}", p.Date)
	}
	month := p.Month
	if month == "" && len(p.Date) >= 6 {
		month = p.Date[:6]
	}
	if month != "" {
		out = strings.ReplaceAll(out, "${data_month}", month)
	}
	if p.Hour != "" {
		out = strings.ReplaceAll(out, "${data_hour}", p.Hour)
	}
	return out
}

func joinHDFSPath(base, suffix string) string {
	if base == "" {
		return suffix
	}
	if suffix == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(suffix, "/")
}
