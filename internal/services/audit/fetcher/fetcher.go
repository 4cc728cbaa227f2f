package fetcher

import (
	"context"
	"strings"
	"time"

	perr "hdfsaudit/internal/platform/errors"
	"hdfsaudit/internal/platform/logger"
	"hdfsaudit/internal/platform/store"
	"hdfsaudit/internal/services/audit/domain"
)

// DefaultQueryTemplate is used when db config carries no query_template.
// Placeholders {start_time}, {end_time} and {data_date} are substituted
// textually before the query is sent
const DefaultQueryTemplate = `
	SELECT task_name, period_type, batch_no, end_time
	FROM task_instance
	WHERE status = 'SUCCESS'
	  AND end_time >= '{start_time}'
	  AND end_time < '{end_time}'
`

// chTimeFormat is the timestamp literal format the completion log expects
const chTimeFormat = "2006-01-02 15:04:05"

// ClickHouse pulls completed task records from the upstream completion log.
// Host failover lives in the connection layer; the fetcher sees one seam
type ClickHouse struct {
	ch   store.Clickhouse
	tmpl string
	loc  *time.Location
	log  *logger.Logger
}

var _ domain.TaskFetcher = (*ClickHouse)(nil)

// NewClickHouse builds a fetcher over the given connection seam
func NewClickHouse(ch store.Clickhouse, tmpl string, loc *time.Location) *ClickHouse {
	if tmpl == "" {
		tmpl = DefaultQueryTemplate
	}
	if loc == nil {
		loc = time.Local
	}
	return &ClickHouse{ch: ch, tmpl: tmpl, loc: loc, log: logger.Named("fetcher")}
}

// FetchCompleted queries the completion log for the half-open window and
// returns deduplicated records
func (f *ClickHouse) FetchCompleted(
	ctx context.Context,
	win domain.Window,
	dataDate string,
) ([]domain.CompletionRecord, error) {
	q := f.render(win, dataDate)
	f.log.Debug().Str("query", q).Msg("executing completion query")

	rows, err := f.ch.Query(ctx, q)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFetch, "query completion log")
	}
	defer rows.Close()

	var out []domain.CompletionRecord
	for rows.Next() {
		var (
			task, period, batch string
			completeAt          time.Time
		)
		if err := rows.Scan(&task, &period, &batch, &completeAt); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeFetch, "scan completion row")
		}
		out = append(out, domain.CompletionRecord{
			TaskName:   task,
			PeriodType: domain.PeriodType(strings.ToLower(strings.TrimSpace(period))),
			BatchNo:    batch,
			CompleteAt: completeAt.In(f.loc),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFetch, "read completion rows")
	}

	deduped := Dedupe(out)
	f.log.Info().
		Int("fetched", len(out)).
		Int("deduped", len(deduped)).
		Time("window_start", win.Start).
		Time("window_end", win.End).
		Msg("completed tasks fetched")
	return deduped, nil
}

func (f *ClickHouse) render(win domain.Window, dataDate string) string {
	r := strings.NewReplacer(
		"{start_time}", win.Start.In(f.loc).Format(chTimeFormat),
		"{end_time}", win.End.In(f.loc).Format(chTimeFormat),
		"{data_date}", dataDate,
	)
	return r.Replace(f.tmpl)
}

// Dedupe collapses duplicates on (task_name, period_type, batch_no),
// keeping the record with the latest completion time. First-seen order
// of the surviving keys is preserved
func Dedupe(records []domain.CompletionRecord) []domain.CompletionRecord {
	if len(records) <= 1 {
		return records
	}
	idx := make(map[string]int, len(records))
	out := make([]domain.CompletionRecord, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if i, seen := idx[k]; seen {
			if r.CompleteAt.After(out[i].CompleteAt) {
				out[i] = r
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out
}
