package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"hdfsaudit/internal/modkit/repokit"
	perr "hdfsaudit/internal/platform/errors"
	"hdfsaudit/internal/services/audit/domain"
)

// fakeQueryer records every statement and replays canned rows
type fakeQueryer struct {
	execSQL  string
	execArgs []any
	execErr  error

	querySQL  string
	queryArgs []any
	rows      [][]any
	queryErr  error
}

func (f *fakeQueryer) Exec(_ context.Context, sql string, args ...any) (repokit.CommandTag, error) {
	f.execSQL = sql
	f.execArgs = args
	return nil, f.execErr
}

func (f *fakeQueryer) Query(_ context.Context, sql string, args ...any) (repokit.Rows, error) {
	f.querySQL = sql
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{rows: f.rows, i: -1}, nil
}

func (f *fakeQueryer) QueryRow(_ context.Context, _ string, _ ...any) repokit.Row { return nil }

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i]
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = row[i].(int64)
		case *int:
			*p = row[i].(int)
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		case *sql.NullTime:
			if v, ok := row[i].(time.Time); ok {
				*p = sql.NullTime{Time: v, Valid: true}
			} else {
				*p = sql.NullTime{}
			}
		case *sql.NullString:
			if v, ok := row[i].(string); ok {
				*p = sql.NullString{String: v, Valid: true}
			} else {
				*p = sql.NullString{}
			}
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

func dailyRow() domain.LedgerRow {
	return domain.LedgerRow{
		Job: domain.AuditJob{
			TaskName:    "dw_user_daily",
			InterfaceID: "if_001",
			PlatformID:  "pf_01",
			PartnerID:   "p01",
			TableName:   "dw.user_daily",
			HDFSPath:    "/warehouse/dw/user_daily/dt=20260116",
			Format:      "orc",
			Threads:     8,
			Period:      domain.DailyPeriod("20260116"),
			BatchNo:     "20260116",
		},
		Report: domain.CountReport{
			Path:             "/warehouse/dw/user_daily/dt=20260116",
			RowCount:         12345,
			FileCount:        10,
			SuccessFileCount: 10,
			TotalSizeBytes:   987654,
			Status:           domain.StatusSuccess,
			DurationMS:       4100,
		},
		CreatedAt: time.Date(2026, 1, 17, 13, 5, 0, 0, time.UTC),
	}
}

func TestInsert_DailyArgMapping(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	if err := r.Insert(context.Background(), dailyRow()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !strings.Contains(q.execSQL, "INSERT INTO audit_result") {
		t.Fatalf("sql = %s", q.execSQL)
	}
	if len(q.execArgs) != 18 {
		t.Fatalf("args = %d, want 18", len(q.execArgs))
	}

	a := q.execArgs
	if a[0] != "dw_user_daily" || a[4] != "dw.user_daily" {
		t.Fatalf("identity args = %v", a[:6])
	}
	if a[6] != "daily" || a[7] != "20260116" {
		t.Fatalf("period args = %v %v", a[6], a[7])
	}
	if a[8] != "2026-01-16" {
		t.Fatalf("data_date = %v, want DATE literal", a[8])
	}
	if a[9] != "202601" {
		t.Fatalf("data_month = %v, derived from the date", a[9])
	}
	if a[10] != nil {
		t.Fatalf("data_hour = %v, want NULL for daily", a[10])
	}
	if a[11] != int64(12345) || a[15] != nil {
		t.Fatalf("count args = %v, error_msg = %v", a[11], a[15])
	}
}

func TestInsert_HourlyAndMonthlyNulls(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	row := dailyRow()
	row.Job.Period = domain.HourlyPeriod("20260117", "09")
	if err := r.Insert(context.Background(), row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if q.execArgs[8] != "2026-01-17" || q.execArgs[10] != "09" {
		t.Fatalf("hourly args = %v %v", q.execArgs[8], q.execArgs[10])
	}

	row.Job.Period = domain.MonthlyPeriod("202601")
	if err := r.Insert(context.Background(), row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if q.execArgs[8] != nil {
		t.Fatalf("data_date = %v, want NULL for monthly", q.execArgs[8])
	}
	if q.execArgs[9] != "202601" {
		t.Fatalf("data_month = %v", q.execArgs[9])
	}
}

func TestInsert_ErrorPayloadTruncated(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	row := dailyRow()
	row.Report.Status = domain.StatusPartial
	row.Report.Errors = []domain.FailedPath{
		{Path: "/warehouse/dw/user_daily/part-0001", Message: strings.Repeat("x", 8<<10)},
	}
	if err := r.Insert(context.Background(), row); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	msg, ok := q.execArgs[15].(string)
	if !ok {
		t.Fatalf("error_msg = %v, want a string payload", q.execArgs[15])
	}
	if len(msg) > errMsgMaxBytes {
		t.Fatalf("error_msg = %d bytes, want <= %d", len(msg), errMsgMaxBytes)
	}
	if !strings.Contains(msg, "part-0001") {
		t.Fatalf("error_msg lost the failing path: %s", msg)
	}
}

func TestInsert_FillsCreatedAt(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	row := dailyRow()
	row.CreatedAt = time.Time{}
	if err := r.Insert(context.Background(), row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	at, ok := q.execArgs[17].(time.Time)
	if !ok || at.IsZero() {
		t.Fatalf("created_at = %v, want a populated timestamp", q.execArgs[17])
	}
}

func TestLatestForTable_ScansAndOrders(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 17, 13, 5, 0, 0, time.UTC)
	q := &fakeQueryer{rows: [][]any{{
		int64(7), "dw_user_daily", "if_001", "pf_01", "p01", "dw.user_daily", "/warehouse/dw/user_daily/dt=20260116",
		"daily", "20260116", time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), "202601", nil,
		int64(12345), 10, int64(987654), "success", nil, int64(4100), created,
	}}}
	r := NewMySQL().Bind(q)

	out, err := r.LatestForTable(context.Background(), "dw.user_daily", 5)
	if err != nil {
		t.Fatalf("LatestForTable: %v", err)
	}
	if !strings.Contains(q.querySQL, "ORDER BY created_at DESC, id DESC") {
		t.Fatalf("sql = %s", q.querySQL)
	}
	if len(out) != 1 {
		t.Fatalf("entries = %d", len(out))
	}
	e := out[0]
	if e.ID != 7 || e.DataDate != "20260116" || e.DataMonth != "202601" || e.DataHour != "" {
		t.Fatalf("entry = %+v", e)
	}
	if e.RowCount != 12345 || e.Status != "success" || !e.CreatedAt.Equal(created) {
		t.Fatalf("entry = %+v", e)
	}
}

func TestLatestForTable_DefaultsLimit(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	if _, err := r.LatestForTable(context.Background(), "dw.user_daily", 0); err != nil {
		t.Fatalf("LatestForTable: %v", err)
	}
	if got := q.queryArgs[1]; got != 1 {
		t.Fatalf("limit = %v, want 1", got)
	}
}

func TestListByPartner_BindsDateLiteral(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	if _, err := r.ListByPartner(context.Background(), "p01", "20260116"); err != nil {
		t.Fatalf("ListByPartner: %v", err)
	}
	if q.queryArgs[0] != "p01" || q.queryArgs[1] != "2026-01-16" {
		t.Fatalf("args = %v", q.queryArgs)
	}
}

func TestListByInterface_BindsDateLiteral(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	r := NewMySQL().Bind(q)

	if _, err := r.ListByInterface(context.Background(), "if_001", "20260116"); err != nil {
		t.Fatalf("ListByInterface: %v", err)
	}
	if q.queryArgs[0] != "if_001" || q.queryArgs[1] != "2026-01-16" {
		t.Fatalf("args = %v", q.queryArgs)
	}
}

func TestSink_WrapsInsertFailures(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{execErr: errors.New("mysql gone away")}
	s := NewSink(q)

	err := s.Append(context.Background(), dailyRow())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !perr.IsCode(err, perr.ErrorCodeSink) {
		t.Fatalf("code = %v, want sink", perr.CodeOf(err))
	}
}

func TestSink_AppendSucceeds(t *testing.T) {
	t.Parallel()

	q := &fakeQueryer{}
	s := NewSink(q)
	if err := s.Append(context.Background(), dailyRow()); err != nil {
		t.Fatalf("Append: %v", err)
	}
}
