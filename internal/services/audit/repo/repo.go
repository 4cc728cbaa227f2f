// Package repo provides MySQL access for the audit ledger
package repo

import (
	"context"
	"database/sql"
	"time"

	"hdfsaudit/internal/modkit/repokit"
	perr "hdfsaudit/internal/platform/errors"
	pstrings "hdfsaudit/internal/platform/strings"
	"hdfsaudit/internal/services/audit/domain"
)

// errMsgMaxBytes bounds the error payload stored per row
const errMsgMaxBytes = 4 << 10

type (
	// MySQL is a MySQL binder for domain.ResultRepo
	MySQL   struct{}
	queries struct{ q repokit.Queryer }
)

// NewMySQL returns a MySQL binder for domain.ResultRepo
func NewMySQL() repokit.Binder[domain.ResultRepo] { return MySQL{} }

// Bind implements repokit.Binder
func (MySQL) Bind(q repokit.Queryer) domain.ResultRepo { return &queries{q: q} }

const ledgerColumns = `
	id, task_name, interface_id, platform_id, partner_id, table_name, hdfs_path,
	period_type, batch_no, data_date, data_month, data_hour,
	row_count, file_count, total_size_bytes, status, error_msg, duration_ms, created_at
`

// Insert appends one result row. The ledger has no unique key; this system
// never updates or deletes
func (r *queries) Insert(ctx context.Context, row domain.LedgerRow) error {
	job, rep := row.Job, row.Report
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	errMsg := pstrings.Truncate(rep.ErrorJSON(), errMsgMaxBytes)

	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_result (
			task_name, interface_id, platform_id, partner_id, table_name, hdfs_path,
			period_type, batch_no, data_date, data_month, data_hour,
			row_count, file_count, total_size_bytes, status, error_msg, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.TaskName, job.InterfaceID, job.PlatformID, job.PartnerID, job.TableName, job.HDFSPath,
		string(job.Period.Type), job.BatchNo,
		sqlDate(job.Period.Date), pstrings.SQLNull(month(job.Period)), pstrings.SQLNull(job.Period.Hour),
		rep.RowCount, rep.FileCount, rep.TotalSizeBytes, rep.Status,
		pstrings.SQLNull(errMsg), rep.DurationMS, createdAt,
	)
	return err
}

// LatestForTable returns the most recent entries for a logical table
func (r *queries) LatestForTable(ctx context.Context, tableName string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM audit_result
		WHERE table_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, tableName, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListByPartner returns entries for a partner on a business date
func (r *queries) ListByPartner(ctx context.Context, partnerID, dataDate string) ([]domain.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM audit_result
		WHERE partner_id = ? AND data_date = ?
		ORDER BY created_at, id
	`, partnerID, sqlDate(dataDate))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListByInterface returns entries for an interface on a business date
func (r *queries) ListByInterface(ctx context.Context, interfaceID, dataDate string) ([]domain.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM audit_result
		WHERE interface_id = ? AND data_date = ?
		ORDER BY created_at, id
	`, interfaceID, sqlDate(dataDate))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows repokit.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			period    string
			date      sql.NullTime
			mon, hour sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.TaskName, &e.InterfaceID, &e.PlatformID, &e.PartnerID, &e.TableName, &e.HDFSPath,
			&period, &e.BatchNo, &date, &mon, &hour,
			&e.RowCount, &e.FileCount, &e.TotalSizeBytes, &e.Status, &errMsg, &e.DurationMS, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.PeriodType = domain.PeriodType(period)
		if date.Valid {
			e.DataDate = date.Time.Format("20060102")
		}
		e.DataMonth = mon.String
		e.DataHour = hour.String
		e.ErrorMsg = errMsg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// sqlDate converts a YYYYMMDD business date to a DATE literal, or NULL
func sqlDate(yyyymmdd string) any {
	if yyyymmdd == "" {
		return nil
	}
	t, err := time.Parse("20060102", yyyymmdd)
	if err != nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// month derives the YYYYMM column value for a period
func month(p domain.Period) string {
	if p.Month != "" {
		return p.Month
	}
	if len(p.Date) >= 6 {
		return p.Date[:6]
	}
	return ""
}

// sink adapts the repo into the run's append port
type sink struct {
	repo domain.ResultRepo
}

// NewSink binds the ledger repo over q and exposes the append surface
func NewSink(q repokit.Queryer) domain.ResultSink {
	return &sink{repo: repokit.MustBind(NewMySQL(), q)}
}

// Append writes one row, classifying failures as sink errors
func (s *sink) Append(ctx context.Context, row domain.LedgerRow) error {
	if err := s.repo.Insert(ctx, row); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeSink, "append ledger row for %s", row.Job.TableName)
	}
	return nil
}
