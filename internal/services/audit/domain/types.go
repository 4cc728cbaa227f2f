// Package domain holds the core business logic and data structures for the audit run
package domain

import (
	"encoding/json"
	"time"
)

// PeriodType is the temporal granularity a schedule keys its partitions on
type PeriodType string

// Period granularities understood by the catalog and the upstream completion log
const (
	PeriodHourly  PeriodType = "hourly"
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
)

// Valid reports whether p is one of the known granularities
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodHourly, PeriodDaily, PeriodMonthly:
		return true
	}
	return false
}

// Period is a tagged variant carrying only the fields its type needs.
// Daily carries Date, monthly carries Month, hourly carries Date and Hour
type Period struct {
	Type  PeriodType
	Date  string // YYYYMMDD
	Month string // YYYYMM
	Hour  string // HH
}

// DailyPeriod builds a daily period for the given business date
func DailyPeriod(date string) Period {
	return Period{Type: PeriodDaily, Date: date}
}

// MonthlyPeriod builds a monthly period for the given YYYYMM month
func MonthlyPeriod(month string) Period {
	return Period{Type: PeriodMonthly, Month: month}
}

// HourlyPeriod builds an hourly period for the given date and hour
func HourlyPeriod(date, hour string) Period {
	return Period{Type: PeriodHourly, Date: date, Hour: hour}
}

// CompletionRecord is one upstream report that a named task finished successfully
type CompletionRecord struct {
	TaskName   string
	PeriodType PeriodType
	BatchNo    string
	CompleteAt time.Time
}

// Key is the dedup identity of a completion record
func (r CompletionRecord) Key() string {
	return r.TaskName + "\x00" + string(r.PeriodType) + "\x00" + r.BatchNo
}

// AuditJob is one fully resolved (path, format) unit of counting work.
// Created just in time before fan-out, consumed once, never persisted
type AuditJob struct {
	TaskName    string
	InterfaceID string
	PlatformID  string
	PartnerID   string
	TableName   string
	HDFSPath    string
	Format      string
	Delimiter   string
	Threads     int
	Period      Period
	BatchNo     string
}

// FailedPath is one per-file failure carried inside a count report
type FailedPath struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// CountReport mirrors the counter subprocess JSON document
type CountReport struct {
	Path             string       `json:"path,omitempty"`
	RowCount         int64        `json:"row_count"`
	FileCount        int          `json:"file_count"`
	SuccessFileCount int          `json:"success_file_count"`
	TotalSizeBytes   int64        `json:"total_size_bytes"`
	Status           string       `json:"status"`
	DurationMS       int64        `json:"duration_ms"`
	Errors           []FailedPath `json:"errors,omitempty"`
}

// Count report statuses as emitted by the counter subprocess
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// ErrorJSON renders the per-file error list as a JSON string, empty when there are none
func (c CountReport) ErrorJSON() string {
	if len(c.Errors) == 0 {
		return ""
	}
	b, err := json.Marshal(c.Errors)
	if err != nil {
		return ""
	}
	return string(b)
}

// FailedCount synthesizes a total-failure report with the given message
func FailedCount(path, msg string, durationMS int64) CountReport {
	return CountReport{
		Path:       path,
		RowCount:   -1,
		Status:     StatusFailed,
		DurationMS: durationMS,
		Errors:     []FailedPath{{Path: path, Message: msg}},
	}
}

// Watermark is the persisted upper bound of the completion window already processed
type Watermark struct {
	LastEndTime time.Time
	UpdatedAt   time.Time
}

// Window is a half-open completion-time range [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// LedgerRow is one append record destined for the audit ledger
type LedgerRow struct {
	Job       AuditJob
	Report    CountReport
	CreatedAt time.Time
}

// LedgerEntry is one row read back from the audit ledger
type LedgerEntry struct {
	ID             int64
	TaskName       string
	InterfaceID    string
	PlatformID     string
	PartnerID      string
	TableName      string
	HDFSPath       string
	PeriodType     PeriodType
	BatchNo        string
	DataDate       string // YYYYMMDD, empty when null
	DataMonth      string // YYYYMM, empty when null
	DataHour       string // HH, empty when null
	RowCount       int64
	FileCount      int
	TotalSizeBytes int64
	Status         string
	ErrorMsg       string
	DurationMS     int64
	CreatedAt      time.Time
}

// Summary aggregates the outcome of one run
type Summary struct {
	Total        int
	Success      int
	Partial      int
	Failed       int
	SinkFailures int
	Cancelled    bool
}

// AllSucceeded reports whether every job finished with a success status and every write landed
func (s Summary) AllSucceeded() bool {
	return !s.Cancelled && s.SinkFailures == 0 && s.Partial == 0 && s.Failed == 0
}
