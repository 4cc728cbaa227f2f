package counter

import (
	"strings"
	"testing"

	"hdfsaudit/internal/services/audit/domain"
)

func TestExtractReport_PureJSON(t *testing.T) {
	t.Parallel()

	out := `{"path":"/warehouse/dw/t","row_count":12345,"file_count":10,"success_file_count":10,` +
		`"total_size_bytes":987654,"status":"success","duration_ms":4100}`
	r, ok := extractReport([]byte(out))
	if !ok {
		t.Fatalf("expected parse")
	}
	if r.RowCount != 12345 || r.Status != domain.StatusSuccess || r.FileCount != 10 {
		t.Fatalf("report = %+v", r)
	}
}

func TestExtractReport_LogPrefixedOutput(t *testing.T) {
	t.Parallel()

	out := strings.Join([]string{
		"2026-01-17 13:02:01 INFO  Connecting to namenode",
		"2026-01-17 13:02:02 WARN  Kerberos ticket refresh",
		`{"row_count":7,"file_count":1,"success_file_count":1,"total_size_bytes":100,"status":"success","duration_ms":12}`,
	}, "\n")
	r, ok := extractReport([]byte(out))
	if !ok || r.RowCount != 7 {
		t.Fatalf("report = %+v ok = %v", r, ok)
	}
}

func TestExtractReport_LastDocumentWins(t *testing.T) {
	t.Parallel()

	out := strings.Join([]string{
		`{"row_count":1,"status":"failed"}`,
		"retrying with more threads",
		`{"row_count":99,"status":"success"}`,
	}, "\n")
	r, ok := extractReport([]byte(out))
	if !ok || r.RowCount != 99 || r.Status != domain.StatusSuccess {
		t.Fatalf("report = %+v", r)
	}
}

func TestExtractReport_TrailingNoise(t *testing.T) {
	t.Parallel()

	out := `{"row_count":5,"status":"partial","errors":[{"path":"/a/part-0001","message":"corrupt stripe"}]}` +
		"\nshutdown hook complete\n"
	r, ok := extractReport([]byte(out))
	if !ok || r.Status != domain.StatusPartial {
		t.Fatalf("report = %+v", r)
	}
	if len(r.Errors) != 1 || r.Errors[0].Message != "corrupt stripe" {
		t.Fatalf("errors = %+v", r.Errors)
	}
}

func TestExtractReport_StatusCaseInsensitive(t *testing.T) {
	t.Parallel()

	r, ok := extractReport([]byte(`{"row_count":1,"status":"SUCCESS"}`))
	if !ok || r.Status != domain.StatusSuccess {
		t.Fatalf("report = %+v", r)
	}
}

func TestExtractReport_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":          "",
		"no json":        "Exception in thread main java.lang.OutOfMemoryError",
		"unknown status": `{"row_count":1,"status":"weird"}`,
		"truncated doc":  `{"row_count":1,"status":"succ`,
	}
	for name, in := range cases {
		if _, ok := extractReport([]byte(in)); ok {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestExtractReport_LeadingWhitespaceTolerated(t *testing.T) {
	t.Parallel()

	r, ok := extractReport([]byte("  \n\t{\"row_count\":1,\"status\":\"success\"}"))
	if !ok || r.RowCount != 1 {
		t.Fatalf("report = %+v ok = %v", r, ok)
	}
}

func TestCapWriter_CapsWithoutBlocking(t *testing.T) {
	t.Parallel()

	w := &capWriter{max: 10}
	n, err := w.Write([]byte("0123456789abcdef"))
	if err != nil || n != 16 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if got := string(w.Bytes()); got != "0123456789" {
		t.Fatalf("buffer = %q", got)
	}
	if !w.truncated {
		t.Fatalf("expected truncation flag")
	}

	// further writes still report success
	n, err = w.Write([]byte("more"))
	if err != nil || n != 4 {
		t.Fatalf("Write after cap = %d, %v", n, err)
	}
	if len(w.Bytes()) != 10 {
		t.Fatalf("buffer grew past cap: %d", len(w.Bytes()))
	}
}

func TestCapWriter_Tail(t *testing.T) {
	t.Parallel()

	w := &capWriter{max: 1 << 10}
	_, _ = w.Write([]byte("  head and tail  \n"))
	if got := w.Tail(8); got != "tail" {
		t.Fatalf("Tail = %q", got)
	}
}

func TestStatusFromExit(t *testing.T) {
	t.Parallel()

	if statusFromExit(0) != domain.StatusSuccess ||
		statusFromExit(2) != domain.StatusPartial ||
		statusFromExit(1) != domain.StatusFailed ||
		statusFromExit(137) != domain.StatusFailed {
		t.Fatalf("exit code mapping wrong")
	}
}
