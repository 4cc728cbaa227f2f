package counter

import (
	"bytes"
	"encoding/json"
	"strings"

	"hdfsaudit/internal/services/audit/domain"
)

// extractReport locates the count report JSON inside subprocess stdout.
// Logging frameworks may prefix informational lines, so candidates are
// lines whose first byte is '{'; the last decodable candidate wins since
// the report is emitted at the end of the run. Trailing noise after the
// JSON document is tolerated
func extractReport(out []byte) (domain.CountReport, bool) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return domain.CountReport{}, false
	}

	// fast path: stdout is the document, nothing else
	if trimmed[0] == '{' {
		if r, ok := decodeReport(trimmed); ok {
			return r, true
		}
	}

	var candidates []int
	for i := 0; i < len(out); i++ {
		if out[i] == '{' && (i == 0 || out[i-1] == '\n') {
			candidates = append(candidates, i)
		}
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if r, ok := decodeReport(out[candidates[i]:]); ok {
			return r, true
		}
	}
	return domain.CountReport{}, false
}

func decodeReport(b []byte) (domain.CountReport, bool) {
	dec := json.NewDecoder(bytes.NewReader(b))
	var r domain.CountReport
	if err := dec.Decode(&r); err != nil {
		return domain.CountReport{}, false
	}
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	switch r.Status {
	case domain.StatusSuccess, domain.StatusPartial, domain.StatusFailed:
		return r, true
	default:
		return domain.CountReport{}, false
	}
}
