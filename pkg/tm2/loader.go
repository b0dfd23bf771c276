package tm2

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tm2health/platform/pkg/common/models"
)

// RawRow is one parsed data row. Number is the 1-based physical line in
// the uploaded file, counting the header as line 1. Fields is keyed by
// column name.
type RawRow struct {
	Number int
	Fields map[string]string
}

// Loader turns parsed rows into TM2 records after checking the batch
// structure. Structural problems abort the whole batch; no per-record
// failures happen at this stage.
type Loader struct {
	columns []string
}

// NewLoader builds a Loader requiring the given column set. A nil slice
// means the default TM2 columns.
func NewLoader(columns []string) *Loader {
	if len(columns) == 0 {
		columns = DefaultColumns()
	}
	return &Loader{columns: columns}
}

// Load converts rows into records in input order. It fails with a
// BatchError when the batch has no data rows or the header's column set
// does not exactly match the required names.
func (l *Loader) Load(header []string, rows []RawRow) ([]models.TM2Record, error) {
	if err := l.checkHeader(header); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, BatchError{reason: fmt.Errorf("file has a header but no records: %w", errNoRows)}
	}

	records := make([]models.TM2Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.TM2Record{
			PatientID:      row.Fields["patient_id"],
			TM2Code:        row.Fields["tm2_code"],
			ConditionName:  row.Fields["condition_name"],
			SystemType:     row.Fields["system_type"],
			Severity:       row.Fields["severity"],
			DiagnosisDate:  row.Fields["diagnosis_date"],
			PractitionerID: row.Fields["practitioner_id"],
			SourceRow:      row.Number,
		})
	}
	return records, nil
}

func (l *Loader) checkHeader(header []string) error {
	want := make(map[string]struct{}, len(l.columns))
	for _, c := range l.columns {
		want[c] = struct{}{}
	}
	got := make(map[string]struct{}, len(header))
	for _, c := range header {
		got[c] = struct{}{}
	}

	var missing, unexpected []string
	for c := range want {
		if _, ok := got[c]; !ok {
			missing = append(missing, c)
		}
	}
	for c := range got {
		if _, ok := want[c]; !ok {
			unexpected = append(unexpected, c)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(unexpected)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(unexpected, ", "))
	}
	return BatchError{reason: fmt.Errorf("%s: %w", strings.Join(parts, "; "), errColumnMismatch)}
}
