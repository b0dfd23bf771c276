package tm2

import (
	"reflect"
	"testing"
	"time"

	"github.com/tm2health/platform/pkg/common/models"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(DefaultOptions())
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	v.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return v
}

func validRecord() models.TM2Record {
	return models.TM2Record{
		PatientID:      "PAT001",
		TM2Code:        "TM2.A01.01",
		ConditionName:  "Chronic Insomnia",
		SystemType:     "Ayurveda",
		Severity:       "Moderate",
		DiagnosisDate:  "2024-01-15",
		PractitionerID: "DOC123",
		SourceRow:      2,
	}
}

func TestValidateAcceptsCleanRecord(t *testing.T) {
	v := testValidator(t)

	outcome := v.Validate(validRecord())
	if !outcome.IsValid {
		t.Fatalf("expected valid, got reasons %v", outcome.Reasons)
	}
	if len(outcome.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", outcome.Reasons)
	}
}

func TestValidateMissingFields(t *testing.T) {
	v := testValidator(t)

	rec := validRecord()
	rec.PatientID = ""
	rec.PractitionerID = ""
	outcome := v.Validate(rec)
	if outcome.IsValid {
		t.Fatal("expected invalid")
	}
	want := []string{"missing_patient_id", "missing_practitioner_id"}
	if !reflect.DeepEqual(outcome.Reasons, want) {
		t.Fatalf("reasons = %v, want %v", outcome.Reasons, want)
	}
}

func TestValidateMissingCodeSuppressesFormatCheck(t *testing.T) {
	v := testValidator(t)

	rec := validRecord()
	rec.TM2Code = ""
	outcome := v.Validate(rec)
	for _, r := range outcome.Reasons {
		if r == ReasonInvalidCodeFormat {
			t.Fatalf("format reason reported for missing code: %v", outcome.Reasons)
		}
	}
	if outcome.Reasons[0] != "missing_tm2_code" {
		t.Fatalf("reasons = %v", outcome.Reasons)
	}
}

func TestValidateCodeFormat(t *testing.T) {
	v := testValidator(t)

	for _, code := range []string{"TM2.A1.01", "TM2.A01.1", "tm2.a01.01", "TM2-A01-01", "TM3.A01.01", "TM2.A01.01.02"} {
		rec := validRecord()
		rec.TM2Code = code
		outcome := v.Validate(rec)
		if outcome.IsValid {
			t.Errorf("code %q unexpectedly valid", code)
		}
	}

	rec := validRecord()
	rec.TM2Code = "TM2.B02.03"
	if outcome := v.Validate(rec); !outcome.IsValid {
		t.Errorf("code TM2.B02.03 rejected: %v", outcome.Reasons)
	}
}

func TestValidateSeverity(t *testing.T) {
	v := testValidator(t)

	rec := validRecord()
	rec.Severity = "mild"
	outcome := v.Validate(rec)
	if outcome.IsValid {
		t.Fatal("expected exact-case severity check to fail for \"mild\"")
	}
	if outcome.Reasons[0] != ReasonInvalidSeverity {
		t.Fatalf("reasons = %v", outcome.Reasons)
	}

	rec.Severity = ""
	outcome = v.Validate(rec)
	if outcome.IsValid || outcome.Reasons[0] != ReasonInvalidSeverity {
		t.Fatalf("empty severity: %+v", outcome)
	}
}

func TestValidateDateBounds(t *testing.T) {
	v := testValidator(t)

	cases := []struct {
		date  string
		valid bool
	}{
		{"2024-01-15", true},
		{"2024-06-02", true},
		{"1900-01-01", true},
		{"1899-12-31", false},
		{"2024-06-03", false},
		{"2099-01-01", false},
		{"15/01/2024", false},
		{"garbage", false},
	}
	for _, c := range cases {
		rec := validRecord()
		rec.DiagnosisDate = c.date
		outcome := v.Validate(rec)
		if outcome.IsValid != c.valid {
			t.Errorf("date %q: valid = %v, reasons %v", c.date, outcome.IsValid, outcome.Reasons)
		}
		if !c.valid && outcome.Reasons[0] != ReasonInvalidDate {
			t.Errorf("date %q: reasons = %v", c.date, outcome.Reasons)
		}
	}
}

func TestValidateAccumulatesReasons(t *testing.T) {
	v := testValidator(t)

	rec := validRecord()
	rec.TM2Code = "BAD"
	rec.Severity = "Extreme"
	rec.DiagnosisDate = "2099-01-01"
	outcome := v.Validate(rec)
	want := []string{ReasonInvalidCodeFormat, ReasonInvalidSeverity, ReasonInvalidDate}
	if !reflect.DeepEqual(outcome.Reasons, want) {
		t.Fatalf("reasons = %v, want %v", outcome.Reasons, want)
	}
}

func TestNewValidatorRejectsBadPattern(t *testing.T) {
	opts := DefaultOptions()
	opts.CodePattern = "["
	if _, err := NewValidator(opts); err == nil {
		t.Fatal("expected error for bad pattern")
	}

	opts = DefaultOptions()
	opts.MinDiagnosisDate = "not a date"
	if _, err := NewValidator(opts); err == nil {
		t.Fatal("expected error for bad min date")
	}
}
