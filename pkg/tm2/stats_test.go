package tm2

import (
	"testing"

	"github.com/tm2health/platform/pkg/common/models"
)

// Four records: three valid (one of them a duplicate), one invalid with
// an empty severity. Every other field is filled everywhere.
func statsFixture() ([]models.ValidationOutcome, []models.DedupDecision) {
	mk := func(row int, patient, severity string) models.TM2Record {
		return models.TM2Record{
			PatientID:      patient,
			TM2Code:        "TM2.A01.01",
			ConditionName:  "Insomnia",
			SystemType:     "Ayurveda",
			Severity:       severity,
			DiagnosisDate:  "2024-01-15",
			PractitionerID: "DOC123",
			SourceRow:      row,
		}
	}

	r1 := mk(2, "PAT001", "Mild")
	r2 := mk(3, "PAT002", "Severe")
	r2.DiagnosisDate = "2024-03-10"
	r3 := mk(4, "PAT001", "Mild") // same key as r1
	r4 := mk(5, "PAT003", "")
	r4.DiagnosisDate = "2024-02-01"

	outcomes := []models.ValidationOutcome{
		{Record: r1, IsValid: true},
		{Record: r2, IsValid: true},
		{Record: r3, IsValid: true},
		{Record: r4, IsValid: false, Reasons: []string{ReasonInvalidSeverity}},
	}
	decisions := Deduplicate([]models.TM2Record{r1, r2, r3})
	return outcomes, decisions
}

func TestAggregateCounts(t *testing.T) {
	outcomes, decisions := statsFixture()
	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, decisions)

	if stats.TotalRecords != 4 || stats.ValidRecords != 3 || stats.InvalidRecords != 1 {
		t.Fatalf("counts: %+v", stats)
	}
	if stats.DuplicateRecords != 1 || stats.UniqueRecords != 2 {
		t.Fatalf("dedup counts: %+v", stats)
	}
	if stats.TotalRecords != stats.ValidRecords+stats.InvalidRecords {
		t.Fatal("total != valid + invalid")
	}
	if stats.ValidRecords != stats.UniqueRecords+stats.DuplicateRecords {
		t.Fatal("valid != unique + duplicate")
	}
}

func TestAggregateCompleteness(t *testing.T) {
	outcomes, decisions := statsFixture()
	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, decisions)

	if got := stats.FieldCompleteness["severity"]; got != 75.0 {
		t.Errorf("severity completeness = %v, want 75", got)
	}
	for _, col := range []string{"patient_id", "tm2_code", "condition_name", "system_type", "diagnosis_date", "practitioner_id"} {
		if got := stats.FieldCompleteness[col]; got != 100.0 {
			t.Errorf("%s completeness = %v, want 100", col, got)
		}
	}
	for col, pct := range stats.FieldCompleteness {
		if pct < 0 || pct > 100 {
			t.Errorf("%s completeness out of range: %v", col, pct)
		}
	}
}

func TestAggregateDistributions(t *testing.T) {
	outcomes, decisions := statsFixture()
	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, decisions)

	if stats.SeverityDistribution["Mild"] != 2 || stats.SeverityDistribution["Severe"] != 1 {
		t.Fatalf("severity distribution: %v", stats.SeverityDistribution)
	}
	if stats.SeverityDistribution[otherBucket] != 1 {
		t.Fatalf("empty severity not bucketed as other: %v", stats.SeverityDistribution)
	}
	if stats.SystemTypeDistribution["Ayurveda"] != 4 {
		t.Fatalf("system type distribution: %v", stats.SystemTypeDistribution)
	}
}

func TestAggregateUnrecognizedSeverityBucketed(t *testing.T) {
	rec := models.TM2Record{Severity: "Malnutrition", SystemType: "Allopathy"}
	outcomes := []models.ValidationOutcome{{Record: rec, IsValid: false, Reasons: []string{ReasonInvalidSeverity}}}

	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, nil)
	if stats.SeverityDistribution[otherBucket] != 1 {
		t.Fatalf("severity distribution: %v", stats.SeverityDistribution)
	}
	if stats.SystemTypeDistribution[otherBucket] != 1 {
		t.Fatalf("system type distribution: %v", stats.SystemTypeDistribution)
	}
}

func TestAggregateDateRange(t *testing.T) {
	outcomes, decisions := statsFixture()
	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, decisions)

	if stats.EarliestDiagnosis == nil || stats.EarliestDiagnosis.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("earliest = %v", stats.EarliestDiagnosis)
	}
	// 2024-02-01 belongs to the invalid record and must not count.
	if stats.LatestDiagnosis == nil || stats.LatestDiagnosis.Format("2006-01-02") != "2024-03-10" {
		t.Fatalf("latest = %v", stats.LatestDiagnosis)
	}
}

func TestAggregateQualityScore(t *testing.T) {
	outcomes, decisions := statsFixture()
	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, decisions)

	// validity 3/4, uniqueness 2/3, completeness (6*1 + 0.75)/7.
	// 100*(0.5*0.75 + 0.3*(2/3) + 0.2*(6.75/7)) = 76.79 after rounding.
	if stats.QualityScore != 76.79 {
		t.Fatalf("quality score = %v, want 76.79", stats.QualityScore)
	}
}

func TestAggregateNoValidRecords(t *testing.T) {
	rec := models.TM2Record{SourceRow: 2}
	outcomes := []models.ValidationOutcome{{Record: rec, IsValid: false, Reasons: []string{"missing_patient_id"}}}

	stats := NewAggregator(DefaultOptions()).Aggregate(outcomes, nil)
	if stats.UniqueRecords != 0 || stats.DuplicateRecords != 0 {
		t.Fatalf("unexpected dedup counts: %+v", stats)
	}
	if stats.EarliestDiagnosis != nil || stats.LatestDiagnosis != nil {
		t.Fatal("expected no date range")
	}
	if stats.QualityScore < 0 || stats.QualityScore > 100 {
		t.Fatalf("quality score out of range: %v", stats.QualityScore)
	}
}
