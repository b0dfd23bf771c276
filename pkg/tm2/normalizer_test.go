package tm2

import (
	"testing"

	"github.com/tm2health/platform/pkg/common/models"
	"github.com/tm2health/platform/pkg/terminology"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(DefaultOptions(), terminology.NewTranslator(terminology.DefaultTables()))
}

func TestNormalizeCleansFields(t *testing.T) {
	n := testNormalizer()

	rec := models.TM2Record{
		PatientID:      "  PAT001 ",
		TM2Code:        "tm2.a01.01",
		ConditionName:  "chronic   insomnia",
		SystemType:     "AYURVEDA",
		Severity:       "mild",
		DiagnosisDate:  "01/15/2024",
		PractitionerID: "DOC123",
		SourceRow:      2,
	}
	got := n.Normalize(rec)

	if got.PatientID != "PAT001" {
		t.Errorf("PatientID = %q", got.PatientID)
	}
	if got.TM2Code != "TM2.A01.01" {
		t.Errorf("TM2Code = %q", got.TM2Code)
	}
	if got.ConditionName != "Insomnia" {
		t.Errorf("ConditionName = %q", got.ConditionName)
	}
	if got.SystemType != "Ayurveda" {
		t.Errorf("SystemType = %q", got.SystemType)
	}
	if got.Severity != "Mild" {
		t.Errorf("Severity = %q", got.Severity)
	}
	if got.DiagnosisDate != "2024-01-15" {
		t.Errorf("DiagnosisDate = %q", got.DiagnosisDate)
	}
	if !got.WasNormalized {
		t.Error("expected WasNormalized")
	}
	if got.SourceRow != 2 {
		t.Errorf("SourceRow = %d", got.SourceRow)
	}
	if rec.TM2Code != "tm2.a01.01" {
		t.Error("input record was modified")
	}
}

func TestNormalizeTranslatesNativeTerms(t *testing.T) {
	n := testNormalizer()

	got := n.Normalize(models.TM2Record{
		ConditionName: "अनिद्रा",
		SystemType:    "आयुर्वेद",
		Severity:      "मृदु",
	})
	if got.ConditionName != "Insomnia" {
		t.Errorf("ConditionName = %q, want Insomnia", got.ConditionName)
	}
	if got.SystemType != "Ayurveda" {
		t.Errorf("SystemType = %q, want Ayurveda", got.SystemType)
	}
	if got.Severity != "Mild" {
		t.Errorf("Severity = %q, want Mild", got.Severity)
	}
}

func TestNormalizeKeepsCuratedSpellings(t *testing.T) {
	n := testNormalizer()

	got := n.Normalize(models.TM2Record{ConditionName: "कोविड"})
	if got.ConditionName != "COVID-19" {
		t.Errorf("ConditionName = %q, want COVID-19", got.ConditionName)
	}
	again := n.Normalize(got)
	if again.ConditionName != "COVID-19" {
		t.Errorf("re-normalized ConditionName = %q, want COVID-19", again.ConditionName)
	}
}

func TestNormalizeDateFormats(t *testing.T) {
	n := testNormalizer()

	cases := []struct {
		in   string
		want string
	}{
		{"2024-02-20", "2024-02-20"},
		{"02/20/2024", "2024-02-20"},
		{"20-02-2024", "2024-02-20"},
		{"not-a-date", "not-a-date"},
		{"2024-13-40", "2024-13-40"},
	}
	for _, c := range cases {
		got := n.Normalize(models.TM2Record{DiagnosisDate: c.in})
		if got.DiagnosisDate != c.want {
			t.Errorf("DiagnosisDate(%q) = %q, want %q", c.in, got.DiagnosisDate, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := testNormalizer()

	records := []models.TM2Record{
		{
			PatientID:      " pat001 ",
			TM2Code:        "tm2.a01.01",
			ConditionName:  "  chronic   insomnia ",
			SystemType:     "ayurveda",
			Severity:       "MILD",
			DiagnosisDate:  "01/15/2024",
			PractitionerID: "DOC123",
		},
		{ConditionName: "حرارت", Severity: "गंभीर", DiagnosisDate: "bad date"},
		{},
	}
	for _, rec := range records {
		once := n.Normalize(rec)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("normalize not idempotent:\nonce  %+v\ntwice %+v", once, twice)
		}
	}
}

func TestNormalizeUnchangedRecord(t *testing.T) {
	n := testNormalizer()

	rec := models.TM2Record{
		PatientID:      "PAT001",
		TM2Code:        "TM2.A01.01",
		ConditionName:  "Digestive Disorders",
		SystemType:     "Siddha",
		Severity:       "Moderate",
		DiagnosisDate:  "2024-02-20",
		PractitionerID: "DOC456",
	}
	got := n.Normalize(rec)
	if got.WasNormalized {
		t.Errorf("expected clean record to stay unflagged: %+v", got)
	}
	if got != rec {
		t.Errorf("clean record changed: %+v", got)
	}
}
