package emr

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tm2health/platform/pkg/common/models"
	"github.com/tm2health/platform/pkg/terminology"
	"github.com/tm2health/platform/pkg/tm2"
)

func fixedMapper() *Mapper {
	m := NewMapper()
	m.now = func() time.Time {
		return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return m
}

func uniqueRecord(row int, patient, code, name, system, severity, date, practitioner string) models.TM2Record {
	return models.TM2Record{
		PatientID:      patient,
		TM2Code:        code,
		ConditionName:  name,
		SystemType:     system,
		Severity:       severity,
		DiagnosisDate:  date,
		PractitionerID: practitioner,
		SourceRow:      row,
	}
}

func mapperFixture() *models.CleaningResult {
	unique := []models.TM2Record{
		uniqueRecord(2, "PAT001", "TM2.A01.01", "Insomnia", "Ayurveda", "Moderate", "2024-01-15", "DOC123"),
		uniqueRecord(3, "PAT001", "TM2.B02.03", "Digestive Disorders", "Siddha", "Mild", "2024-01-15", "DOC123"),
		uniqueRecord(4, "PAT001", "TM2.C03.05", "Fever", "Siddha", "Mild", "2024-01-15", "DOC999"),
		uniqueRecord(5, "PAT001", "TM2.A01.01", "Insomnia", "Ayurveda", "Moderate", "2024-02-20", "DOC123"),
		uniqueRecord(6, "PAT002", "TM2.D04.01", "Eczema", "Homeopathy", "Severe", "2024-03-01", "DOC456"),
	}
	return &models.CleaningResult{
		Valid:  unique,
		Unique: unique,
		Statistics: models.DataQualityStatistics{
			TotalRecords: 5,
			ValidRecords: 5,
			UniqueRecords: 5,
			QualityScore: 97.14,
		},
	}
}

func TestConvertGroupsPatientsAndEncounters(t *testing.T) {
	records, stats := fixedMapper().Convert(mapperFixture())

	if len(records) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(records))
	}
	if records[0].Patient.SourceID != "PAT001" || records[1].Patient.SourceID != "PAT002" {
		t.Fatalf("patient order: %s, %s", records[0].Patient.SourceID, records[1].Patient.SourceID)
	}

	pat1 := records[0]
	if len(pat1.Encounters) != 3 {
		t.Fatalf("PAT001 encounters = %d, want 3", len(pat1.Encounters))
	}
	if len(pat1.Conditions) != 4 || len(pat1.Observations) != 4 {
		t.Fatalf("PAT001 conditions %d observations %d", len(pat1.Conditions), len(pat1.Observations))
	}
	// Same date and practitioner share one encounter.
	if len(pat1.Encounters[0].ConditionIDs) != 2 {
		t.Fatalf("first encounter conditions: %v", pat1.Encounters[0].ConditionIDs)
	}
	// Same date, different practitioner splits.
	if pat1.Encounters[1].PractitionerID != "DOC999" {
		t.Fatalf("second encounter practitioner: %s", pat1.Encounters[1].PractitionerID)
	}

	if stats.PatientsCreated != 2 || stats.EncountersCreated != 4 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.ConditionsCreated != 5 || stats.ObservationsCreated != 5 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.DataQualityScore != 97.14 {
		t.Fatalf("quality score not carried: %v", stats.DataQualityScore)
	}
}

func TestConvertReferentialIntegrity(t *testing.T) {
	records, _ := fixedMapper().Convert(mapperFixture())

	for _, record := range records {
		conditionIDs := make(map[string]struct{})
		for _, c := range record.Conditions {
			if c.PatientID != record.Patient.PatientID {
				t.Fatalf("condition %s references patient %s", c.ConditionID, c.PatientID)
			}
			conditionIDs[c.ConditionID] = struct{}{}
		}
		encounterIDs := make(map[string]struct{})
		for _, e := range record.Encounters {
			if e.PatientID != record.Patient.PatientID {
				t.Fatalf("encounter %s references patient %s", e.EncounterID, e.PatientID)
			}
			encounterIDs[e.EncounterID] = struct{}{}
			for _, id := range e.ConditionIDs {
				if _, ok := conditionIDs[id]; !ok {
					t.Fatalf("encounter %s references unknown condition %s", e.EncounterID, id)
				}
			}
		}
		for _, o := range record.Observations {
			if _, ok := encounterIDs[o.EncounterID]; !ok {
				t.Fatalf("observation %s references unknown encounter %s", o.ObservationID, o.EncounterID)
			}
		}
	}
}

func TestConvertDeterministicIDs(t *testing.T) {
	m := fixedMapper()
	first, firstStats := m.Convert(mapperFixture())
	second, secondStats := m.Convert(mapperFixture())

	if !reflect.DeepEqual(first, second) {
		t.Fatal("conversions differ")
	}
	if !reflect.DeepEqual(firstStats, secondStats) {
		t.Fatal("statistics differ")
	}

	for _, record := range first {
		if !strings.HasPrefix(record.Patient.PatientID, "pat_") {
			t.Fatalf("patient id %s", record.Patient.PatientID)
		}
		for _, e := range record.Encounters {
			if !strings.HasPrefix(e.EncounterID, "enc_") {
				t.Fatalf("encounter id %s", e.EncounterID)
			}
		}
		for _, c := range record.Conditions {
			if !strings.HasPrefix(c.ConditionID, "cond_") {
				t.Fatalf("condition id %s", c.ConditionID)
			}
		}
		for _, o := range record.Observations {
			if !strings.HasPrefix(o.ObservationID, "obs_") {
				t.Fatalf("observation id %s", o.ObservationID)
			}
		}
	}
}

func TestEntityIDsCaseInsensitive(t *testing.T) {
	if PatientID("PAT001") != PatientID("pat001") {
		t.Fatal("patient ids differ by case")
	}
	if ConditionID("PAT001", "TM2.A01.01", "2024-01-15", "DOC123") !=
		ConditionID("pat001", "tm2.a01.01", "2024-01-15", "doc123") {
		t.Fatal("condition ids differ by case")
	}
	if PatientID("PAT001") == PatientID("PAT002") {
		t.Fatal("distinct patients share an id")
	}
	if ConditionID("PAT001", "TM2.A01.01", "2024-01-15", "DOC123") ==
		ObservationID("PAT001", "TM2.A01.01", "2024-01-15", "DOC123") {
		t.Fatal("condition and observation ids collide")
	}
}

func TestConvertCountsUnparseableDates(t *testing.T) {
	cleaned := &models.CleaningResult{
		Unique: []models.TM2Record{
			uniqueRecord(2, "PAT001", "TM2.A01.01", "Insomnia", "Ayurveda", "Mild", "not-a-date", "DOC123"),
			uniqueRecord(3, "PAT002", "TM2.B02.03", "Fever", "Siddha", "Mild", "2024-02-20", "DOC456"),
		},
		Statistics: models.DataQualityStatistics{TotalRecords: 2, ValidRecords: 2, UniqueRecords: 2},
	}

	records, stats := fixedMapper().Convert(cleaned)
	if stats.ConversionErrors != 1 {
		t.Fatalf("conversion errors = %d", stats.ConversionErrors)
	}
	if len(records) != 1 || records[0].Patient.SourceID != "PAT002" {
		t.Fatalf("records: %+v", records)
	}
}

func TestConvertFullBatchScenario(t *testing.T) {
	pipeline, err := tm2.NewPipeline(tm2.DefaultOptions(), terminology.NewTranslator(terminology.DefaultTables()))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	row := func(n int, patient, code, name, system, severity, date, practitioner string) tm2.RawRow {
		return tm2.RawRow{Number: n, Fields: map[string]string{
			"patient_id":      patient,
			"tm2_code":        code,
			"condition_name":  name,
			"system_type":     system,
			"severity":        severity,
			"diagnosis_date":  date,
			"practitioner_id": practitioner,
		}}
	}
	rows := []tm2.RawRow{
		row(2, "PAT001", "TM2.A01.01", "Chronic Insomnia", "Ayurveda", "Moderate", "2024-01-15", "DOC123"),
		row(3, "PAT002", "TM2.B02.03", "Digestive Disorders", "Siddha", "Mild", "2024-02-20", "DOC456"),
		row(4, "PAT003", "TM2.C03.01", "Fever", "Ayurveda", "Moderate", "2024-02-20", "DOC123"),
		row(5, "PAT004", "TM2.D04.02", "Cough", "Unani", "Severe", "2024-01-15", "DOC789"),
		row(6, "PAT005", "TM2.E05.05", "Allergy", "Homeopathy", "Mild", "2024-03-01", "DOC456"),
		row(7, "PAT001", "TM2.A01.01", "Chronic Insomnia", "Ayurveda", "Moderate", "2024-01-15", "DOC123"),
		row(8, "PAT006", "TM2.F06.01", "Fever", "Siddha", "Critical", "2024-01-30", "DOC123"),
		row(9, "PAT007", "TM2.G07.02", "Eczema", "Ayurveda", "Mild", "2024-02-14", "DOC456"),
		row(10, "", "TM2.H08.01", "Anxiety", "Unani", "Mild", "2024-02-01", "DOC789"),
		row(11, "PAT009", "BADCODE", "Depression", "Ayurveda", "Mild", "2024-02-02", "DOC123"),
	}
	cleaned, err := pipeline.Run(context.Background(), tm2.DefaultColumns(), rows)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	_, stats := NewMapper().Convert(cleaned)
	if stats.ConditionsCreated != 7 {
		t.Fatalf("conditions created = %d, want 7", stats.ConditionsCreated)
	}
	if stats.SkippedInvalid != 2 || stats.SkippedDuplicate != 1 {
		t.Fatalf("skipped: invalid %d duplicate %d", stats.SkippedInvalid, stats.SkippedDuplicate)
	}
	if stats.TotalRecordsProcessed != 10 {
		t.Fatalf("total = %d", stats.TotalRecordsProcessed)
	}
	if stats.ConversionErrors != 0 {
		t.Fatalf("conversion errors = %d", stats.ConversionErrors)
	}
}
