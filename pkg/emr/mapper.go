package emr

import (
	"strings"
	"time"

	"github.com/tm2health/platform/pkg/common/models"
)

const (
	encounterType      = "traditional_medicine_consultation"
	observationConcept = "traditional_medicine_assessment"
	conditionStatus    = "active"
)

// Mapper converts a cleaned batch into the linked EMR entity graph.
// Only unique valid records are converted; everything else is counted
// as skipped.
type Mapper struct {
	now func() time.Time
}

func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

type patientGroup struct {
	patient      models.EMRPatient
	encounters   []*models.EMREncounter
	encounterIdx map[string]*models.EMREncounter
	conditions   []models.EMRCondition
	observations []models.EMRObservation
	sourceRows   []int
}

// Convert maps cleaned.Unique into one EMRRecord per patient, grouping
// each patient's records into encounters by (diagnosis_date,
// practitioner). Patients, encounters and entities keep first-seen row
// order, so identical input produces an identical graph.
func (m *Mapper) Convert(cleaned *models.CleaningResult) ([]models.EMRRecord, models.EMRStatistics) {
	started := m.now()
	stats := models.EMRStatistics{
		TotalRecordsProcessed: cleaned.Statistics.TotalRecords,
		SkippedInvalid:        len(cleaned.Invalid),
		SkippedDuplicate:      len(cleaned.Duplicates),
		DataQualityScore:      cleaned.Statistics.QualityScore,
		CreatedAt:             started,
	}

	groups := make(map[string]*patientGroup)
	var order []string

	for _, rec := range cleaned.Unique {
		diagnosed, err := time.Parse("2006-01-02", rec.DiagnosisDate)
		if err != nil {
			stats.ConversionErrors++
			continue
		}

		patientKey := strings.ToLower(rec.PatientID)
		group, ok := groups[patientKey]
		if !ok {
			group = &patientGroup{
				patient: models.EMRPatient{
					PatientID: PatientID(rec.PatientID),
					SourceID:  rec.PatientID,
					CreatedAt: started,
				},
				encounterIdx: make(map[string]*models.EMREncounter),
			}
			groups[patientKey] = group
			order = append(order, patientKey)
		}

		encounterKey := rec.DiagnosisDate + "|" + strings.ToLower(rec.PractitionerID)
		encounter, ok := group.encounterIdx[encounterKey]
		if !ok {
			encounter = &models.EMREncounter{
				EncounterID:    EncounterID(rec.PatientID, rec.DiagnosisDate, rec.PractitionerID),
				PatientID:      group.patient.PatientID,
				EncounterType:  encounterType,
				EncounterDate:  diagnosed,
				PractitionerID: rec.PractitionerID,
				CreatedAt:      started,
			}
			group.encounterIdx[encounterKey] = encounter
			group.encounters = append(group.encounters, encounter)
		}

		condition := models.EMRCondition{
			ConditionID:    ConditionID(rec.PatientID, rec.TM2Code, rec.DiagnosisDate, rec.PractitionerID),
			PatientID:      group.patient.PatientID,
			ConditionName:  rec.ConditionName,
			TM2Code:        rec.TM2Code,
			SystemType:     rec.SystemType,
			Severity:       rec.Severity,
			DiagnosisDate:  diagnosed,
			PractitionerID: rec.PractitionerID,
			Status:         conditionStatus,
			CreatedAt:      started,
		}
		observation := models.EMRObservation{
			ObservationID:   ObservationID(rec.PatientID, rec.TM2Code, rec.DiagnosisDate, rec.PractitionerID),
			PatientID:       group.patient.PatientID,
			EncounterID:     encounter.EncounterID,
			Concept:         observationConcept,
			Severity:        rec.Severity,
			SystemType:      rec.SystemType,
			ObservationDate: diagnosed,
			PractitionerID:  rec.PractitionerID,
			CreatedAt:       started,
		}
		encounter.ConditionIDs = append(encounter.ConditionIDs, condition.ConditionID)
		encounter.ObservationIDs = append(encounter.ObservationIDs, observation.ObservationID)
		group.conditions = append(group.conditions, condition)
		group.observations = append(group.observations, observation)
		group.sourceRows = append(group.sourceRows, rec.SourceRow)
	}

	records := make([]models.EMRRecord, 0, len(order))
	for _, key := range order {
		group := groups[key]
		encounters := make([]models.EMREncounter, 0, len(group.encounters))
		for _, enc := range group.encounters {
			encounters = append(encounters, *enc)
		}
		records = append(records, models.EMRRecord{
			Patient:      group.patient,
			Conditions:   group.conditions,
			Encounters:   encounters,
			Observations: group.observations,
			Metadata: map[string]interface{}{
				"source_rows": group.sourceRows,
			},
			CreatedAt: started,
		})

		stats.PatientsCreated++
		stats.EncountersCreated += len(encounters)
		stats.ConditionsCreated += len(group.conditions)
		stats.ObservationsCreated += len(group.observations)
	}

	stats.ProcessingTimeSeconds = m.now().Sub(started).Seconds()
	return records, stats
}
