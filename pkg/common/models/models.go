package models

import "time"

// TM2 source records
type TM2Record struct {
	PatientID      string `json:"patient_id"`
	TM2Code        string `json:"tm2_code"`
	ConditionName  string `json:"condition_name"`
	SystemType     string `json:"system_type"` // Ayurveda, Siddha, Unani, Homeopathy
	Severity       string `json:"severity"`    // Mild, Moderate, Severe, Critical
	DiagnosisDate  string `json:"diagnosis_date"`
	PractitionerID string `json:"practitioner_id"`
	SourceRow      int    `json:"source_row"` // 1-based line in the uploaded file, header is line 1
	WasNormalized  bool   `json:"was_normalized"`
}

type ValidationOutcome struct {
	Record  TM2Record `json:"record"`
	IsValid bool      `json:"is_valid"`
	Reasons []string  `json:"reasons,omitempty"`
}

type DedupDecision struct {
	Record       TM2Record `json:"record"`
	IsDuplicate  bool      `json:"is_duplicate"`
	DedupKey     string    `json:"dedup_key"`
	FirstSeenRow int       `json:"first_seen_row,omitempty"`
}

// Data quality
type DataQualityStatistics struct {
	TotalRecords           int                `json:"total_records"`
	ValidRecords           int                `json:"valid_records"`
	InvalidRecords         int                `json:"invalid_records"`
	DuplicateRecords       int                `json:"duplicate_records"`
	UniqueRecords          int                `json:"unique_records"`
	FieldCompleteness      map[string]float64 `json:"field_completeness"`
	SeverityDistribution   map[string]int     `json:"severity_distribution"`
	SystemTypeDistribution map[string]int     `json:"system_type_distribution"`
	EarliestDiagnosis      *time.Time         `json:"earliest_diagnosis,omitempty"`
	LatestDiagnosis        *time.Time         `json:"latest_diagnosis,omitempty"`
	QualityScore           float64            `json:"quality_score"`
}

type CleaningResult struct {
	Valid      []TM2Record           `json:"valid"`
	Unique     []TM2Record           `json:"unique"`
	Invalid    []ValidationOutcome   `json:"invalid"`
	Duplicates []DedupDecision       `json:"duplicates"`
	Statistics DataQualityStatistics `json:"statistics"`
}

// EMR entities, OpenMRS/FHIR-compatible shape
type EMRPatient struct {
	PatientID   string     `json:"patient_id"` // deterministic pat_<hex> identifier
	SourceID    string     `json:"source_id"`
	GivenName   string     `json:"given_name,omitempty"`
	FamilyName  string     `json:"family_name,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Address     string     `json:"address,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type EMRCondition struct {
	ConditionID    string    `json:"condition_id"`
	PatientID      string    `json:"patient_id"`
	ConditionName  string    `json:"condition_name"`
	ICDCode        string    `json:"icd_code,omitempty"`
	TM2Code        string    `json:"tm2_code"`
	SystemType     string    `json:"system_type"`
	Severity       string    `json:"severity"`
	DiagnosisDate  time.Time `json:"diagnosis_date"`
	PractitionerID string    `json:"practitioner_id"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type EMREncounter struct {
	EncounterID    string    `json:"encounter_id"`
	PatientID      string    `json:"patient_id"`
	EncounterType  string    `json:"encounter_type"`
	EncounterDate  time.Time `json:"encounter_date"`
	PractitionerID string    `json:"practitioner_id"`
	Location       string    `json:"location,omitempty"`
	ConditionIDs   []string  `json:"conditions"`
	ObservationIDs []string  `json:"observations"`
	CreatedAt      time.Time `json:"created_at"`
}

type EMRObservation struct {
	ObservationID   string    `json:"observation_id"`
	PatientID       string    `json:"patient_id"`
	EncounterID     string    `json:"encounter_id"`
	Concept         string    `json:"concept"`
	Severity        string    `json:"severity"`
	SystemType      string    `json:"system_type"`
	ObservationDate time.Time `json:"observation_date"`
	PractitionerID  string    `json:"practitioner_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type EMRRecord struct {
	Patient      EMRPatient             `json:"patient"`
	Conditions   []EMRCondition         `json:"conditions"`
	Encounters   []EMREncounter         `json:"encounters"`
	Observations []EMRObservation       `json:"observations"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

type EMRStatistics struct {
	TotalRecordsProcessed int       `json:"total_records_processed"`
	PatientsCreated       int       `json:"patients_created"`
	EncountersCreated     int       `json:"encounters_created"`
	ConditionsCreated     int       `json:"conditions_created"`
	ObservationsCreated   int       `json:"observations_created"`
	SkippedInvalid        int       `json:"skipped_invalid"`
	SkippedDuplicate      int       `json:"skipped_duplicate"`
	ConversionErrors      int       `json:"conversion_errors"`
	DataQualityScore      float64   `json:"data_quality_score"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// API responses
type ProcessingResult struct {
	Success               bool                   `json:"success"`
	Message               string                 `json:"message"`
	ProcessingID          string                 `json:"processing_id"`
	Filename              string                 `json:"filename"`
	Status                string                 `json:"status"`
	Summary               *DataQualityStatistics `json:"summary,omitempty"`
	EMRStatistics         *EMRStatistics         `json:"emr_statistics,omitempty"`
	ProcessingTimeSeconds float64                `json:"processing_time_seconds"`
	RequestID             string                 `json:"request_id,omitempty"`
}

type SystemStatus struct {
	Service          string         `json:"service"`
	Status           string         `json:"status"`
	UptimeSeconds    float64        `json:"uptime_seconds"`
	BatchesByStatus  map[string]int `json:"batches_by_status"`
	RecordsProcessed int            `json:"records_processed"`
	LastBatchID      string         `json:"last_batch_id,omitempty"`
	LastProcessedAt  *time.Time     `json:"last_processed_at,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // emr, submission, dlq
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
