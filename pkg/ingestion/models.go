package ingestion

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// ProcessingBatch tracks one uploaded file through the cleaning
// pipeline. Summary and EMRSummary hold the full statistics payloads;
// the flat columns exist for querying.
type ProcessingBatch struct {
	ID                string            `json:"id" gorm:"primaryKey;column:id"`
	Filename          string            `json:"filename" gorm:"column:filename"`
	Status            string            `json:"status" gorm:"column:status"`
	Error             string            `json:"error,omitempty" gorm:"column:error"`
	TotalRecords      int               `json:"total_records" gorm:"column:total_records"`
	ValidRecords      int               `json:"valid_records" gorm:"column:valid_records"`
	InvalidRecords    int               `json:"invalid_records" gorm:"column:invalid_records"`
	DuplicateRecords  int               `json:"duplicate_records" gorm:"column:duplicate_records"`
	UniqueRecords     int               `json:"unique_records" gorm:"column:unique_records"`
	QualityScore      float64           `json:"quality_score" gorm:"column:quality_score"`
	PHIMasked         int               `json:"phi_masked" gorm:"column:phi_masked"`
	Summary           datatypes.JSONMap `json:"summary,omitempty" gorm:"column:summary"`
	EMRSummary        datatypes.JSONMap `json:"emr_summary,omitempty" gorm:"column:emr_summary"`
	ProcessingSeconds float64           `json:"processing_seconds" gorm:"column:processing_seconds"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (ProcessingBatch) TableName() string {
	return "processing_batches"
}

// EMRDocument is one converted patient graph. The ID is the
// deterministic patient entity ID, so reprocessing the same source data
// overwrites the previous document instead of duplicating it.
type EMRDocument struct {
	ID              string            `json:"id" gorm:"primaryKey;column:id"`
	BatchID         string            `json:"batch_id" gorm:"column:batch_id"`
	SourcePatientID string            `json:"source_patient_id" gorm:"column:source_patient_id"`
	Payload         datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	CreatedAt       time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (EMRDocument) TableName() string {
	return "emr_documents"
}
