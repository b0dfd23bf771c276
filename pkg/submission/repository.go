package submission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("submission not found")

// SubmissionRecord tracks delivery of one patient bundle to the EMR
// system. The ID is the deterministic EMR patient identifier, so a
// redelivered batch updates the existing row instead of adding one.
type SubmissionRecord struct {
	ID              string     `gorm:"primaryKey;column:id" json:"id"`
	BatchID         string     `gorm:"column:batch_id;index" json:"batch_id"`
	SourcePatientID string     `gorm:"column:source_patient_id" json:"source_patient_id"`
	Status          string     `gorm:"column:status;index" json:"status"`
	Attempts        int        `gorm:"column:attempts" json:"attempts"`
	Error           string     `gorm:"column:error" json:"error,omitempty"`
	SubmittedAt     *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (SubmissionRecord) TableName() string {
	return "emr_submissions"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&SubmissionRecord{})
}

// MarkOutcome records a submission attempt, creating the row on first
// sight and bumping the attempt counter on every call.
func (r *Repository) MarkOutcome(ctx context.Context, id, batchID, sourcePatientID, status, errMsg string) (*SubmissionRecord, error) {
	now := time.Now().UTC()

	var existing SubmissionRecord
	err := r.db.WithContext(ctx).First(&existing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec := SubmissionRecord{
			ID:              id,
			BatchID:         batchID,
			SourcePatientID: sourcePatientID,
			Status:          status,
			Attempts:        1,
			Error:           errMsg,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if status == StatusSubmitted {
			rec.SubmittedAt = &now
		}
		if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	}
	if err != nil {
		return nil, err
	}

	existing.BatchID = batchID
	existing.SourcePatientID = sourcePatientID
	existing.Status = status
	existing.Attempts++
	existing.Error = errMsg
	existing.UpdatedAt = now
	if status == StatusSubmitted {
		existing.SubmittedAt = &now
	}
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*SubmissionRecord, error) {
	var rec SubmissionRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]SubmissionRecord, error) {
	var recs []SubmissionRecord
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *Repository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&SubmissionRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
