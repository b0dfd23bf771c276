package ingestion

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("processing batch not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ProcessingBatch{}, &EMRDocument{})
}

func (r *Repository) Create(ctx context.Context, batch *ProcessingBatch) error {
	batch.CreatedAt = time.Now().UTC()
	batch.UpdatedAt = batch.CreatedAt
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *Repository) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&ProcessingBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		}).Error
}

// Complete writes the batch outcome in one update: final status, record
// counts, quality score and both statistics payloads.
func (r *Repository) Complete(ctx context.Context, batch *ProcessingBatch) error {
	return r.db.WithContext(ctx).Model(&ProcessingBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"status":             batch.Status,
			"error":              batch.Error,
			"total_records":      batch.TotalRecords,
			"valid_records":      batch.ValidRecords,
			"invalid_records":    batch.InvalidRecords,
			"duplicate_records":  batch.DuplicateRecords,
			"unique_records":     batch.UniqueRecords,
			"quality_score":      batch.QualityScore,
			"phi_masked":         batch.PHIMasked,
			"summary":            batch.Summary,
			"emr_summary":        batch.EMRSummary,
			"processing_seconds": batch.ProcessingSeconds,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*ProcessingBatch, error) {
	var batch ProcessingBatch
	result := r.db.WithContext(ctx).First(&batch, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &batch, result.Error
}

func (r *Repository) Latest(ctx context.Context, statuses ...string) (*ProcessingBatch, error) {
	var batch ProcessingBatch
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	result := query.First(&batch)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &batch, result.Error
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]ProcessingBatch, error) {
	var batches []ProcessingBatch
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}

func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	err := r.db.WithContext(ctx).Model(&ProcessingBatch{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *Repository) RecordsProcessed(ctx context.Context) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Model(&ProcessingBatch{}).
		Select("coalesce(sum(total_records), 0)").
		Scan(&total).Error
	return total, err
}

// SaveEMRDocuments upserts by primary key: a patient reprocessed from a
// later upload replaces its earlier document.
func (r *Repository) SaveEMRDocuments(ctx context.Context, docs []EMRDocument) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range docs {
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = now
		}
		docs[i].UpdatedAt = now
	}
	return r.db.WithContext(ctx).Save(&docs).Error
}

func (r *Repository) CleanupExpired(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-ttl)
	if err := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EMRDocument{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&ProcessingBatch{}).Error
}
