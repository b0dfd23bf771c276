package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tm2health/platform/pkg/common/kafka"
	"github.com/tm2health/platform/pkg/common/logger"
	"github.com/tm2health/platform/pkg/common/models"
	"github.com/tm2health/platform/pkg/dlp"
	"github.com/tm2health/platform/pkg/emr"
	"github.com/tm2health/platform/pkg/storage"
	"github.com/tm2health/platform/pkg/tm2"
)

const eventSource = "ingestion-service"

type Service struct {
	pipeline  *tm2.Pipeline
	guard     *dlp.Detector
	mapper    *emr.Mapper
	repo      *Repository
	cache     *storage.StatsCache
	producer  *kafka.Producer
	dlq       *kafka.Producer
	statusTTL time.Duration
	started   time.Time
}

func NewService(pipeline *tm2.Pipeline, guard *dlp.Detector, mapper *emr.Mapper, repo *Repository, cache *storage.StatsCache, producer *kafka.Producer, dlq *kafka.Producer, ttl time.Duration) *Service {
	return &Service{
		pipeline:  pipeline,
		guard:     guard,
		mapper:    mapper,
		repo:      repo,
		cache:     cache,
		producer:  producer,
		dlq:       dlq,
		statusTTL: ttl,
		started:   time.Now().UTC(),
	}
}

// ProcessFile runs one uploaded CSV through the cleaning pipeline and
// EMR conversion, persists the batch outcome and converted documents,
// caches the statistics and announces the batch on the event bus.
// Structural file problems return a batch error before anything is
// persisted.
func (s *Service) ProcessFile(ctx context.Context, filename string, file io.Reader) (*models.ProcessingResult, error) {
	started := time.Now()

	header, rows, err := ParseCSV(file)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	batch := &ProcessingBatch{
		ID:       batchID,
		Filename: filename,
		Status:   StatusAccepted,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("persisting batch: %w", err)
	}

	cleaned, err := s.pipeline.Run(ctx, header, rows)
	if err != nil {
		_ = s.repo.UpdateStatus(ctx, batchID, StatusFailed, err.Error())
		return nil, err
	}

	masked := s.scrub(cleaned.Unique)
	if masked > 0 {
		logger.Log.WithField("batch_id", batchID).Warnf("masked %d personal identifiers in free-text fields", masked)
	}

	emrRecords, emrStats := s.mapper.Convert(cleaned)

	docs := make([]EMRDocument, 0, len(emrRecords))
	for _, record := range emrRecords {
		payload, err := toJSONMap(record)
		if err != nil {
			_ = s.repo.UpdateStatus(ctx, batchID, StatusFailed, err.Error())
			return nil, fmt.Errorf("encoding EMR document: %w", err)
		}
		docs = append(docs, EMRDocument{
			ID:              record.Patient.PatientID,
			BatchID:         batchID,
			SourcePatientID: record.Patient.SourceID,
			Payload:         payload,
		})
	}
	if err := s.repo.SaveEMRDocuments(ctx, docs); err != nil {
		_ = s.repo.UpdateStatus(ctx, batchID, StatusFailed, err.Error())
		return nil, fmt.Errorf("persisting EMR documents: %w", err)
	}

	summary, err := toJSONMap(cleaned.Statistics)
	if err != nil {
		return nil, fmt.Errorf("encoding statistics: %w", err)
	}
	emrSummary, err := toJSONMap(emrStats)
	if err != nil {
		return nil, fmt.Errorf("encoding EMR statistics: %w", err)
	}

	batch.Status = StatusCompleted
	batch.TotalRecords = cleaned.Statistics.TotalRecords
	batch.ValidRecords = cleaned.Statistics.ValidRecords
	batch.InvalidRecords = cleaned.Statistics.InvalidRecords
	batch.DuplicateRecords = cleaned.Statistics.DuplicateRecords
	batch.UniqueRecords = cleaned.Statistics.UniqueRecords
	batch.QualityScore = cleaned.Statistics.QualityScore
	batch.PHIMasked = masked
	batch.Summary = summary
	batch.EMRSummary = emrSummary
	batch.ProcessingSeconds = time.Since(started).Seconds()
	if err := s.repo.Complete(ctx, batch); err != nil {
		return nil, fmt.Errorf("completing batch: %w", err)
	}

	if err := s.cache.Store(ctx, batchID, cleaned.Statistics); err != nil {
		logger.Log.WithError(err).Warn("failed to cache cleanup statistics")
	}

	status := s.publish(ctx, batchID, filename, emrRecords, emrStats)

	return &models.ProcessingResult{
		Success:               true,
		Message:               fmt.Sprintf("processed %d records", cleaned.Statistics.TotalRecords),
		ProcessingID:          batchID,
		Filename:              filename,
		Status:                status,
		Summary:               &cleaned.Statistics,
		EMRStatistics:         &emrStats,
		ProcessingTimeSeconds: batch.ProcessingSeconds,
	}, nil
}

// publish announces the converted batch for the submission service.
// The batch is already persisted at this point, so a bus failure leaves
// it completed and queues the payload on the DLQ instead of failing the
// upload.
func (s *Service) publish(ctx context.Context, batchID, filename string, records []models.EMRRecord, stats models.EMRStatistics) string {
	payload := map[string]interface{}{
		"batch_id":    batchID,
		"filename":    filename,
		"emr_records": records,
		"statistics":  stats,
	}

	if err := s.producer.PublishEvent(ctx, "emr", eventSource, payload); err != nil {
		logger.Log.WithError(err).Error("failed to publish EMR batch event")
		if s.dlq != nil {
			if dlqErr := s.dlq.PublishEvent(ctx, "emr-dlq", eventSource, payload); dlqErr != nil {
				logger.Log.WithError(dlqErr).Error("failed to push EMR batch to DLQ")
			}
		}
		return StatusCompleted
	}

	_ = s.repo.UpdateStatus(ctx, batchID, StatusPublished, "")
	return StatusPublished
}

func (s *Service) Status(ctx context.Context, id string) (*ProcessingBatch, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) RecentBatches(ctx context.Context, limit int) ([]ProcessingBatch, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *Service) SystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}
	processed, err := s.repo.RecordsProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("summing records: %w", err)
	}

	status := &models.SystemStatus{
		Service:          "ingestion-service",
		Status:           "healthy",
		UptimeSeconds:    time.Since(s.started).Seconds(),
		BatchesByStatus:  counts,
		RecordsProcessed: processed,
		Timestamp:        time.Now().UTC(),
	}

	last, err := s.repo.Latest(ctx)
	if err == nil {
		status.LastBatchID = last.ID
		status.LastProcessedAt = &last.UpdatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("loading latest batch: %w", err)
	}
	return status, nil
}

// CleanupStats returns the latest batch statistics, preferring the
// cache and falling back to the most recent finished batch in the
// database. storage.ErrNoStats means nothing has been processed yet.
func (s *Service) CleanupStats(ctx context.Context) (*models.DataQualityStatistics, error) {
	stats, err := s.cache.Latest(ctx)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, storage.ErrNoStats) {
		logger.Log.WithError(err).Warn("stats cache unavailable, falling back to database")
	}

	batch, err := s.repo.Latest(ctx, StatusCompleted, StatusPublished)
	if errors.Is(err, ErrNotFound) {
		return nil, storage.ErrNoStats
	}
	if err != nil {
		return nil, err
	}
	if len(batch.Summary) == 0 {
		return nil, storage.ErrNoStats
	}

	var out models.DataQualityStatistics
	if err := fromJSONMap(batch.Summary, &out); err != nil {
		return nil, fmt.Errorf("decoding batch summary: %w", err)
	}
	return &out, nil
}

// BatchStats returns the statistics for one finished batch, preferring
// the cache. ErrNotFound means no such batch, storage.ErrNoStats means
// the batch has no statistics recorded.
func (s *Service) BatchStats(ctx context.Context, batchID string) (*models.DataQualityStatistics, error) {
	stats, err := s.cache.Batch(ctx, batchID)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, storage.ErrNoStats) {
		logger.Log.WithError(err).Warn("stats cache unavailable, falling back to database")
	}

	batch, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(batch.Summary) == 0 {
		return nil, storage.ErrNoStats
	}

	var out models.DataQualityStatistics
	if err := fromJSONMap(batch.Summary, &out); err != nil {
		return nil, fmt.Errorf("decoding batch summary: %w", err)
	}
	return &out, nil
}

// PreviewEMR runs two representative sample rows through the full
// pipeline and conversion without persisting anything, showing callers
// what the converted output looks like.
func (s *Service) PreviewEMR(ctx context.Context) ([]models.EMRRecord, models.EMRStatistics, error) {
	rows := []tm2.RawRow{
		{Number: 2, Fields: map[string]string{
			"patient_id":      "PAT001",
			"tm2_code":        "TM2.A01.01",
			"condition_name":  "Chronic Insomnia",
			"system_type":     "Ayurveda",
			"severity":        "Moderate",
			"diagnosis_date":  "2024-01-15",
			"practitioner_id": "DOC123",
		}},
		{Number: 3, Fields: map[string]string{
			"patient_id":      "PAT002",
			"tm2_code":        "TM2.B02.03",
			"condition_name":  "Digestive Disorders",
			"system_type":     "Siddha",
			"severity":        "Mild",
			"diagnosis_date":  "2024-02-20",
			"practitioner_id": "DOC456",
		}},
	}

	cleaned, err := s.pipeline.Run(ctx, tm2.DefaultColumns(), rows)
	if err != nil {
		return nil, models.EMRStatistics{}, err
	}
	s.scrub(cleaned.Unique)
	records, stats := s.mapper.Convert(cleaned)
	return records, stats, nil
}

// scrub masks stray personal identifiers in the free-text condition
// names before the records are converted for the EMR. Statistics are
// unaffected because they only check the field for presence.
func (s *Service) scrub(records []models.TM2Record) int {
	total := 0
	for i := range records {
		masked, n := s.guard.Mask(records[i].ConditionName)
		if n > 0 {
			records[i].ConditionName = masked
			total += n
		}
	}
	return total
}

func (s *Service) Cleanup(ctx context.Context) error {
	return s.repo.CleanupExpired(ctx, s.statusTTL)
}

func toJSONMap(v interface{}) (datatypes.JSONMap, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return datatypes.JSONMap(m), nil
}

func fromJSONMap(m datatypes.JSONMap, out interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
