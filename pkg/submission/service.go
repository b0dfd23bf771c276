package submission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tm2health/platform/pkg/common/kafka"
	"github.com/tm2health/platform/pkg/common/logger"
	"github.com/tm2health/platform/pkg/common/models"
)

const eventSource = "submission-service"

// Submitter consumes converted batch events and delivers each patient
// bundle to the external EMR system.
type Submitter struct {
	client      *Client
	repo        *Repository
	dlq         *kafka.Producer
	maxAttempts int
}

func NewSubmitter(client *Client, repo *Repository, dlq *kafka.Producer, maxAttempts int) *Submitter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Submitter{client: client, repo: repo, dlq: dlq, maxAttempts: maxAttempts}
}

type batchPayload struct {
	BatchID  string             `json:"batch_id"`
	Filename string             `json:"filename"`
	Records  []models.EMRRecord `json:"emr_records"`
}

// HandleEvent delivers one batch. Returning an error leaves the Kafka
// offset uncommitted so the event is redelivered; bundles already
// submitted for this batch are skipped on the next pass.
func (s *Submitter) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != "emr" {
		return nil
	}

	batch, err := decodeBatch(event.Data)
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id": event.ID,
		}).Error("undecodable EMR batch event")
		s.pushEventDLQ(ctx, event, err.Error())
		return nil
	}

	log := logger.Log.WithFields(map[string]interface{}{
		"batch_id": batch.BatchID,
		"records":  len(batch.Records),
	})
	log.Info("submitting EMR batch")

	var retriable, exhausted int
	for i := range batch.Records {
		record := batch.Records[i]
		id := record.Patient.PatientID

		if existing, err := s.repo.Get(ctx, id); err == nil &&
			existing.Status == StatusSubmitted && existing.BatchID == batch.BatchID {
			continue
		}

		submitErr := s.client.SubmitRecord(ctx, record)
		if submitErr == nil {
			if _, err := s.repo.MarkOutcome(ctx, id, batch.BatchID, record.Patient.SourceID, StatusSubmitted, ""); err != nil {
				log.WithError(err).Error("failed to record submission outcome")
			}
			continue
		}

		rec, markErr := s.repo.MarkOutcome(ctx, id, batch.BatchID, record.Patient.SourceID, StatusFailed, submitErr.Error())
		if markErr != nil {
			log.WithError(markErr).Error("failed to record submission failure")
		}

		if rec != nil && rec.Attempts >= s.maxAttempts {
			exhausted++
			log.WithError(submitErr).WithFields(map[string]interface{}{
				"patient_id": id,
				"attempts":   rec.Attempts,
			}).Error("submission attempts exhausted, routing bundle to DLQ")
			s.pushRecordDLQ(ctx, batch.BatchID, record, submitErr.Error())
		} else {
			retriable++
			log.WithError(submitErr).WithFields(map[string]interface{}{
				"patient_id": id,
			}).Warn("submission failed, will retry on redelivery")
		}
	}

	if retriable > 0 {
		return fmt.Errorf("batch %s: %d bundles pending retry", batch.BatchID, retriable)
	}
	if exhausted > 0 {
		log.WithFields(map[string]interface{}{"dead_lettered": exhausted}).Warn("EMR batch finished with dead-lettered bundles")
	} else {
		log.Info("EMR batch submitted")
	}
	return nil
}

func (s *Submitter) pushEventDLQ(ctx context.Context, event models.Event, reason string) {
	if s.dlq == nil {
		return
	}
	payload := map[string]interface{}{
		"reason":   reason,
		"event_id": event.ID,
		"data":     event.Data,
	}
	if err := s.dlq.PublishEvent(ctx, "emr-dlq", eventSource, payload); err != nil {
		logger.Log.WithError(err).Error("failed to publish event to DLQ")
	}
}

func (s *Submitter) pushRecordDLQ(ctx context.Context, batchID string, record models.EMRRecord, reason string) {
	if s.dlq == nil {
		return
	}
	payload := map[string]interface{}{
		"batch_id": batchID,
		"reason":   reason,
		"record":   record,
	}
	if err := s.dlq.PublishEvent(ctx, "emr-dlq", eventSource, payload); err != nil {
		logger.Log.WithError(err).Error("failed to publish bundle to DLQ")
	}
}

func decodeBatch(data map[string]interface{}) (*batchPayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	var batch batchPayload
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode EMR batch: %w", err)
	}
	if batch.BatchID == "" {
		return nil, fmt.Errorf("event data missing batch_id")
	}
	if len(batch.Records) == 0 {
		return nil, fmt.Errorf("event data has no EMR records")
	}
	return &batch, nil
}
