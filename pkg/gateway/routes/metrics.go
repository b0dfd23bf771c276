package routes

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/tm2health/platform/pkg/common/logger"
)

type MetricsHandler struct {
	db *gorm.DB
}

type OverviewMetrics struct {
	ProcessingLatencySeconds float64 `json:"processingLatencySeconds"`
	BatchesLastHour          int     `json:"batchesLastHour"`
	PendingBatches           int     `json:"pendingBatches"`
	FailedBatchesToday       int     `json:"failedBatchesToday"`
	AvgQualityScore          float64 `json:"avgQualityScore"`
	FailedSubmissions        int     `json:"failedSubmissions"`
}

type PipelineStatus struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	Details   string    `json:"details"`
}

func NewMetricsHandler(db *gorm.DB) *MetricsHandler {
	return &MetricsHandler{db: db}
}

func (h *MetricsHandler) Register(r *mux.Router) {
	r.HandleFunc("/metrics/overview", h.handleOverview).Methods(http.MethodGet)
	r.HandleFunc("/pipelines/status", h.handlePipelineStatus).Methods(http.MethodGet)
	r.HandleFunc("/metrics/quality-history", h.handleQualityHistory).Methods(http.MethodGet)
	r.HandleFunc("/submissions/recent", h.handleRecentSubmissions).Methods(http.MethodGet)
}

func (h *MetricsHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.collectMetrics()
	if err != nil {
		logger.Log.WithError(err).Error("failed to collect metrics")
		http.Error(w, "failed to collect metrics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, metrics)
}

func (h *MetricsHandler) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.collectMetrics()
	if err != nil {
		logger.Log.WithError(err).Error("failed to collect pipeline status")
		http.Error(w, "failed to collect pipeline status", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	statuses := []PipelineStatus{
		{
			ID:        "cleaning",
			Stage:     "Upload ➝ Cleaning ➝ Validation",
			Status:    deriveStatus(metrics.PendingBatches < 5, metrics.FailedBatchesToday == 0),
			UpdatedAt: now,
			Details:   formatDetails("%d batches/hour • %d pending", metrics.BatchesLastHour, metrics.PendingBatches),
		},
		{
			ID:        "conversion",
			Stage:     "Deduplication ➝ EMR Conversion",
			Status:    deriveStatus(metrics.AvgQualityScore >= 70, metrics.FailedBatchesToday == 0),
			UpdatedAt: now,
			Details:   formatDetails("quality %.1f • %d failed today", metrics.AvgQualityScore, metrics.FailedBatchesToday),
		},
		{
			ID:        "submission",
			Stage:     "Publish ➝ EMR Submission",
			Status:    deriveStatus(metrics.FailedSubmissions == 0, metrics.FailedSubmissions < 10),
			UpdatedAt: now,
			Details:   formatDetails("%d failed submissions", metrics.FailedSubmissions),
		},
	}

	writeJSON(w, statuses)
}

func (h *MetricsHandler) collectMetrics() (OverviewMetrics, error) {
	metrics := OverviewMetrics{}

	var latency sql.NullFloat64
	if err := h.db.Raw(`
		SELECT AVG(processing_seconds)
		FROM processing_batches
		WHERE updated_at > NOW() - INTERVAL '1 hour' AND status IN ('completed', 'published')
	`).Scan(&latency).Error; err != nil {
		return metrics, err
	}
	if latency.Valid {
		metrics.ProcessingLatencySeconds = latency.Float64
	}

	var batches sql.NullInt64
	if err := h.db.Raw(`
		SELECT COUNT(*)
		FROM processing_batches
		WHERE created_at > NOW() - INTERVAL '1 hour'
	`).Scan(&batches).Error; err != nil {
		return metrics, err
	}
	if batches.Valid {
		metrics.BatchesLastHour = int(batches.Int64)
	}

	var pending sql.NullInt64
	if err := h.db.Raw(`
		SELECT COUNT(*)
		FROM processing_batches
		WHERE status = 'accepted'
	`).Scan(&pending).Error; err != nil {
		return metrics, err
	}
	if pending.Valid {
		metrics.PendingBatches = int(pending.Int64)
	}

	var failed sql.NullInt64
	if err := h.db.Raw(`
		SELECT COUNT(*)
		FROM processing_batches
		WHERE status = 'failed' AND DATE(updated_at) = CURRENT_DATE
	`).Scan(&failed).Error; err != nil {
		return metrics, err
	}
	if failed.Valid {
		metrics.FailedBatchesToday = int(failed.Int64)
	}

	var quality sql.NullFloat64
	if err := h.db.Raw(`
		SELECT AVG(quality_score)
		FROM processing_batches
		WHERE created_at > NOW() - INTERVAL '7 days' AND status IN ('completed', 'published')
	`).Scan(&quality).Error; err != nil {
		return metrics, err
	}
	if quality.Valid {
		metrics.AvgQualityScore = quality.Float64
	}

	var failedSubs sql.NullInt64
	if err := h.db.Raw(`
		SELECT COUNT(*)
		FROM emr_submissions
		WHERE status = 'failed'
	`).Scan(&failedSubs).Error; err != nil {
		return metrics, err
	}
	if failedSubs.Valid {
		metrics.FailedSubmissions = int(failedSubs.Int64)
	}

	return metrics, nil
}

func deriveStatus(conditionA, conditionB bool) string {
	switch {
	case conditionA && conditionB:
		return "healthy"
	case conditionA || conditionB:
		return "degraded"
	default:
		return "failing"
	}
}

func formatDetails(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

type QualityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Batches   int       `json:"batches"`
}

func (h *MetricsHandler) handleQualityHistory(w http.ResponseWriter, r *http.Request) {
	var rows []struct {
		Timestamp time.Time       `gorm:"column:bucket"`
		Score     sql.NullFloat64 `gorm:"column:score"`
		Batches   sql.NullInt64   `gorm:"column:batches"`
	}

	if err := h.db.WithContext(r.Context()).Raw(`
		SELECT
			date_trunc('day', created_at) AS bucket,
			AVG(quality_score) AS score,
			COUNT(*) AS batches
		FROM processing_batches
		WHERE created_at > NOW() - INTERVAL '30 days' AND status IN ('completed', 'published')
		GROUP BY bucket
		ORDER BY bucket ASC
	`).Scan(&rows).Error; err != nil {
		logger.Log.WithError(err).Error("failed to load quality history")
		http.Error(w, "failed to load quality history", http.StatusInternalServerError)
		return
	}

	points := make([]QualityPoint, 0, len(rows))
	for _, row := range rows {
		score := 0.0
		if row.Score.Valid {
			score = row.Score.Float64
		}
		batches := 0
		if row.Batches.Valid {
			batches = int(row.Batches.Int64)
		}
		points = append(points, QualityPoint{
			Timestamp: row.Timestamp,
			Score:     score,
			Batches:   batches,
		})
	}

	writeJSON(w, points)
}

type SubmissionSummary struct {
	ID              string     `json:"id"`
	BatchID         string     `json:"batchId"`
	SourcePatientID string     `json:"sourcePatientId"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	Error           string     `json:"error,omitempty"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (h *MetricsHandler) handleRecentSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if val := r.URL.Query().Get("limit"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 && parsed <= 50 {
			limit = parsed
		}
	}

	var rows []struct {
		ID              string     `gorm:"column:id"`
		BatchID         string     `gorm:"column:batch_id"`
		SourcePatientID string     `gorm:"column:source_patient_id"`
		Status          string     `gorm:"column:status"`
		Attempts        int        `gorm:"column:attempts"`
		Error           string     `gorm:"column:error"`
		SubmittedAt     *time.Time `gorm:"column:submitted_at"`
		UpdatedAt       time.Time  `gorm:"column:updated_at"`
	}

	if err := h.db.WithContext(r.Context()).Raw(`
		SELECT id, batch_id, source_patient_id, status, attempts, COALESCE(error, '') AS error, submitted_at, updated_at
		FROM emr_submissions
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit).Scan(&rows).Error; err != nil {
		logger.Log.WithError(err).Error("failed to list submissions")
		http.Error(w, "failed to list submissions", http.StatusInternalServerError)
		return
	}

	submissions := make([]SubmissionSummary, 0, len(rows))
	for _, row := range rows {
		submissions = append(submissions, SubmissionSummary{
			ID:              row.ID,
			BatchID:         row.BatchID,
			SourcePatientID: row.SourcePatientID,
			Status:          row.Status,
			Attempts:        row.Attempts,
			Error:           row.Error,
			SubmittedAt:     row.SubmittedAt,
			UpdatedAt:       row.UpdatedAt,
		})
	}

	writeJSON(w, map[string]interface{}{"submissions": submissions})
}
