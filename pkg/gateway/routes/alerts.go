package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/tm2health/platform/pkg/common/logger"
)

type AlertsHandler struct {
	db *gorm.DB
}

type Alert struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	UpdatedAt string                 `json:"updatedAt"`
}

type AlertSummary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

type AlertsResponse struct {
	Summary AlertSummary `json:"summary"`
	Items   []Alert      `json:"items"`
}

func NewAlertsHandler(db *gorm.DB) *AlertsHandler {
	return &AlertsHandler{db: db}
}

func (h *AlertsHandler) Register(r *mux.Router) {
	r.HandleFunc("/alerts", h.handleList).Methods(http.MethodGet)
}

// handleList surfaces failed batches and struggling submissions from
// the last week so operators see problems without digging into logs.
func (h *AlertsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	summary := AlertSummary{}
	if err := h.db.Raw(`
		SELECT
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS critical,
			SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END) AS warning,
			SUM(CASE WHEN status IN ('completed', 'published') THEN 1 ELSE 0 END) AS info
		FROM processing_batches
		WHERE updated_at > NOW() - INTERVAL '7 days'
	`).Scan(&summary).Error; err != nil {
		logger.Log.WithError(err).Error("failed to summarize alerts")
		http.Error(w, "failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	var batchRows []struct {
		ID        string `gorm:"column:id"`
		Filename  string `gorm:"column:filename"`
		Status    string `gorm:"column:status"`
		Error     string `gorm:"column:error"`
		Summary   []byte `gorm:"column:summary"`
		UpdatedAt string `gorm:"column:updated_at"`
	}

	if err := h.db.Raw(`
		SELECT id, filename, status, COALESCE(error, '') AS error, summary, TO_CHAR(updated_at, 'YYYY-MM-DD"T"HH24:MI:SSZ') AS updated_at
		FROM processing_batches
		WHERE status IN ('failed', 'accepted')
		ORDER BY updated_at DESC
		LIMIT 25
	`).Scan(&batchRows).Error; err != nil {
		logger.Log.WithError(err).Error("failed to load batch alerts")
		http.Error(w, "failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	items := make([]Alert, 0, len(batchRows))
	for _, row := range batchRows {
		detail := map[string]interface{}{"filename": row.Filename}
		if len(row.Summary) > 0 {
			stats := map[string]interface{}{}
			if err := json.Unmarshal(row.Summary, &stats); err == nil {
				detail["statistics"] = stats
			}
		}

		items = append(items, Alert{
			ID:        row.ID,
			Source:    "ingestion",
			Status:    row.Status,
			Error:     row.Error,
			Detail:    detail,
			UpdatedAt: row.UpdatedAt,
		})
	}

	var subRows []struct {
		ID              string `gorm:"column:id"`
		BatchID         string `gorm:"column:batch_id"`
		SourcePatientID string `gorm:"column:source_patient_id"`
		Attempts        int    `gorm:"column:attempts"`
		Error           string `gorm:"column:error"`
		UpdatedAt       string `gorm:"column:updated_at"`
	}

	if err := h.db.Raw(`
		SELECT id, batch_id, source_patient_id, attempts, COALESCE(error, '') AS error, TO_CHAR(updated_at, 'YYYY-MM-DD"T"HH24:MI:SSZ') AS updated_at
		FROM emr_submissions
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT 25
	`).Scan(&subRows).Error; err != nil {
		logger.Log.WithError(err).Error("failed to load submission alerts")
		http.Error(w, "failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	for _, row := range subRows {
		summary.Critical += 1
		items = append(items, Alert{
			ID:     row.ID,
			Source: "submission",
			Status: "failed",
			Error:  row.Error,
			Detail: map[string]interface{}{
				"batch_id":          row.BatchID,
				"source_patient_id": row.SourcePatientID,
				"attempts":          row.Attempts,
			},
			UpdatedAt: row.UpdatedAt,
		})
	}

	writeJSON(w, AlertsResponse{Summary: summary, Items: items})
}
