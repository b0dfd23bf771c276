package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tm2health/platform/pkg/common/logger"
	"github.com/tm2health/platform/pkg/common/models"
	"github.com/tm2health/platform/pkg/storage"
	"github.com/tm2health/platform/pkg/terminology"
	"github.com/tm2health/platform/pkg/tm2"
)

type HTTPHandler struct {
	service    *Service
	translator *terminology.Translator
	maxBody    int64
}

func NewHTTPHandler(service *Service, translator *terminology.Translator, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, translator: translator, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/ingest/trigger", h.handleTrigger).Methods(http.MethodPost)
	router.HandleFunc("/ingest/status/{id}", h.handleBatchStatus).Methods(http.MethodGet)
	router.HandleFunc("/ingest/recent", h.handleRecentBatches).Methods(http.MethodGet)
	router.HandleFunc("/status", h.handleSystemStatus).Methods(http.MethodGet)
	router.HandleFunc("/data/cleanup-stats", h.handleCleanupStats).Methods(http.MethodGet)
	router.HandleFunc("/emr/preview", h.handlePreview).Methods(http.MethodGet)
	router.HandleFunc("/terminology/stats", h.handleTerminologyStats).Methods(http.MethodGet)
	router.HandleFunc("/terminology/mappings", h.handleAddMapping).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Log.WithError(err).Warn("upload without file field")
		http.Error(w, "multipart field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "only CSV files are supported", http.StatusBadRequest)
		return
	}

	result, err := h.service.ProcessFile(r.Context(), header.Filename, file)
	if err != nil {
		if tm2.IsBatchError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to process upload")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	fields := map[string]interface{}{
		"batch_id": result.ProcessingID,
		"filename": header.Filename,
	}
	if user := r.Header.Get("X-Forwarded-User"); user != "" {
		fields["uploaded_by"] = user
	}
	logger.Log.WithFields(fields).Info("upload processed")

	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	batch, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "batch not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch batch status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

func (h *HTTPHandler) handleRecentBatches(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if parsed > 50 {
			parsed = 50
		}
		limit = parsed
	}

	batches, err := h.service.RecentBatches(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list batches")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
	})
}

func (h *HTTPHandler) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.SystemStatus(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute system status")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *HTTPHandler) handleCleanupStats(w http.ResponseWriter, r *http.Request) {
	var err error
	var stats *models.DataQualityStatistics
	if id := r.URL.Query().Get("batch_id"); id != "" {
		stats, err = h.service.BatchStats(r.Context(), id)
	} else {
		stats, err = h.service.CleanupStats(r.Context())
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "batch not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, storage.ErrNoStats) {
			http.Error(w, "no statistics available yet", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load cleanup statistics")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	records, stats, err := h.service.PreviewEMR(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to build EMR preview")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":    records,
		"statistics": stats,
	})
}

func (h *HTTPHandler) handleTerminologyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.translator.Stats())
}

// handleAddMapping registers one extra translation at runtime. The
// mapping lives in this process only; table files are the durable way
// to extend vocabularies.
func (h *HTTPHandler) handleAddMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind    string `json:"kind"`
		Native  string `json:"native"`
		English string `json:"english"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req.Native = strings.TrimSpace(req.Native)
	req.English = strings.TrimSpace(req.English)
	if req.Native == "" || req.English == "" {
		http.Error(w, "native and english terms are required", http.StatusBadRequest)
		return
	}

	switch req.Kind {
	case "condition":
		h.translator.AddCondition(req.Native, req.English)
	case "system_type":
		h.translator.AddSystemType(req.Native, req.English)
	case "severity":
		h.translator.AddSeverity(req.Native, req.English)
	default:
		http.Error(w, "kind must be condition, system_type or severity", http.StatusBadRequest)
		return
	}

	logger.Log.WithFields(map[string]interface{}{
		"kind":   req.Kind,
		"native": req.Native,
	}).Info("terminology mapping added")
	writeJSON(w, http.StatusCreated, h.translator.Stats())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
