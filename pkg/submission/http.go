package submission

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tm2health/platform/pkg/common/logger"
)

type HTTPHandler struct {
	repo    *Repository
	started time.Time
}

func NewHTTPHandler(repo *Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo, started: time.Now().UTC()}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/submissions/recent", h.handleRecent).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountByStatus(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to count submissions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":               "submission-service",
		"status":                "healthy",
		"uptime_seconds":        time.Since(h.started).Seconds(),
		"submissions_by_status": counts,
		"timestamp":             time.Now().UTC(),
	})
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
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

	recs, err := h.repo.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list submissions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": recs,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
