package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tm2health/platform/pkg/common/config"
	"github.com/tm2health/platform/pkg/common/httpclient"
	"github.com/tm2health/platform/pkg/common/logger"
	"github.com/tm2health/platform/pkg/gateway/middleware"
)

// IngestionProxy forwards upload and status traffic to the ingestion
// service.
type IngestionProxy struct {
	Client *http.Client
	Cfg    *config.Config
}

func RegisterIngestionRoutes(router *mux.Router, proxy *IngestionProxy) {
	if proxy == nil || proxy.Client == nil || proxy.Cfg == nil {
		panic("ingestion proxy requires client and config")
	}

	router.HandleFunc("/ingest/trigger", proxy.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/ingest/status/{id}", proxy.handleBatchStatus).Methods(http.MethodGet)
	router.HandleFunc("/ingest/recent", proxy.handleRecentBatches).Methods(http.MethodGet)
	router.HandleFunc("/status", proxy.handleSystemStatus).Methods(http.MethodGet)
	router.HandleFunc("/data/cleanup-stats", proxy.handleCleanupStats).Methods(http.MethodGet)
	router.HandleFunc("/emr/preview", proxy.handlePreview).Methods(http.MethodGet)
	router.HandleFunc("/terminology/stats", proxy.handleTerminologyStats).Methods(http.MethodGet)
	router.HandleFunc("/terminology/mappings", proxy.handleAddMapping).Methods(http.MethodPost)
}

// handleUpload relays the multipart body untouched. The stream cannot
// be replayed, so the upload is sent exactly once.
func (p *IngestionProxy) handleUpload(w http.ResponseWriter, r *http.Request) {
	corrID := requestID(r)
	url := fmt.Sprintf("%s/api/v1/ingest/trigger", p.Cfg.IngestionBaseURL)

	ctx, cancel := context.WithTimeout(r.Context(), p.Cfg.GatewayRequestTimeout)
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r.Body)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	outReq.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	outReq.Header.Set("X-Request-ID", corrID)
	setForwardedUser(outReq, r)
	outReq.ContentLength = r.ContentLength

	resp, err := p.Client.Do(outReq)
	if err != nil {
		logger.Log.WithError(err).Error("failed to reach ingestion service")
		http.Error(w, "ingestion service unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Log.WithError(err).Warn("failed to relay upload response")
	}

	logger.Log.WithFields(map[string]interface{}{
		"url":        url,
		"status":     resp.StatusCode,
		"request_id": corrID,
	}).Info("forwarded upload to ingestion service")
}

func (p *IngestionProxy) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p.passthrough(w, r, fmt.Sprintf("%s/api/v1/ingest/status/%s", p.Cfg.IngestionBaseURL, id))
}

func (p *IngestionProxy) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	p.passthrough(w, r, fmt.Sprintf("%s/api/v1/status", p.Cfg.IngestionBaseURL))
}

func (p *IngestionProxy) handleCleanupStats(w http.ResponseWriter, r *http.Request) {
	url := fmt.Sprintf("%s/api/v1/data/cleanup-stats", p.Cfg.IngestionBaseURL)
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}
	p.passthrough(w, r, url)
}

func (p *IngestionProxy) handleRecentBatches(w http.ResponseWriter, r *http.Request) {
	url := fmt.Sprintf("%s/api/v1/ingest/recent", p.Cfg.IngestionBaseURL)
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}
	p.passthrough(w, r, url)
}

func (p *IngestionProxy) handlePreview(w http.ResponseWriter, r *http.Request) {
	p.passthrough(w, r, fmt.Sprintf("%s/api/v1/emr/preview", p.Cfg.IngestionBaseURL))
}

func (p *IngestionProxy) handleTerminologyStats(w http.ResponseWriter, r *http.Request) {
	p.passthrough(w, r, fmt.Sprintf("%s/api/v1/terminology/stats", p.Cfg.IngestionBaseURL))
}

// handleAddMapping relays the JSON body as-is; the ingestion service
// owns validation.
func (p *IngestionProxy) handleAddMapping(w http.ResponseWriter, r *http.Request) {
	corrID := requestID(r)
	url := fmt.Sprintf("%s/api/v1/terminology/mappings", p.Cfg.IngestionBaseURL)

	ctx, cancel := context.WithTimeout(r.Context(), p.Cfg.GatewayRequestTimeout)
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r.Body)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	outReq.Header.Set("Content-Type", "application/json")
	outReq.Header.Set("X-Request-ID", corrID)
	setForwardedUser(outReq, r)

	resp, err := p.Client.Do(outReq)
	if err != nil {
		logger.Log.WithError(err).Error("failed to reach ingestion service")
		http.Error(w, "ingestion service unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Log.WithError(err).Warn("failed to relay mapping response")
	}
}

func (p *IngestionProxy) passthrough(w http.ResponseWriter, r *http.Request, url string) {
	out, status, err := p.forward(r, url)
	if err != nil {
		logger.Log.WithError(err).Error("failed to forward to ingestion service")
		http.Error(w, "ingestion service unavailable", http.StatusBadGateway)
		return
	}
	respondJSON(w, status, out)
}

func (p *IngestionProxy) forward(r *http.Request, url string) (interface{}, int, error) {
	corrID := requestID(r)

	ctx, cancel := context.WithTimeout(r.Context(), p.Cfg.GatewayRequestTimeout)
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	outReq.Header.Set("Accept", "application/json")
	outReq.Header.Set("X-Request-ID", corrID)
	setForwardedUser(outReq, r)

	var resp *http.Response
	if err := httpclient.Retry(ctx, 3, 200*time.Millisecond, func() error {
		var doErr error
		resp, doErr = p.Client.Do(outReq)
		return doErr
	}); err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var out interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		out = map[string]interface{}{"status": resp.Status}
	}

	logger.Log.WithFields(map[string]interface{}{
		"url":        url,
		"status":     resp.StatusCode,
		"request_id": corrID,
	}).Info("forwarded request to ingestion service")

	return out, resp.StatusCode, nil
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

// setForwardedUser carries the authenticated subject downstream so
// service logs can attribute uploads without their own token handling.
func setForwardedUser(out *http.Request, in *http.Request) {
	if claims := middleware.UserClaims(in.Context()); claims != nil {
		out.Header.Set("X-Forwarded-User", claims.Subject)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}
