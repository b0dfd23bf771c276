package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tm2health/platform/pkg/common/config"
	"github.com/tm2health/platform/pkg/common/httpclient"
	"github.com/tm2health/platform/pkg/common/models"
)

// Client submits EMR entities to an OpenMRS-compatible REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

// NewClient builds the outbound EMR client. When a token URL and client
// ID are configured, requests carry OAuth2 client credentials tokens.
func NewClient(cfg *config.Config) *Client {
	base := httpclient.New(cfg.EMRTimeout)

	client := base
	if cfg.EMRTokenURL != "" && cfg.EMRClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.EMRClientID,
			ClientSecret: cfg.EMRClientSecret,
			TokenURL:     cfg.EMRTokenURL,
			Scopes:       cfg.EMRScopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = cfg.EMRTimeout
	}

	attempts := cfg.EMRMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.EMRBaseURL, "/"),
		httpClient: client,
		attempts:   attempts,
		backoff:    500 * time.Millisecond,
	}
}

// SubmitRecord pushes one patient bundle. Entities are created in
// dependency order so references resolve on the receiving side.
func (c *Client) SubmitRecord(ctx context.Context, record models.EMRRecord) error {
	if err := c.post(ctx, "/patient", record.Patient); err != nil {
		return fmt.Errorf("submit patient %s: %w", record.Patient.PatientID, err)
	}
	for _, encounter := range record.Encounters {
		if err := c.post(ctx, "/encounter", encounter); err != nil {
			return fmt.Errorf("submit encounter %s: %w", encounter.EncounterID, err)
		}
	}
	for _, condition := range record.Conditions {
		if err := c.post(ctx, "/condition", condition); err != nil {
			return fmt.Errorf("submit condition %s: %w", condition.ConditionID, err)
		}
	}
	for _, observation := range record.Observations {
		if err := c.post(ctx, "/obs", observation); err != nil {
			return fmt.Errorf("submit observation %s: %w", observation.ObservationID, err)
		}
	}
	return nil
}

// Ping checks connectivity to the EMR API.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("emr api returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return httpclient.Retry(ctx, c.attempts, c.backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			apiErr := fmt.Errorf("emr api returned %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(snippet)))
			if retriableStatus(resp.StatusCode) {
				return apiErr
			}
			return httpclient.Permanent(apiErr)
		}
		io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// retriableStatus reports whether the EMR response is worth another
// attempt. Client errors are final, apart from request timeouts and
// throttling.
func retriableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
