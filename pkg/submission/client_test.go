package submission

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tm2health/platform/pkg/common/config"
	"github.com/tm2health/platform/pkg/common/models"
)

func newTestClient(baseURL string, retries int) *Client {
	return NewClient(&config.Config{
		EMRBaseURL:    baseURL,
		EMRTimeout:    5 * time.Second,
		EMRMaxRetries: retries,
	})
}

func sampleRecord() models.EMRRecord {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return models.EMRRecord{
		Patient: models.EMRPatient{PatientID: "pat_aabbccdd", SourceID: "PAT001", CreatedAt: now},
		Encounters: []models.EMREncounter{
			{EncounterID: "enc_11223344", PatientID: "pat_aabbccdd", EncounterDate: now},
		},
		Conditions: []models.EMRCondition{
			{ConditionID: "cond_55667788", PatientID: "pat_aabbccdd", ConditionName: "Headache"},
			{ConditionID: "cond_99aabbcc", PatientID: "pat_aabbccdd", ConditionName: "Fever"},
		},
		Observations: []models.EMRObservation{
			{ObservationID: "obs_ddeeff00", PatientID: "pat_aabbccdd"},
		},
		CreatedAt: now,
	}
}

func TestSubmitRecordPostsEntitiesInOrder(t *testing.T) {
	var mu sync.Mutex
	var paths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	if err := client.SubmitRecord(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("SubmitRecord failed: %v", err)
	}

	want := []string{"/patient", "/encounter", "/condition", "/condition", "/obs"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d requests, got %d: %v", len(want), len(paths), paths)
	}
	for i, path := range want {
		if paths[i] != path {
			t.Errorf("request %d hit %q, want %q", i, paths[i], path)
		}
	}
}

func TestSubmitRecordServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	err := client.SubmitRecord(context.Background(), sampleRecord())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "patient") {
		t.Errorf("error should name the failing entity: %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestSubmitRecordRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()

		if n == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	record := models.EMRRecord{Patient: models.EMRPatient{PatientID: "pat_aabbccdd", SourceID: "PAT001"}}
	if err := client.SubmitRecord(context.Background(), record); err != nil {
		t.Fatalf("SubmitRecord should recover from a transient failure: %v", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestSubmitRecordDoesNotRetryClientError(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, "unknown identifier", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	record := models.EMRRecord{Patient: models.EMRPatient{PatientID: "pat_aabbccdd", SourceID: "PAT001"}}
	err := client.SubmitRecord(context.Background(), record)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should carry the status code: %v", err)
	}
	if requests != 1 {
		t.Errorf("client errors must not be retried, got %d requests", requests)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestPingUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error for unhealthy EMR API")
	}
}
