package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeCapacity struct {
	pinned time.Duration
}

func (f *fakeCapacity) AtCapacityFor() time.Duration { return f.pinned }

func checkHealth(t *testing.T, handler http.HandlerFunc) (int, HealthStatus) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	return rec.Code, status
}

func TestHealthCheckHandler_Healthy(t *testing.T) {
	code, status := checkHealth(t, HealthCheckHandler(&fakeCapacity{}, 30*time.Second))

	if code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %q", status.Status)
	}
	if status.Service != ServiceName {
		t.Errorf("Expected service %q, got %q", ServiceName, status.Service)
	}
}

func TestHealthCheckHandler_DegradedAtCapacity(t *testing.T) {
	capacity := &fakeCapacity{pinned: time.Minute}
	code, status := checkHealth(t, HealthCheckHandler(capacity, 30*time.Second))

	if code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", code)
	}
	if status.Status != "degraded" {
		t.Errorf("Expected status 'degraded', got %q", status.Status)
	}
}

func TestHealthCheckHandler_BrieflyAtCapacityStaysHealthy(t *testing.T) {
	capacity := &fakeCapacity{pinned: time.Second}
	code, status := checkHealth(t, HealthCheckHandler(capacity, 30*time.Second))

	if code != http.StatusOK {
		t.Errorf("Expected 200 for brief capacity pin, got %d", code)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %q", status.Status)
	}
}
