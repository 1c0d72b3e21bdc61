package observability

import (
	"encoding/json"
	"net/http"
	"time"
)

// ServiceName is reported in the liveness body so upstream callers can tell
// which deployment answered.
const ServiceName = "voicedform-whisper"

// HealthStatus is the liveness response body
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// CapacityReporter exposes how long the gateway has been pinned at its
// session capacity. A zero duration means capacity is available.
type CapacityReporter interface {
	AtCapacityFor() time.Duration
}

// HealthCheckHandler handles liveness requests. It reports healthy while new
// sessions can be admitted, and degraded with a 503 once the gateway has sat
// at capacity longer than degradedAfter. This is an operational signal for
// load balancers, not an admission gate: admission itself is enforced per
// connection by the session manager.
func HealthCheckHandler(capacity CapacityReporter, degradedAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:  "healthy",
			Service: ServiceName,
		}
		code := http.StatusOK

		if capacity != nil && degradedAfter > 0 {
			if pinned := capacity.AtCapacityFor(); pinned >= degradedAfter {
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}
