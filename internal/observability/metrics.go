package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_gateway_active_sessions",
		Help: "Number of streaming sessions currently active or finalizing",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisper_gateway_sessions_total",
		Help: "Total number of streaming sessions accepted",
	})

	admissionRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisper_gateway_admission_rejections_total",
		Help: "Connections refused because the session capacity was reached",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisper_gateway_session_duration_seconds",
		Help:    "Duration of streaming sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Outbound message metrics
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_gateway_messages_total",
		Help: "Outbound protocol messages by type",
	}, []string{"type"}) // type: "partial", "final", "error"

	errorsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_gateway_errors_total",
		Help: "Outbound error messages by protocol error code",
	}, []string{"code"})

	// Inference metrics
	inferenceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_gateway_inference_requests_total",
		Help: "Total inference calls into the engine adapter",
	}, []string{"backend", "status"})

	inferenceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whisper_gateway_inference_latency_seconds",
		Help:    "Engine adapter inference latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"backend"})

	inferenceQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisper_gateway_inference_queue_wait_seconds",
		Help:    "Time spent waiting for the shared engine serialization slot",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})

	// Audio metrics
	audioSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisper_gateway_audio_samples_total",
		Help: "Total audio samples received across all sessions",
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "whisper_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"backend"})
)

// SessionMetrics tracks metrics for a single streaming session
type SessionMetrics struct {
	startTime time.Time
}

// NewSessionMetrics creates a tracker for one session and records its start
func NewSessionMetrics() *SessionMetrics {
	activeSessions.Inc()
	totalSessions.Inc()
	return &SessionMetrics{startTime: time.Now()}
}

// RecordEnd records the end of a session
func (m *SessionMetrics) RecordEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordAudioSamples records samples received for the session
func (m *SessionMetrics) RecordAudioSamples(n int) {
	audioSamples.Add(float64(n))
}

// RecordMessage records an outbound protocol message
func RecordMessage(msgType string) {
	messagesSent.WithLabelValues(msgType).Inc()
}

// RecordErrorCode records an outbound error message by protocol code
func RecordErrorCode(code string) {
	errorsSent.WithLabelValues(code).Inc()
}

// RecordAdmissionRejection records a refused connection
func RecordAdmissionRejection() {
	admissionRejections.Inc()
}

// RecordInference records one engine adapter call
func RecordInference(backend string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	inferenceRequests.WithLabelValues(backend, status).Inc()
	inferenceLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordInferenceQueueWait records time spent waiting for the engine slot
func RecordInferenceQueueWait(wait time.Duration) {
	inferenceQueueWait.Observe(wait.Seconds())
}

// UpdateCircuitBreakerState updates the circuit breaker state gauge
func UpdateCircuitBreakerState(backend string, state int) {
	circuitBreakerState.WithLabelValues(backend).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the circuit breaker failure counter
func IncrementCircuitBreakerFailures(backend string) {
	circuitBreakerFailures.WithLabelValues(backend).Inc()
}
