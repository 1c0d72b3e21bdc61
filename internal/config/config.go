package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Engine backend names accepted by ENGINE_BACKEND.
const (
	BackendWhisper  = "whisper"
	BackendDeepgram = "deepgram"
	BackendStub     = "stub"
)

// ValidModelSizes are the Whisper model sizes accepted in session handshakes
// and as DEFAULT_MODEL_SIZE.
var ValidModelSizes = []string{"tiny", "base", "small", "medium", "large"}

// Config holds all configuration for the transcription gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// SampleRate is the fixed audio sample rate in Hz. Callers must send raw
	// little-endian float32 mono samples at this rate; the rate itself is
	// agreed out of band, not negotiated on the wire.
	SampleRate int `envconfig:"SAMPLE_RATE" default:"16000"`

	// PartialChunkThreshold is how many audio chunks accumulate before a
	// partial transcript is attempted (16 chunks of ~1024 samples is about
	// one second of audio at 16kHz).
	PartialChunkThreshold int `envconfig:"PARTIAL_CHUNK_THRESHOLD" default:"16"`

	// Session admission and lifecycle
	MaxSessions      int           `envconfig:"MAX_SESSIONS" default:"10"`
	IdleTimeout      time.Duration `envconfig:"IDLE_TIMEOUT" default:"30s"`
	InferenceTimeout time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"30s"`

	// Recognition hints applied when the caller's handshake omits them
	DefaultLanguage  string `envconfig:"DEFAULT_LANGUAGE" default:"en"`
	DefaultModelSize string `envconfig:"DEFAULT_MODEL_SIZE" default:"base"`

	// Engine backend selection: whisper, deepgram, or stub
	EngineBackend string `envconfig:"ENGINE_BACKEND" default:"whisper"`

	// Whisper HTTP inference server (whisper.cpp server or Modal deployment)
	WhisperAPIURL string `envconfig:"WHISPER_API_URL" default:""`

	// Deepgram pre-recorded API configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// CapacityDegradedAfter is how long the gateway may sit at session
	// capacity before the liveness endpoint starts reporting degraded.
	CapacityDegradedAfter time.Duration `envconfig:"CAPACITY_DEGRADED_AFTER" default:"30s"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.EngineBackend {
	case BackendWhisper:
		if c.WhisperAPIURL == "" {
			return fmt.Errorf("WHISPER_API_URL is required when ENGINE_BACKEND=whisper")
		}
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when ENGINE_BACKEND=deepgram")
		}
	case BackendStub:
		// no external dependencies
	default:
		return fmt.Errorf("unknown ENGINE_BACKEND %q (expected whisper, deepgram, or stub)", c.EngineBackend)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.PartialChunkThreshold <= 0 {
		return fmt.Errorf("PARTIAL_CHUNK_THRESHOLD must be positive, got %d", c.PartialChunkThreshold)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.MaxSessions)
	}
	if !IsValidModelSize(c.DefaultModelSize) {
		return fmt.Errorf("DEFAULT_MODEL_SIZE %q is not one of %v", c.DefaultModelSize, ValidModelSizes)
	}

	return nil
}

// IsValidModelSize reports whether size is an accepted Whisper model size.
func IsValidModelSize(size string) bool {
	for _, s := range ValidModelSizes {
		if s == size {
			return true
		}
	}
	return false
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
