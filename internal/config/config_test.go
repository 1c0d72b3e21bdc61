package config

import (
	"os"
	"testing"
	"time"
)

func setStubEnv(t *testing.T) {
	t.Helper()
	os.Setenv("ENGINE_BACKEND", "stub")
	t.Cleanup(func() { os.Unsetenv("ENGINE_BACKEND") })
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setStubEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}
	if cfg.PartialChunkThreshold != 16 {
		t.Errorf("Expected default PartialChunkThreshold 16, got %d", cfg.PartialChunkThreshold)
	}
	if cfg.MaxSessions != 10 {
		t.Errorf("Expected default MaxSessions 10, got %d", cfg.MaxSessions)
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("Expected default IdleTimeout 30s, got %v", cfg.IdleTimeout)
	}
	if cfg.DefaultLanguage != "en" {
		t.Errorf("Expected default DefaultLanguage 'en', got '%s'", cfg.DefaultLanguage)
	}
	if cfg.DefaultModelSize != "base" {
		t.Errorf("Expected default DefaultModelSize 'base', got '%s'", cfg.DefaultModelSize)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setStubEnv(t)
	os.Setenv("MAX_SESSIONS", "3")
	os.Setenv("IDLE_TIMEOUT", "5s")
	os.Setenv("PARTIAL_CHUNK_THRESHOLD", "4")
	defer os.Unsetenv("MAX_SESSIONS")
	defer os.Unsetenv("IDLE_TIMEOUT")
	defer os.Unsetenv("PARTIAL_CHUNK_THRESHOLD")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.MaxSessions != 3 {
		t.Errorf("Expected MaxSessions 3, got %d", cfg.MaxSessions)
	}
	if cfg.IdleTimeout != 5*time.Second {
		t.Errorf("Expected IdleTimeout 5s, got %v", cfg.IdleTimeout)
	}
	if cfg.PartialChunkThreshold != 4 {
		t.Errorf("Expected PartialChunkThreshold 4, got %d", cfg.PartialChunkThreshold)
	}
}

func TestLoadFromEnv_WhisperRequiresURL(t *testing.T) {
	os.Setenv("ENGINE_BACKEND", "whisper")
	os.Unsetenv("WHISPER_API_URL")
	defer os.Unsetenv("ENGINE_BACKEND")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when ENGINE_BACKEND=whisper and WHISPER_API_URL unset")
	}
}

func TestLoadFromEnv_DeepgramRequiresKey(t *testing.T) {
	os.Setenv("ENGINE_BACKEND", "deepgram")
	os.Unsetenv("DEEPGRAM_API_KEY")
	defer os.Unsetenv("ENGINE_BACKEND")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when ENGINE_BACKEND=deepgram and DEEPGRAM_API_KEY unset")
	}
}

func TestLoadFromEnv_UnknownBackend(t *testing.T) {
	os.Setenv("ENGINE_BACKEND", "parakeet")
	defer os.Unsetenv("ENGINE_BACKEND")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown ENGINE_BACKEND")
	}
}

func TestValidate_ModelSize(t *testing.T) {
	setStubEnv(t)
	os.Setenv("DEFAULT_MODEL_SIZE", "enormous")
	defer os.Unsetenv("DEFAULT_MODEL_SIZE")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for invalid DEFAULT_MODEL_SIZE")
	}
}

func TestIsValidModelSize(t *testing.T) {
	for _, size := range []string{"tiny", "base", "small", "medium", "large"} {
		if !IsValidModelSize(size) {
			t.Errorf("Expected %q to be a valid model size", size)
		}
	}
	if IsValidModelSize("base.en") {
		t.Error("Expected 'base.en' to be rejected")
	}
	if IsValidModelSize("") {
		t.Error("Expected empty model size to be rejected")
	}
}
