package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")
	t.Setenv("ANALYSIS_RETRY_MAX_ATTEMPTS", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("NOTIFY_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxUploadBytes != 5*1024*1024 {
		t.Fatalf("expected 5MiB upload limit, got %d", cfg.MaxUploadBytes)
	}
	if cfg.AnalysisRetryMaxAttempts != 1 {
		t.Fatalf("expected retries off by default, got %d attempts", cfg.AnalysisRetryMaxAttempts)
	}
	if cfg.AnalysisTemperature != 0.4 || cfg.AnalysisTopK != 32 || cfg.AnalysisTopP != 1 || cfg.AnalysisMaxOutputTokens != 4096 {
		t.Fatalf("unexpected generation defaults %+v", cfg)
	}
	if cfg.StorageBackend != "localfs" || cfg.NotifyBackend != "log" {
		t.Fatalf("unexpected backends %q/%q", cfg.StorageBackend, cfg.NotifyBackend)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api_port: "9000"
gemini_model: gemini-file
analysis_timeout: 45s
pipeline_max_concurrency: 4
storage_backend: gcs
gcs_bucket: intake-docs
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GEMINI_MODEL", "gemini-env")
	t.Setenv("API_PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("ANALYSIS_TIMEOUT", "")
	t.Setenv("PIPELINE_MAX_CONCURRENCY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9000" || cfg.AnalysisTimeout != 45*time.Second || cfg.PipelineMaxConcurrency != 4 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.GeminiModel != "gemini-env" {
		t.Fatalf("expected env to win over file, got %q", cfg.GeminiModel)
	}
	if cfg.StorageBackend != "gcs" || cfg.GCSBucket != "intake-docs" {
		t.Fatalf("unexpected storage config %q/%q", cfg.StorageBackend, cfg.GCSBucket)
	}
	if cfg.MaxUploadBytes != 5*1024*1024 {
		t.Fatalf("expected defaults kept for keys missing from file, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadRejectsUploadLimitAboveInlineCeiling(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MAX_UPLOAD_BYTES", "31457280")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "MAX_UPLOAD_BYTES") {
		t.Fatalf("expected MAX_UPLOAD_BYTES validation error, got %v", err)
	}
}

func TestValidateRequiresBucketForGCS(t *testing.T) {
	cfg := Defaults()
	cfg.StorageBackend = "gcs"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "GCS_BUCKET") {
		t.Fatalf("expected GCS_BUCKET error, got %v", err)
	}
	cfg.NotifyBackend = "kafka"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "NOTIFY_BACKEND") {
		t.Fatalf("expected NOTIFY_BACKEND error, got %v", err)
	}
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ANALYSIS_TIMEOUT", "soon")
	t.Setenv("API_RATE_LIMIT_RPS", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AnalysisTimeout != 120*time.Second || cfg.APIRateLimitRPS != 0 {
		t.Fatalf("expected defaults for malformed values, got %v/%v", cfg.AnalysisTimeout, cfg.APIRateLimitRPS)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestAnalysisRetryAndBreakerAreOptIn(t *testing.T) {
	cfg := Defaults()
	if cfg.AnalysisRetryMaxAttempts != 1 || cfg.AnalysisBreakerEnabled {
		t.Fatalf("expected single attempt and no breaker by default, got attempts=%d breaker=%v",
			cfg.AnalysisRetryMaxAttempts, cfg.AnalysisBreakerEnabled)
	}
}
