// Package application wires the extraction components into a runnable
// pipeline: configuration loading, per-image processing, and concurrent
// batch execution against the identity registry.
package application

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/beyourahi/extract-usernames/infrastructure/consensus"
	"github.com/beyourahi/extract-usernames/infrastructure/vlm"
	"github.com/beyourahi/extract-usernames/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// DefaultVariants lists the preprocessing variants the classical engine
// runs, in execution order.
func DefaultVariants() []string {
	return []string{"balanced", "aggressive", "minimal"}
}

// Config is the complete specification for an extraction run and serves
// as the primary configuration entry point for the system.
type Config struct {
	// Voter configures variant voting for the classical engine.
	Voter consensus.VoterConfig `yaml:"voter" validate:"required"`
	// Correction configures post-vote misread repair.
	Correction consensus.CorrectionConfig `yaml:"correction" validate:"required"`
	// Merger configures dual-engine reconciliation.
	Merger consensus.MergerConfig `yaml:"merger" validate:"required"`
	// Classifier configures the confidence tier boundaries.
	Classifier consensus.ClassifierConfig `yaml:"classifier" validate:"required"`
	// Engine configures the holistic engine's confidence heuristics.
	Engine vlm.EngineConfig `yaml:"engine" validate:"required"`
	// Provider configures the vision model provider behind the holistic
	// engine.
	Provider ProviderConfig `yaml:"provider" validate:"required"`
	// Recognizer configures the classical engine sidecar.
	Recognizer RecognizerConfig `yaml:"recognizer" validate:"required"`
	// Registry configures duplicate detection and report file locations.
	Registry RegistryConfig `yaml:"registry" validate:"required"`
	// Batch configures concurrent batch execution.
	Batch BatchConfig `yaml:"batch" validate:"required"`
	// Existence configures the optional remote profile existence check.
	Existence ExistenceConfig `yaml:"existence"`
}

// ProviderConfig selects and tunes the vision model provider.
type ProviderConfig struct {
	// Name selects the provider implementation.
	Name string `yaml:"name" validate:"required,oneof=openai anthropic google"`
	// Model overrides the provider's default model. Optional.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	// Timeout bounds each model request.
	Timeout time.Duration `yaml:"timeout" validate:"required,min=1s,max=10m"`
	// RequestsPerSecond paces requests across all batch workers.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"required,gt=0"`
	// Burst allows temporary spikes above the sustained rate.
	Burst int `yaml:"burst" validate:"required,min=1"`
	// MaxRetries bounds automatic retries on transient failures.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
	// BreakerFailures is the consecutive failure count that opens the
	// circuit breaker.
	BreakerFailures int `yaml:"breaker_failures" validate:"required,min=1"`
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" validate:"required,min=1s"`
}

// RecognizerConfig locates the classical recognition sidecar.
type RecognizerConfig struct {
	// BaseURL is the sidecar's address.
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Timeout bounds each recognition request.
	Timeout time.Duration `yaml:"timeout" validate:"required,min=1s,max=10m"`
}

// RegistryConfig configures duplicate detection and the report files that
// persist accepted and review-bound results between runs.
type RegistryConfig struct {
	// NearDuplicateDistance is the edit-distance bound for the
	// near-duplicate scan. Zero disables it.
	NearDuplicateDistance int `yaml:"near_duplicate_distance" validate:"min=0,max=5"`
	// VerifiedPath is the markdown file holding verified usernames.
	VerifiedPath string `yaml:"verified_path" validate:"required"`
	// ReviewPath is the markdown file holding review-bound results.
	ReviewPath string `yaml:"review_path" validate:"required"`
	// ReportPath is the markdown file holding the per-run summary report.
	ReportPath string `yaml:"report_path" validate:"required"`
}

// BatchConfig configures concurrent batch execution.
type BatchConfig struct {
	// Workers is the number of concurrent pipeline workers.
	// Zero selects a worker count from the machine's CPU count.
	Workers int `yaml:"workers" validate:"min=0,max=64"`
	// Variants lists the preprocessing variants to run, in order.
	Variants []string `yaml:"variants" validate:"required,min=1,dive,required"`
}

// ExistenceConfig configures the optional remote profile existence check
// that runs during the sequential merge phase.
type ExistenceConfig struct {
	// Enabled turns the check on.
	Enabled bool `yaml:"enabled"`
	// Timeout bounds each existence probe.
	Timeout time.Duration `yaml:"timeout" validate:"omitempty,min=1s,max=1m"`
	// RequestsPerSecond paces probes against the remote service.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"omitempty,gt=0"`
}

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() Config {
	return Config{
		Voter:      consensus.DefaultVoterConfig(),
		Correction: consensus.DefaultCorrectionConfig(),
		Merger:     consensus.DefaultMergerConfig(),
		Classifier: consensus.DefaultClassifierConfig(),
		Engine:     vlm.DefaultEngineConfig(),
		Provider: ProviderConfig{
			Name:              "openai",
			APIKeyEnv:         "OPENAI_API_KEY",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
			MaxRetries:        2,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		Recognizer: RecognizerConfig{
			BaseURL: "http://127.0.0.1:8765",
			Timeout: 2 * time.Minute,
		},
		Registry: RegistryConfig{
			NearDuplicateDistance: domain.DefaultNearDuplicateDistance,
			VerifiedPath:          "verified_usernames.md",
			ReviewPath:            "needs_review.md",
			ReportPath:            "extraction_report.md",
		},
		Batch: BatchConfig{
			Workers:  0,
			Variants: DefaultVariants(),
		},
		Existence: ExistenceConfig{
			Enabled:           false,
			Timeout:           10 * time.Second,
			RequestsPerSecond: 1,
		},
	}
}

// LoadConfig reads a YAML configuration file, layers it over the
// defaults, and validates the result. A missing file is an error; an
// empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Strict decoding surfaces typos in config keys instead of silently
	// falling back to defaults.
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// WorkerCount resolves the effective worker count. An explicit setting
// is used as-is; the automatic choice starts from the CPU count and caps
// at two, because the always-active holistic engine dominates latency and
// extra workers just queue in the rate limiter.
func (c *Config) WorkerCount() int {
	if c.Batch.Workers > 0 {
		return c.Batch.Workers
	}
	workers := runtime.NumCPU() - 1
	if workers > 2 {
		workers = 2
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
