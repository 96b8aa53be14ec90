package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"artificer/internal/types"
)

// Config holds all artificer configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Model routing for the retry/fallback ladder
	Models ModelsConfig `yaml:"models"`

	// Generation orchestrator settings
	Generation GenerationConfig `yaml:"generation"`

	// Validator settings
	Validation ValidationConfig `yaml:"validation"`

	// Finetuning pool and training pipeline
	Training TrainingConfig `yaml:"training"`

	// Durable state layout
	Storage StorageConfig `yaml:"storage"`

	// Event bus tuning
	Events EventsConfig `yaml:"events"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ModelsConfig maps artifact types onto the ladder's model order.
type ModelsConfig struct {
	// DefaultLocal is the preferred local model when no per-type override exists.
	DefaultLocal string `yaml:"default_local"`

	// Preferred maps artifact type -> preferred local model id.
	Preferred map[string]string `yaml:"preferred"`

	// Fallbacks are local models tried, in order, after the preferred rung.
	Fallbacks []string `yaml:"fallbacks"`

	// Remotes are cloud models tried, in order, after all local rungs.
	Remotes []string `yaml:"remotes"`

	// Temperature is the default sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// Temperatures holds per-type temperature overrides.
	Temperatures map[string]float64 `yaml:"temperatures"`
}

// PreferredFor returns the preferred local model for an artifact type.
func (m ModelsConfig) PreferredFor(artifactType types.ArtifactType) string {
	if id, ok := m.Preferred[artifactType.Normalize().String()]; ok && id != "" {
		return id
	}
	return m.DefaultLocal
}

// TemperatureFor returns the sampling temperature for an artifact type.
func (m ModelsConfig) TemperatureFor(artifactType types.ArtifactType) float64 {
	if t, ok := m.Temperatures[artifactType.Normalize().String()]; ok && t > 0 {
		return t
	}
	return m.Temperature
}

// GenerationConfig configures the orchestrator and its ladder.
type GenerationConfig struct {
	MaxRetries          int     `yaml:"max_retries"`
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"`
	AttemptTimeout      string  `yaml:"attempt_timeout"`
	MaxConcurrentJobs   int     `yaml:"max_concurrent_jobs"`
	MaxJobs             int     `yaml:"max_jobs"`
	JobRetention        string  `yaml:"job_retention"`
	JanitorInterval     string  `yaml:"janitor_interval"`
	BackoffInitial      string  `yaml:"backoff_initial"`
	BackoffMax          string  `yaml:"backoff_max"`
	SyncWait            string  `yaml:"sync_wait"`
	RenderHTML          bool    `yaml:"render_html"`
}

// ValidationConfig configures the validator.
type ValidationConfig struct {
	// PassingThreshold is the is_valid floor. Distinct from the
	// orchestrator's acceptance threshold; keep them independent.
	PassingThreshold float64 `yaml:"passing_threshold"`

	// RulesPath points at an optional YAML rule-set override file.
	RulesPath string `yaml:"rules_path"`

	// HotReload watches RulesPath and applies edits live.
	HotReload bool `yaml:"hot_reload"`

	// MaxBatch caps ValidateBatch input size.
	MaxBatch int `yaml:"max_batch"`

	// BatchWorkers bounds ValidateBatch parallelism.
	BatchWorkers int `yaml:"batch_workers"`
}

// CurriculumConfig tunes curriculum-learning stage progression.
type CurriculumConfig struct {
	MinEvaluations   int     `yaml:"min_evaluations"`
	ProgressionScore float64 `yaml:"progression_score"`
}

// RewardConfig tunes the reward calculator.
type RewardConfig struct {
	DecayRate        float64 `yaml:"decay_rate"`
	DecayFloor       float64 `yaml:"decay_floor"`
	DifficultyWeight float64 `yaml:"difficulty_weight"`
	BalanceThreshold int     `yaml:"balance_threshold"`
	BalanceFloor     float64 `yaml:"balance_floor"`
}

// AugmenterConfig tunes data augmentation.
type AugmenterConfig struct {
	Factor          int     `yaml:"factor"`
	QualityDiscount float64 `yaml:"quality_discount"`
}

// ActiveLearnerConfig weights the informativeness axes.
type ActiveLearnerConfig struct {
	UncertaintyWeight float64 `yaml:"uncertainty_weight"`
	DiversityWeight   float64 `yaml:"diversity_weight"`
	QualityWeight     float64 `yaml:"quality_weight"`
}

// PerformanceConfig tunes train/val splitting and early stopping.
type PerformanceConfig struct {
	ValRatio             float64 `yaml:"val_ratio"`
	MinValidationSamples int     `yaml:"min_validation_samples"`
	Seed                 int64   `yaml:"seed"`
}

// TrainingConfig configures the finetuning pool and batch emission.
type TrainingConfig struct {
	IncrementalThreshold int     `yaml:"incremental_threshold"`
	MajorThreshold       int     `yaml:"major_threshold"`
	AdmissionScore       float64 `yaml:"admission_score"`
	QualityFloor         float64 `yaml:"quality_floor"`
	SuccessFloor         float64 `yaml:"success_floor"`
	MinBatch             int     `yaml:"min_batch"`
	MaxBatch             int     `yaml:"max_batch"`
	TargetQuality        float64 `yaml:"target_quality"`
	FailureThreshold     float64 `yaml:"failure_threshold"`
	MaxPoolSize          int     `yaml:"max_pool_size"`

	Curriculum    CurriculumConfig    `yaml:"curriculum"`
	Reward        RewardConfig        `yaml:"reward"`
	Augmenter     AugmenterConfig     `yaml:"augmenter"`
	ActiveLearner ActiveLearnerConfig `yaml:"active_learner"`
	Performance   PerformanceConfig   `yaml:"performance"`
}

// StorageConfig fixes the on-disk layout of the durable stores.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

func (s StorageConfig) VersionsDir() string      { return filepath.Join(s.DataDir, "versions") }
func (s StorageConfig) PoolDir() string          { return filepath.Join(s.DataDir, "finetuning_pool") }
func (s StorageConfig) FeedbackDir() string      { return filepath.Join(s.DataDir, "feedback") }
func (s StorageConfig) PerformanceDir() string   { return filepath.Join(s.DataDir, "performance") }
func (s StorageConfig) HardNegativesDir() string { return filepath.Join(s.DataDir, "hard_negatives") }
func (s StorageConfig) HyperparamsDir() string   { return filepath.Join(s.DataDir, "hyperparams") }

// EventsConfig tunes the per-job event bus.
type EventsConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	HistoryLimit     int `yaml:"history_limit"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"` // debug, info, warn, error
	JSONFormat bool   `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "artificer",
		Version: "0.9.0",

		Models: ModelsConfig{
			DefaultLocal: "artificer-local",
			Preferred:    map[string]string{},
			Fallbacks:    []string{},
			Remotes:      []string{},
			Temperature:  0.3,
			Temperatures: map[string]float64{},
		},

		Generation: GenerationConfig{
			MaxRetries:          3,
			AcceptanceThreshold: 80,
			AttemptTimeout:      "2m",
			MaxConcurrentJobs:   4,
			MaxJobs:             100,
			JobRetention:        "1h",
			JanitorInterval:     "1m",
			BackoffInitial:      "200ms",
			BackoffMax:          "5s",
			SyncWait:            "2s",
			RenderHTML:          true,
		},

		Validation: ValidationConfig{
			PassingThreshold: 60,
			RulesPath:        "",
			HotReload:        false,
			MaxBatch:         50,
			BatchWorkers:     4,
		},

		Training: TrainingConfig{
			IncrementalThreshold: 50,
			MajorThreshold:       2000,
			AdmissionScore:       85,
			QualityFloor:         70,
			SuccessFloor:         80,
			MinBatch:             20,
			MaxBatch:             100,
			TargetQuality:        0.6,
			FailureThreshold:     75,
			MaxPoolSize:          5000,
			Curriculum: CurriculumConfig{
				MinEvaluations:   3,
				ProgressionScore: 75,
			},
			Reward: RewardConfig{
				DecayRate:        0.95,
				DecayFloor:       0.1,
				DifficultyWeight: 1.5,
				BalanceThreshold: 100,
				BalanceFloor:     0.5,
			},
			Augmenter: AugmenterConfig{
				Factor:          2,
				QualityDiscount: 0.95,
			},
			ActiveLearner: ActiveLearnerConfig{
				UncertaintyWeight: 0.4,
				DiversityWeight:   0.3,
				QualityWeight:     0.3,
			},
			Performance: PerformanceConfig{
				ValRatio:             0.2,
				MinValidationSamples: 10,
				Seed:                 42,
			},
		},

		Storage: StorageConfig{
			DataDir: "data",
		},

		Events: EventsConfig{
			SubscriberBuffer: 64,
			HistoryLimit:     256,
		},

		Logging: LoggingConfig{
			Enabled:    false,
			Dir:        filepath.Join(".artificer", "logs"),
			Level:      "info",
			JSONFormat: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("ARTIFICER_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if dir := os.Getenv("ARTIFICER_LOG_DIR"); dir != "" {
		c.Logging.Dir = dir
	}
	if level := os.Getenv("ARTIFICER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
		c.Logging.Enabled = true
	}
	if v := os.Getenv("ARTIFICER_MAX_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Generation.MaxJobs = n
		}
	}
	if v := os.Getenv("ARTIFICER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Generation.MaxRetries = n
		}
	}
	if path := os.Getenv("ARTIFICER_RULES_PATH"); path != "" {
		c.Validation.RulesPath = path
	}
}

// Validate checks configuration invariants before wiring.
func (c *Config) Validate() error {
	if c.Generation.MaxJobs <= 0 {
		return fmt.Errorf("generation.max_jobs must be positive, got %d", c.Generation.MaxJobs)
	}
	if c.Generation.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("generation.max_concurrent_jobs must be positive, got %d", c.Generation.MaxConcurrentJobs)
	}
	if c.Generation.AcceptanceThreshold < 0 || c.Generation.AcceptanceThreshold > 100 {
		return fmt.Errorf("generation.acceptance_threshold must be in [0,100], got %v", c.Generation.AcceptanceThreshold)
	}
	if c.Validation.PassingThreshold < 0 || c.Validation.PassingThreshold > 100 {
		return fmt.Errorf("validation.passing_threshold must be in [0,100], got %v", c.Validation.PassingThreshold)
	}
	if c.Training.MinBatch <= 0 || c.Training.MaxBatch < c.Training.MinBatch {
		return fmt.Errorf("training batch bounds invalid: [%d,%d]", c.Training.MinBatch, c.Training.MaxBatch)
	}
	if c.Training.IncrementalThreshold <= 0 || c.Training.MajorThreshold < c.Training.IncrementalThreshold {
		return fmt.Errorf("training thresholds invalid: incremental=%d major=%d",
			c.Training.IncrementalThreshold, c.Training.MajorThreshold)
	}
	if c.Training.Reward.DecayRate <= 0 || c.Training.Reward.DecayRate > 1 {
		return fmt.Errorf("training.reward.decay_rate must be in (0,1], got %v", c.Training.Reward.DecayRate)
	}
	w := c.Training.ActiveLearner
	if sum := w.UncertaintyWeight + w.DiversityWeight + w.QualityWeight; sum <= 0 {
		return fmt.Errorf("active learner weights must sum to a positive value, got %v", sum)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	return nil
}

// =============================================================================
// DURATION GETTERS - string fields parsed on demand with safe defaults
// =============================================================================

// GetAttemptTimeout returns the per-attempt model call timeout.
func (c *Config) GetAttemptTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generation.AttemptTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// GetJobRetention returns how long terminal jobs stay in the job table.
func (c *Config) GetJobRetention() time.Duration {
	d, err := time.ParseDuration(c.Generation.JobRetention)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetJanitorInterval returns the eviction sweep period.
func (c *Config) GetJanitorInterval() time.Duration {
	d, err := time.ParseDuration(c.Generation.JanitorInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GetBackoffInitial returns the first inter-rung backoff delay.
func (c *Config) GetBackoffInitial() time.Duration {
	d, err := time.ParseDuration(c.Generation.BackoffInitial)
	if err != nil {
		return 200 * time.Millisecond
	}
	return d
}

// GetBackoffMax returns the backoff delay cap.
func (c *Config) GetBackoffMax() time.Duration {
	d, err := time.ParseDuration(c.Generation.BackoffMax)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetSyncWait returns how long Generate waits for quick jobs before
// handing back a job id.
func (c *Config) GetSyncWait() time.Duration {
	d, err := time.ParseDuration(c.Generation.SyncWait)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
