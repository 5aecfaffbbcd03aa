// Package config loads the engine's tunables: defaults, overlaid by an
// optional YAML file, with provider credentials taken from the
// environment (a local .env is honoured when present).
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Template TemplateConfig `yaml:"template"`
	Batch    BatchConfig    `yaml:"batch"`
	LLM      LLMConfig      `yaml:"llm"`
	Parser   ParserConfig   `yaml:"parser"`
}

// CacheConfig tunes the two cache tiers.
type CacheConfig struct {
	// L1Capacity bounds the in-memory LRU by entry count.
	L1Capacity int `yaml:"l1_capacity"`
	// L2Dir is the disk tier's directory.
	L2Dir string `yaml:"l2_dir"`
	// L2MaxBytes bounds the disk tier's total size.
	L2MaxBytes int64 `yaml:"l2_max_bytes"`
}

// TemplateConfig tunes template matching and trust gates.
type TemplateConfig struct {
	// DBPath is the template store's SQLite file.
	DBPath string `yaml:"db_path"`
	// SimilarityThreshold gates template application.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// ConfidenceThreshold gates which template fields are trusted.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// MinSamples gates template application by training history.
	MinSamples int `yaml:"min_samples"`
}

// BatchConfig tunes the batch scheduler.
type BatchConfig struct {
	// MaxWorkers bounds cross-label parallelism.
	MaxWorkers int `yaml:"max_workers"`
}

// LLMConfig tunes the model calls.
type LLMConfig struct {
	Model      string `yaml:"model"`
	TimeoutS   int    `yaml:"timeout_s"`
	MaxRetries int    `yaml:"max_retries"`
}

// ParserConfig tunes PDF parsing.
type ParserConfig struct {
	TimeoutS int `yaml:"timeout_s"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			L1Capacity: 100,
			L2Dir:      "./data/cache",
			L2MaxBytes: 1 << 30,
		},
		Template: TemplateConfig{
			DBPath:              "./data/templates.db",
			SimilarityThreshold: 0.70,
			ConfidenceThreshold: 0.80,
			MinSamples:          2,
		},
		Batch: BatchConfig{
			MaxWorkers: max(1, runtime.NumCPU()),
		},
		LLM: LLMConfig{
			TimeoutS:   120,
			MaxRetries: 1,
		},
		Parser: ParserConfig{
			TimeoutS: 30,
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults. Environment variables from a local .env file
// are loaded as a side effect when one exists.
func Load(path string) (*Config, error) {
	// Credentials (OPENAI_API_KEY) come from the environment.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values outside their meaningful ranges.
func (c *Config) Validate() error {
	if c.Cache.L1Capacity <= 0 {
		return fmt.Errorf("config: cache.l1_capacity must be positive, got %d", c.Cache.L1Capacity)
	}
	if c.Cache.L2MaxBytes <= 0 {
		return fmt.Errorf("config: cache.l2_max_bytes must be positive, got %d", c.Cache.L2MaxBytes)
	}
	if c.Template.SimilarityThreshold < 0 || c.Template.SimilarityThreshold > 1 {
		return fmt.Errorf("config: template.similarity_threshold must be in [0,1], got %g", c.Template.SimilarityThreshold)
	}
	if c.Template.ConfidenceThreshold < 0 || c.Template.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: template.confidence_threshold must be in [0,1], got %g", c.Template.ConfidenceThreshold)
	}
	if c.Template.MinSamples < 1 {
		return fmt.Errorf("config: template.min_samples must be at least 1, got %d", c.Template.MinSamples)
	}
	if c.Batch.MaxWorkers < 1 {
		return fmt.Errorf("config: batch.max_workers must be at least 1, got %d", c.Batch.MaxWorkers)
	}
	if c.LLM.TimeoutS <= 0 || c.Parser.TimeoutS <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("config: llm.max_retries must not be negative, got %d", c.LLM.MaxRetries)
	}
	return nil
}

// LLMTimeout returns the model call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutS) * time.Second
}

// ParserTimeout returns the parse timeout as a duration.
func (c *Config) ParserTimeout() time.Duration {
	return time.Duration(c.Parser.TimeoutS) * time.Second
}
