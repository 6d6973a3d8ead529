// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/catalyst/internal/types"
)

// Defaults for pipeline tuning
const (
	DefaultVideoPollInterval = 10 * time.Second
	DefaultVideoPollAttempts = 20
	DefaultSearchInterval    = time.Second
	DefaultMaxSearchQueries  = 200
	DefaultWorkerPoolSize    = 16
	DefaultMediaDir          = "static"
)

// DefaultTimeouts are the per-collaborator call timeouts
var DefaultTimeouts = map[types.StepType]time.Duration{
	types.StepCategoryDetection:     30 * time.Second,
	types.StepVisionAnalysis:        60 * time.Second,
	types.StepCompetitorAnalysis:    60 * time.Second,
	types.StepEmotionalAnalysis:     60 * time.Second,
	types.StepHookGeneration:        60 * time.Second,
	types.StepMarketResearch:        90 * time.Second,
	types.StepContentGeneration:     120 * time.Second,
	types.StepPerformancePrediction: 60 * time.Second,
	types.StepVideoGeneration:       5 * time.Minute,
	types.StepPosterGeneration:      3 * time.Minute,
	types.StepImageGeneration:       3 * time.Minute,
	types.StepSocialPublishing:      5 * time.Minute,
}

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Pipeline policy and tuning
	FatalSteps        []string          `json:"fatal_steps,omitempty"`         // Steps whose failure fails the run
	Timeouts          map[string]string `json:"timeouts,omitempty"`            // Step name -> Go duration
	VideoPollInterval string            `json:"video_poll_interval,omitempty"` // Delay between video status polls
	VideoPollAttempts int               `json:"video_poll_attempts,omitempty"` // Poll ceiling before the video step fails
	WorkerPoolSize    int               `json:"worker_pool_size,omitempty"`    // Concurrent collaborator calls
	SearchInterval    string            `json:"search_interval,omitempty"`     // Minimum spacing of search calls
	MaxSearchQueries  int               `json:"max_search_queries,omitempty"`  // Search call budget per process
	Platforms         []string          `json:"platforms,omitempty"`           // Default publishing targets

	// Storage
	MediaDir    string `json:"media_dir,omitempty"`    // Local directory for generated media
	S3Bucket    string `json:"s3_bucket,omitempty"`    // Store generated media in S3 when set
	S3Region    string `json:"s3_region,omitempty"`    // Region of S3Bucket
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Behavior
	APIKey  string `json:"api_key,omitempty"` // Gemini API key
	Verbose bool   `json:"verbose,omitempty"` // Print detailed debug information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	for _, name := range c.FatalSteps {
		if _, err := types.ParseStepType(name); err != nil {
			return fmt.Errorf("config error: 'fatal_steps' contains %q: %w", name, err)
		}
	}

	for name, value := range c.Timeouts {
		if _, err := types.ParseStepType(name); err != nil {
			return fmt.Errorf("config error: 'timeouts' contains %q: %w", name, err)
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("config error: timeout for %s must be a positive duration, got %q", name, value)
		}
	}

	if c.VideoPollInterval != "" {
		if d, err := time.ParseDuration(c.VideoPollInterval); err != nil || d <= 0 {
			return fmt.Errorf("config error: 'video_poll_interval' must be a positive duration")
		}
	}
	if c.SearchInterval != "" {
		if d, err := time.ParseDuration(c.SearchInterval); err != nil || d < 0 {
			return fmt.Errorf("config error: 'search_interval' must be a non-negative duration")
		}
	}

	if c.VideoPollAttempts < 0 {
		return fmt.Errorf("config error: 'video_poll_attempts' must be non-negative")
	}
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("config error: 'worker_pool_size' must be non-negative")
	}
	if c.MaxSearchQueries < 0 {
		return fmt.Errorf("config error: 'max_search_queries' must be non-negative")
	}

	for _, p := range c.Platforms {
		switch types.Platform(p) {
		case types.PlatformLinkedIn, types.PlatformMeta, types.PlatformInstagram:
		default:
			return fmt.Errorf("config error: unknown platform %q", p)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if len(result.FatalSteps) == 0 {
		result.FatalSteps = defaults.FatalSteps
	}
	if len(result.Timeouts) == 0 {
		result.Timeouts = defaults.Timeouts
	}
	if result.VideoPollInterval == "" {
		result.VideoPollInterval = defaults.VideoPollInterval
	}
	if result.SearchInterval == "" {
		result.SearchInterval = defaults.SearchInterval
	}
	if len(result.Platforms) == 0 {
		result.Platforms = defaults.Platforms
	}
	if result.MediaDir == "" {
		result.MediaDir = defaults.MediaDir
	}
	if result.S3Bucket == "" {
		result.S3Bucket = defaults.S3Bucket
	}
	if result.S3Region == "" {
		result.S3Region = defaults.S3Region
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}

	// Int fields: use default if zero
	if result.VideoPollAttempts == 0 {
		result.VideoPollAttempts = defaults.VideoPollAttempts
	}
	if result.WorkerPoolSize == 0 {
		result.WorkerPoolSize = defaults.WorkerPoolSize
	}
	if result.MaxSearchQueries == 0 {
		result.MaxSearchQueries = defaults.MaxSearchQueries
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge

	return result
}

// StepTimeouts returns the per-step timeouts with configured overrides applied
func (c *Config) StepTimeouts() map[types.StepType]time.Duration {
	out := make(map[types.StepType]time.Duration, len(DefaultTimeouts))
	for st, d := range DefaultTimeouts {
		out[st] = d
	}
	for name, value := range c.Timeouts {
		st, err := types.ParseStepType(name)
		if err != nil {
			continue
		}
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			out[st] = d
		}
	}
	return out
}

// PollSettings returns the video poll interval and attempt ceiling
func (c *Config) PollSettings() (time.Duration, int) {
	interval := DefaultVideoPollInterval
	if d, err := time.ParseDuration(c.VideoPollInterval); err == nil && d > 0 {
		interval = d
	}
	attempts := c.VideoPollAttempts
	if attempts <= 0 {
		attempts = DefaultVideoPollAttempts
	}
	return interval, attempts
}

// SearchGateInterval returns the minimum spacing of search provider calls
func (c *Config) SearchGateInterval() time.Duration {
	if d, err := time.ParseDuration(c.SearchInterval); err == nil && d >= 0 {
		return d
	}
	return DefaultSearchInterval
}

// PoolSize returns the collaborator worker pool size
func (c *Config) PoolSize() int {
	if c.WorkerPoolSize > 0 {
		return c.WorkerPoolSize
	}
	return DefaultWorkerPoolSize
}

// SearchBudget returns the maximum number of search calls
func (c *Config) SearchBudget() int {
	if c.MaxSearchQueries > 0 {
		return c.MaxSearchQueries
	}
	return DefaultMaxSearchQueries
}

// MediaDirectory returns the local media directory
func (c *Config) MediaDirectory() string {
	if c.MediaDir != "" {
		return c.MediaDir
	}
	return DefaultMediaDir
}

// TargetPlatforms returns the configured default platforms
func (c *Config) TargetPlatforms() []types.Platform {
	if len(c.Platforms) == 0 {
		return append([]types.Platform(nil), types.DefaultPlatforms...)
	}
	out := make([]types.Platform, len(c.Platforms))
	for i, p := range c.Platforms {
		out[i] = types.Platform(p)
	}
	return out
}
