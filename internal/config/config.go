package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Context collection
	TimeHorizonDays   int `envconfig:"TIME_HORIZON_DAYS" default:"7"`
	SnapshotTTLMin    int `envconfig:"SNAPSHOT_TTL_MINUTES" default:"5"`
	SuggestionTTLMin  int `envconfig:"SUGGESTION_SNAPSHOT_TTL_MINUTES" default:"30"`
	RecentWindowHours int `envconfig:"RECENT_EVENT_WINDOW_HOURS" default:"24"`

	// Inference service
	InferenceURL     string        `envconfig:"INFERENCE_URL"`
	InferenceAPIKey  string        `envconfig:"INFERENCE_API_KEY"`
	InferenceModel   string        `envconfig:"INFERENCE_MODEL" default:"claude-sonnet-4-5"`
	InferenceTimeout time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"60s"`
	PromptStrategy   string        `envconfig:"PROMPT_STRATEGY" default:"optimized"`
	PromptTokenBudget int          `envconfig:"PROMPT_TOKEN_BUDGET" default:"4000"`

	// Optimization goal weights (normalized before use)
	GoalCapacityWeight float64 `envconfig:"GOAL_CAPACITY_WEIGHT" default:"1"`
	GoalTimelineWeight float64 `envconfig:"GOAL_TIMELINE_WEIGHT" default:"1"`
	GoalProcessWeight  float64 `envconfig:"GOAL_PROCESS_WEIGHT" default:"1"`
	GoalPresetsPath    string  `envconfig:"GOAL_PRESETS_PATH"`

	// Persistence (empty path = in-memory cache only)
	CacheDBPath string `envconfig:"CACHE_DB_PATH"`

	// Directory bootstrap (JSON seed file for the static read-models)
	DirectorySeedPath string `envconfig:"DIRECTORY_SEED_PATH"`

	// Slack notifications (optional)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL" default:"#ops-suggestions"`

	// API server
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:":8080"`
	AuthMode       string `envconfig:"AUTH_MODE" default:"api-key"` // "api-key", "jwt", "none"
	APIKey         string `envconfig:"API_KEY"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
}

// InferenceEnabled returns true if an inference endpoint is configured.
func (c *Config) InferenceEnabled() bool {
	return c.InferenceURL != ""
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// SnapshotTTL returns the registry snapshot TTL as a duration.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLMin) * time.Minute
}

// SuggestionSnapshotTTL returns the inference-result snapshot TTL as a duration.
func (c *Config) SuggestionSnapshotTTL() time.Duration {
	return time.Duration(c.SuggestionTTLMin) * time.Minute
}

// Validate checks cross-field constraints not expressible as envconfig tags.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case "api-key", "jwt", "none":
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.AuthMode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf("AUTH_MODE=jwt requires JWT_SECRET")
	}
	if c.TimeHorizonDays < 1 {
		return fmt.Errorf("TIME_HORIZON_DAYS must be >= 1")
	}
	switch strings.ToLower(c.PromptStrategy) {
	case "minimal", "optimized", "few_shot", "constrained":
	default:
		return fmt.Errorf("unknown PROMPT_STRATEGY %q", c.PromptStrategy)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
