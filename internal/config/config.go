// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.duvidaki/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, embedding model, temperature, max tokens
//   - Pipeline: chunk size/overlap, embedding batch size, top-k, query limits
//   - Storage: PostgreSQL + pgvector connection (see storage.go)
//   - Collaborators: Confluence, GitHub, Slack credentials
//
// Security: sensitive values (passwords, tokens) are masked in MarshalJSON
// and String. Validation is fail-fast at startup (see validation.go).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbeddingModel indicates the embedding model name is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidMaxResults indicates the search top-k is out of range.
	ErrInvalidMaxResults = errors.New("invalid max results")

	// ErrInvalidBatchSize indicates the embedding batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid embedding batch size")

	// ErrInvalidMaxQueryLength indicates the query length limit is invalid.
	ErrInvalidMaxQueryLength = errors.New("invalid max query length")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Chunk size bounds. A configured chunk_size outside this range is clamped
// at load time rather than rejected.
const (
	MinChunkSize = 100
	MaxChunkSize = 2000
)

// Default model identifiers.
const (
	// DefaultEmbeddingModel outputs 3072 dimensions natively but supports
	// truncation via OutputDimensionality; the pgvector schema stores 1536.
	DefaultEmbeddingModel = "gemini-embedding-001"

	DefaultGenerationModel = "gemini-2.5-flash"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, tokens), update MarshalJSON.
type Config struct {
	// AI model configuration
	GenerationModel string  `mapstructure:"generation_model" json:"generation_model"`
	EmbeddingModel  string  `mapstructure:"embedding_model" json:"embedding_model"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens" json:"max_tokens"`

	// RequestTimeoutSeconds bounds every embedding/generation network call.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`

	// Retrieval pipeline configuration
	ChunkSize         int      `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap      int      `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	EmbedBatchSize    int      `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	MaxResults        int      `mapstructure:"max_results" json:"max_results"`
	MaxQueryLength    int      `mapstructure:"max_query_length" json:"max_query_length"`
	DangerousPatterns []string `mapstructure:"dangerous_patterns" json:"dangerous_patterns"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Confluence crawler configuration
	ConfluenceURL      string `mapstructure:"confluence_url" json:"confluence_url"`
	ConfluenceEmail    string `mapstructure:"confluence_email" json:"confluence_email"`
	ConfluenceAPIToken string `mapstructure:"confluence_api_token" json:"confluence_api_token"` // SENSITIVE
	ConfluenceSpaceKey string `mapstructure:"confluence_space_key" json:"confluence_space_key"`

	// GitHub crawler configuration
	GitHubToken string   `mapstructure:"github_token" json:"github_token"` // SENSITIVE
	GitHubRepos []string `mapstructure:"github_repos" json:"github_repos"`

	// Slack adapter configuration
	SlackBotToken string `mapstructure:"slack_bot_token" json:"slack_bot_token"` // SENSITIVE
	SlackAppToken string `mapstructure:"slack_app_token" json:"slack_app_token"` // SENSITIVE
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".duvidaki")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	cfg.clampChunking()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("generation_model", DefaultGenerationModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("request_timeout_seconds", 30)

	// Pipeline defaults
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("embed_batch_size", 100)
	v.SetDefault("max_results", 5)
	v.SetDefault("max_query_length", 2000)
	v.SetDefault("dangerous_patterns", []string{})

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "duvidaki")
	v.SetDefault("postgres_password", "duvidaki_dev_password")
	v.SetDefault("postgres_db_name", "duvidaki")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds credential environment variables explicitly.
// GEMINI_API_KEY is read directly by the genai client, not via viper;
// its presence is checked in Validate.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("confluence_url", "CONFLUENCE_URL")
	mustBind("confluence_email", "CONFLUENCE_EMAIL")
	mustBind("confluence_api_token", "CONFLUENCE_API_TOKEN")
	mustBind("confluence_space_key", "CONFLUENCE_SPACE_KEY")

	mustBind("github_token", "GITHUB_TOKEN")
	mustBind("github_repos", "GITHUB_REPOS")

	mustBind("slack_bot_token", "SLACK_BOT_TOKEN")
	mustBind("slack_app_token", "SLACK_APP_TOKEN")

	mustBind("postgres_password", "POSTGRES_PASSWORD")
}

// clampChunking forces chunk_size into [MinChunkSize, MaxChunkSize] and
// keeps the overlap strictly smaller than the chunk size.
func (c *Config) clampChunking() {
	if c.ChunkSize < MinChunkSize {
		slog.Warn("chunk_size below minimum, clamping",
			"configured", c.ChunkSize, "min", MinChunkSize)
		c.ChunkSize = MinChunkSize
	}
	if c.ChunkSize > MaxChunkSize {
		slog.Warn("chunk_size above maximum, clamping",
			"configured", c.ChunkSize, "max", MaxChunkSize)
		c.ChunkSize = MaxChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		slog.Warn("chunk_overlap >= chunk_size, clamping",
			"configured", c.ChunkOverlap, "chunk_size", c.ChunkSize)
		c.ChunkOverlap = c.ChunkSize / 4
	}
}

// IsConfluenceConfigured reports whether the Confluence crawler has the
// credentials it needs. Consulted before invoking the crawler instead of
// letting it fail at request time.
func (c *Config) IsConfluenceConfigured() bool {
	return c.ConfluenceURL != "" && c.ConfluenceEmail != "" && c.ConfluenceAPIToken != ""
}

// IsGitHubConfigured reports whether the GitHub crawler is usable.
func (c *Config) IsGitHubConfigured() bool {
	return c.GitHubToken != "" && len(c.GitHubRepos) > 0
}

// IsSlackConfigured reports whether the Slack adapter can start.
func (c *Config) IsSlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.ConfluenceAPIToken = maskSecret(a.ConfluenceAPIToken)
	a.GitHubToken = maskSecret(a.GitHubToken)
	a.SlackBotToken = maskSecret(a.SlackBotToken)
	a.SlackAppToken = maskSecret(a.SlackAppToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
