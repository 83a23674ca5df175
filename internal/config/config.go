// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragline/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model selection, temperature, embedder
//   - Retrieval: top_k, fetch_k, mmr_lambda, max_context_chars
//   - History: history_window
//   - Ingestion: chunk sizes and fetcher limits
//   - Observability: OTLP collector endpoint
//
// Validation strategy follows two tiers:
//   - Structural problems (unknown provider, empty model name) fail Load immediately.
//   - Out-of-range numeric values fall back to their documented defaults with a
//     warning, so a single bad knob never takes the whole application down.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidFetchK indicates fetch_k is smaller than top_k.
	ErrInvalidFetchK = errors.New("fetch_k must be >= top_k")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Default values for options that fall back rather than fail.
// Out-of-range user values are replaced by these in normalize().
const (
	DefaultTemperature     float32 = 0.2
	DefaultMaxRetries              = 2
	DefaultTopK                    = 4
	DefaultFetchK                  = 10
	DefaultMMRLambda               = 0.5
	DefaultHistoryWindow           = 10
	DefaultMaxContextChars         = 8000
	DefaultChunkSize               = 1000
	DefaultChunkOverlap            = 200
)

// IngestConfig holds settings for the web ingestion fetcher.
type IngestConfig struct {
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	DelayMs     int `mapstructure:"delay_ms" json:"delay_ms"`
	TimeoutMs   int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// OtelConfig holds settings for OTLP trace export.
// Traces are sent to a local collector; an empty endpoint disables export.
type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "ollama" (default), "gemini", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "llama3.1", "gemini-2.5-flash")
	VisionModel string  `mapstructure:"vision_model" json:"vision_model"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries" json:"max_retries"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Retrieval configuration
	TopK            int     `mapstructure:"top_k" json:"top_k"`
	FetchK          int     `mapstructure:"fetch_k" json:"fetch_k"`
	MMRLambda       float64 `mapstructure:"mmr_lambda" json:"mmr_lambda"`
	MaxContextChars int     `mapstructure:"max_context_chars" json:"max_context_chars"`

	// Conversation history configuration
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`

	// Ingestion configuration
	ChunkSize    int          `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int          `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	Ingest       IngestConfig `mapstructure:"ingest" json:"ingest"`

	// Observability configuration
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.ragline/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragline")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Replace out-of-range numeric values with defaults (warn, don't fail)
	cfg.Normalize(slog.Default())

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated entirely with default values.
func Default() *Config {
	return &Config{
		Provider:        ProviderOllama,
		ModelName:       "llama3.1",
		VisionModel:     "llava:13b",
		Temperature:     DefaultTemperature,
		MaxRetries:      DefaultMaxRetries,
		OllamaHost:      "http://localhost:11434",
		EmbedderModel:   "nomic-embed-text",
		TopK:            DefaultTopK,
		FetchK:          DefaultFetchK,
		MMRLambda:       DefaultMMRLambda,
		MaxContextChars: DefaultMaxContextChars,
		HistoryWindow:   DefaultHistoryWindow,
		ChunkSize:       DefaultChunkSize,
		ChunkOverlap:    DefaultChunkOverlap,
		Ingest: IngestConfig{
			Parallelism: 2,
			DelayMs:     1000,
			TimeoutMs:   30000,
		},
		Otel: OtelConfig{
			Environment: "dev",
			ServiceName: "ragline",
		},
	}
}

// setDefaults sets all default configuration values.
func setDefaults() {
	d := Default()

	viper.SetDefault("provider", d.Provider)
	viper.SetDefault("model_name", d.ModelName)
	viper.SetDefault("vision_model", d.VisionModel)
	viper.SetDefault("temperature", d.Temperature)
	viper.SetDefault("max_retries", d.MaxRetries)

	viper.SetDefault("ollama_host", d.OllamaHost)
	viper.SetDefault("embedder_model", d.EmbedderModel)

	viper.SetDefault("top_k", d.TopK)
	viper.SetDefault("fetch_k", d.FetchK)
	viper.SetDefault("mmr_lambda", d.MMRLambda)
	viper.SetDefault("max_context_chars", d.MaxContextChars)

	viper.SetDefault("history_window", d.HistoryWindow)

	viper.SetDefault("chunk_size", d.ChunkSize)
	viper.SetDefault("chunk_overlap", d.ChunkOverlap)
	viper.SetDefault("ingest.parallelism", d.Ingest.Parallelism)
	viper.SetDefault("ingest.delay_ms", d.Ingest.DelayMs)
	viper.SetDefault("ingest.timeout_ms", d.Ingest.TimeoutMs)

	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.environment", d.Otel.Environment)
	viper.SetDefault("otel.service_name", d.Otel.ServiceName)
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "RAGLINE_PROVIDER")
	mustBind("model_name", "RAGLINE_MODEL_NAME")
	mustBind("vision_model", "RAGLINE_VISION_MODEL")
	mustBind("embedder_model", "RAGLINE_EMBEDDER_MODEL")
	mustBind("ollama_host", "RAGLINE_OLLAMA_HOST")
	mustBind("temperature", "RAGLINE_TEMPERATURE")
	mustBind("max_retries", "RAGLINE_MAX_RETRIES")
	mustBind("otel.endpoint", "RAGLINE_OTEL_ENDPOINT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper
	// NOTE: OPENAI_API_KEY is read directly by Genkit OpenAI plugin, not via Viper
}

// Normalize replaces out-of-range numeric values with their defaults.
// A bad knob is worth a warning, not a crash: the defaults are always safe.
// Structural problems are left for Validate.
func (c *Config) Normalize(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	fallback := func(field string, got, def any) {
		logger.Warn("config value out of range, using default",
			"field", field, "got", got, "default", def)
	}

	if c.Temperature < 0 || c.Temperature > 1 {
		fallback("temperature", c.Temperature, DefaultTemperature)
		c.Temperature = DefaultTemperature
	}
	if c.MaxRetries < 0 {
		fallback("max_retries", c.MaxRetries, DefaultMaxRetries)
		c.MaxRetries = DefaultMaxRetries
	}
	if c.TopK <= 0 {
		fallback("top_k", c.TopK, DefaultTopK)
		c.TopK = DefaultTopK
	}
	if c.FetchK <= 0 {
		fallback("fetch_k", c.FetchK, DefaultFetchK)
		c.FetchK = DefaultFetchK
	}
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		fallback("mmr_lambda", c.MMRLambda, DefaultMMRLambda)
		c.MMRLambda = DefaultMMRLambda
	}
	if c.HistoryWindow <= 0 {
		fallback("history_window", c.HistoryWindow, DefaultHistoryWindow)
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.MaxContextChars <= 0 {
		fallback("max_context_chars", c.MaxContextChars, DefaultMaxContextChars)
		c.MaxContextChars = DefaultMaxContextChars
	}
	if c.ChunkSize <= 0 {
		fallback("chunk_size", c.ChunkSize, DefaultChunkSize)
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		fallback("chunk_overlap", c.ChunkOverlap, DefaultChunkOverlap)
		c.ChunkOverlap = DefaultChunkOverlap
		if c.ChunkOverlap >= c.ChunkSize {
			c.ChunkOverlap = c.ChunkSize / 5
		}
	}
}

// Validate checks for structural configuration problems.
// These cannot be resolved with a default, so they fail fast.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI, ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q (must be one of: gemini, ollama, openai, googleai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.Provider == ProviderOllama && strings.TrimSpace(c.OllamaHost) == "" {
		return fmt.Errorf("%w: ollama host must not be empty", ErrInvalidOllamaHost)
	}
	if c.FetchK < c.TopK {
		return fmt.Errorf("%w: fetch_k=%d top_k=%d", ErrInvalidFetchK, c.FetchK, c.TopK)
	}

	return nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "ollama/llama3.1", "googleai/gemini-2.5-flash", "openai/gpt-4o".
func (c *Config) FullModelName() string {
	return c.qualifiedModel(c.ModelName)
}

// FullVisionModelName returns the provider-qualified vision model name.
func (c *Config) FullVisionModelName() string {
	return c.qualifiedModel(c.VisionModel)
}

// qualifiedModel prefixes a model name with its Genkit provider namespace.
// Names already containing "/" are returned as-is.
func (c *Config) qualifiedModel(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + name
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + name
	default:
		return ProviderGoogleAI + "/" + name
	}
}
