// Package config loads runtime configuration from the environment and an
// optional config file under the data directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the daemon and CLI read at startup.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	// VectorBackend selects the vector index implementation:
	// "sqlite-vec" (persistent, default) or "chromem" (in-memory).
	VectorBackend string `mapstructure:"vector_backend"`

	// Embedder selects the embedding provider: "openai" or "local".
	Embedder       string `mapstructure:"embedder"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	OpenAIBaseURL  string `mapstructure:"openai_base_url"`
	OpenAIModel    string `mapstructure:"openai_model"`
	EmbedCacheSize int    `mapstructure:"embed_cache_size"`

	EmbedTimeout    time.Duration `mapstructure:"embed_timeout"`
	MaxContentBytes int           `mapstructure:"max_content_bytes"`

	EdgeNeighbors int     `mapstructure:"edge_neighbors"`
	EdgeMinWeight float64 `mapstructure:"edge_min_weight"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration with precedence: environment variables
// (prefix XYLEM_), then config.yml in the data directory, then defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("vector_backend", "sqlite-vec")
	v.SetDefault("embedder", "local")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("openai_model", "text-embedding-3-small")
	v.SetDefault("embed_cache_size", 4096)
	v.SetDefault("embed_timeout", 10*time.Second)
	v.SetDefault("max_content_bytes", 64*1024)
	v.SetDefault("edge_neighbors", 5)
	v.SetDefault("edge_min_weight", 0.6)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("XYLEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// OPENAI_API_KEY honors the conventional name when the prefixed
	// variable is not set.
	if v.GetString("openai_api_key") == "" {
		v.Set("openai_api_key", os.Getenv("OPENAI_API_KEY"))
	}

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.VectorBackend {
	case "sqlite-vec", "chromem":
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}
	switch c.Embedder {
	case "openai", "local":
	default:
		return fmt.Errorf("unknown embedder %q", c.Embedder)
	}
	if c.Embedder == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("embedder %q requires an API key (XYLEM_OPENAI_API_KEY or OPENAI_API_KEY)", c.Embedder)
	}
	if c.EmbedTimeout <= 0 {
		return fmt.Errorf("embed timeout must be positive, got %s", c.EmbedTimeout)
	}
	if c.MaxContentBytes <= 0 {
		return fmt.Errorf("max content bytes must be positive, got %d", c.MaxContentBytes)
	}
	return nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o755)
}

// MetadataPath returns the path of the metadata database.
func (c *Config) MetadataPath() string { return filepath.Join(c.DataDir, "metadata.db") }

// VectorPath returns the path of the vector index database.
func (c *Config) VectorPath() string { return filepath.Join(c.DataDir, "vectors.db") }

// GraphPath returns the path of the association graph database.
func (c *Config) GraphPath() string { return filepath.Join(c.DataDir, "graph.db") }

func defaultDataDir() string {
	if dir := os.Getenv("XYLEM_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".xylem"
	}
	return filepath.Join(home, ".xylem")
}
