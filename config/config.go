// Package config loads the process configuration: provider credential
// material, runtime defaults, and storage settings. Configuration is a single
// JSON document; credentials may alternatively arrive through process
// environment variables named {PROVIDER}_API_KEY, with the explicit document
// taking precedence.
//
// Config values are immutable snapshots. A Source holds the live snapshot and
// swaps it atomically on Refresh so credential rotation does not require a
// process restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

type (
	// Config is one immutable configuration snapshot.
	Config struct {
		// Providers holds credential material keyed by provider name
		// (openai, anthropic, groq, ollama).
		Providers map[string]Provider `json:"providers" mapstructure:"providers"`
		// DefaultProvider selects the model backend used when a node does not
		// name one.
		DefaultProvider string `json:"defaultProvider" mapstructure:"defaultProvider"`
		// DefaultModel is the model identifier used when a node does not name one.
		DefaultModel string `json:"defaultModel" mapstructure:"defaultModel"`
		// OllamaHost is the base URL of the local Ollama server.
		OllamaHost string `json:"ollamaHost" mapstructure:"ollamaHost"`
		// StorageURI selects the durable store. Empty means in-memory;
		// mongodb:// URIs select the Mongo-backed store.
		StorageURI string `json:"storageUri,omitempty" mapstructure:"storageUri"`
		// MaxConcurrentExecutions caps the engine's active runner count.
		// Zero means unlimited.
		MaxConcurrentExecutions int `json:"maxConcurrentExecutions" mapstructure:"maxConcurrentExecutions"`
		// MaxNodeParallelism caps the per-execution dispatch batch width.
		// Zero means the batch is as wide as the ready set.
		MaxNodeParallelism int `json:"maxNodeParallelism,omitempty" mapstructure:"maxNodeParallelism"`
		// MaxRetries bounds provider-level retry inside the model gateway.
		MaxRetries int `json:"maxRetries" mapstructure:"maxRetries"`
		// RetryDelayMillis is the delay between provider retries.
		RetryDelayMillis int `json:"retryDelay" mapstructure:"retryDelay"`
		// LogLevel selects the minimum log severity (debug, info, warn, error).
		LogLevel string `json:"logLevel" mapstructure:"logLevel"`
	}

	// Provider holds one provider's credential material.
	Provider struct {
		APIKey string `json:"apiKey" mapstructure:"apiKey"`
	}

	// Source holds the live configuration snapshot. Snapshot reads and Refresh
	// swaps are atomic; executions snapshot the configuration once at start and
	// never observe later swaps.
	Source struct {
		path    string
		current atomic.Pointer[Config]
	}
)

// KnownProviders lists the provider names the gateway supports.
var KnownProviders = []string{"openai", "anthropic", "groq", "ollama"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Providers:        map[string]Provider{},
		DefaultProvider:  "openai",
		DefaultModel:     "gpt-4o-mini",
		OllamaHost:       "http://localhost:11434",
		MaxRetries:       2,
		RetryDelayMillis: 1000,
		LogLevel:         "info",
	}
}

// Load reads the configuration document at path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// APIKey resolves the credential for a provider. The explicit document takes
// precedence; otherwise the {PROVIDER}_API_KEY environment variable is used.
func (c *Config) APIKey(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv(strings.ToUpper(provider) + "_API_KEY")
}

// RetryDelay returns the provider retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

// NewSource wraps a fixed snapshot. Refresh is a no-op without a backing file.
func NewSource(cfg *Config) *Source {
	s := &Source{}
	s.current.Store(cfg)
	return s
}

// LoadSource reads the document at path and tracks it for Refresh.
func LoadSource(path string) (*Source, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Source{path: path}
	s.current.Store(cfg)
	return s, nil
}

// Snapshot returns the live configuration. The returned value must be treated
// as immutable.
func (s *Source) Snapshot() *Config {
	return s.current.Load()
}

// Refresh re-reads the backing document and atomically swaps the live
// snapshot, picking up rotated credentials.
func (s *Source) Refresh() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Swap replaces the live snapshot directly. Intended for tests and for the
// CLI after writing configuration changes.
func (s *Source) Swap(cfg *Config) {
	s.current.Store(cfg)
}
