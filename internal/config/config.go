package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/contractrag/internal/domain/search/mode"
	"github.com/kailas-cloud/contractrag/internal/segment"
)

// Config holds the contractrag configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Schema    SchemaConfig    `yaml:"schema"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Query     QueryConfig     `yaml:"query"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Storage drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// DatabaseConfig holds storage connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	DialTimeoutSec   int      `yaml:"dial_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// LLMConfig holds language model call settings. Provider, model and
// endpoint come from schema.generative_config unless Provider overrides it.
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // ollama, openai, echo
	APIKey      string   `yaml:"api_key"`
	TimeoutSec  int      `yaml:"timeout_sec"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	EchoPrefix  string   `yaml:"echo_prefix"`
}

// EmbeddingConfig holds embedding call settings. Provider, model, endpoint
// and dimensions come from schema.vector_config.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	Cache       bool   `yaml:"cache"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"`
}

// CatalogConfig locates the document catalog and parsed documents.
type CatalogConfig struct {
	Path            string `yaml:"path"`
	DataFolder      string `yaml:"data_folder"`
	DiscoverPattern string `yaml:"discover_pattern"`
}

// IndexingConfig holds indexing pipeline settings.
type IndexingConfig struct {
	DropAll   *bool  `yaml:"drop_all"`
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
	Resume    bool   `yaml:"resume"`
	Marker    string `yaml:"page_marker"`
	Trailing  string `yaml:"trailing"` // drop, flush
	Separator string `yaml:"separator"`
}

// QueryConfig holds query pipeline settings.
type QueryConfig struct {
	Strategy      string        `yaml:"strategy"`
	Limit         int           `yaml:"limit"`
	OnSearchError string        `yaml:"on_search_error"` // degrade, fail
	Prompts       PromptsConfig `yaml:"prompts"`
}

// PromptsConfig overrides the built-in prompts.
type PromptsConfig struct {
	EntityResolution string `yaml:"entity_resolution"`
	AnswerGeneration string `yaml:"answer_generation"`
	Instructions     string `yaml:"query_context_instructions"`
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv names the config file to load: $ENV, or "local".
func GetEnv() string {
	return cmp.Or(os.Getenv("ENV"), "local")
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.DialTimeoutSec <= 0 {
		c.Database.DialTimeoutSec = 5
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "contractrag:"
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 7 * 24 * 3600
	}
	if c.Catalog.DataFolder == "" {
		c.Catalog.DataFolder = "data"
	}
	if c.Indexing.DropAll == nil {
		dropAll := true
		c.Indexing.DropAll = &dropAll
	}
	if c.Indexing.Workers <= 0 {
		c.Indexing.Workers = 1
	}
	if c.Indexing.BatchSize <= 0 {
		c.Indexing.BatchSize = 100
	}
	if c.Query.Strategy == "" {
		c.Query.Strategy = string(mode.Hybrid)
	}
	if c.Query.Limit == 0 {
		c.Query.Limit = 2
	}
	if c.Query.OnSearchError == "" {
		c.Query.OnSearchError = "degrade"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverRedis, DriverMemory, c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "", "ollama", "openai", "echo":
	default:
		return fmt.Errorf("llm.provider must be ollama, openai or echo, got %q", c.LLM.Provider)
	}
	if err := c.Schema.ToSchema().Validate(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if _, ok := segment.ParseTrailingPolicy(c.Indexing.Trailing); !ok {
		return fmt.Errorf("indexing.trailing must be \"drop\" or \"flush\", got %q", c.Indexing.Trailing)
	}
	if m := mode.Parse(c.Query.Strategy); !m.IsValid() {
		return fmt.Errorf("query.strategy must be bm25, vector or hybrid, got %q", c.Query.Strategy)
	}
	if c.Query.Limit < 0 {
		return fmt.Errorf("query.limit must be positive, got %d", c.Query.Limit)
	}
	switch c.Query.OnSearchError {
	case "degrade", "fail":
	default:
		return fmt.Errorf("query.on_search_error must be \"degrade\" or \"fail\", got %q", c.Query.OnSearchError)
	}
	return nil
}

// SegmentOptions converts the indexing section into segmenter options.
func (c *Config) SegmentOptions() []segment.Option {
	var opts []segment.Option
	if c.Indexing.Marker != "" {
		opts = append(opts, segment.WithMarker(c.Indexing.Marker))
	}
	if p, ok := segment.ParseTrailingPolicy(c.Indexing.Trailing); ok && p != segment.DropTrailing {
		opts = append(opts, segment.WithTrailing(p))
	}
	if c.Indexing.Separator != "" {
		opts = append(opts, segment.WithSeparator(c.Indexing.Separator))
	}
	return opts
}

// findConfigPath returns <dir>/<env>.yaml for the first dir holding it:
// ./config, then the module's own config directory (for go test and go run
// from elsewhere). It falls back to ./config.
func findConfigPath(env string) string {
	name := env + ".yaml"
	_, self, _, _ := runtime.Caller(0)
	moduleRoot := filepath.Join(filepath.Dir(self), "..", "..")

	for _, dir := range []string{"config", filepath.Join(moduleRoot, "config")} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join("config", name)
}

// envRef matches ${VAR} and ${VAR:-default}. Bare $VAR is left alone so
// prompts may contain dollar amounts.
var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(envValue(string(ref[2 : len(ref)-1])))
	})
}

// envValue resolves "VAR" or "VAR:-default". An empty variable counts as unset.
func envValue(expr string) string {
	name, def, _ := strings.Cut(expr, ":-")
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
