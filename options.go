package contractrag

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/config"
	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/llm"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	cfg     config.Config
	cfgSet  bool
	cfgPath string
	cfgEnv  string

	overrides []func(*config.Config)

	embedder domain.Embedder
	model    llm.Model

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithConfig uses an already loaded configuration. Later options still
// override it.
func WithConfig(cfg config.Config) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg = cfg
		c.cfgSet = true
	})
}

// WithConfigFile loads the configuration from a YAML file.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfgPath = path
	})
}

// WithEnv loads config/<env>.yaml. This is the default with ENV or "local".
func WithEnv(env string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfgEnv = env
	})
}

func override(fn func(*config.Config)) Option {
	return optionFunc(func(c *clientConfig) {
		c.overrides = append(c.overrides, fn)
	})
}

// WithRedis stores pages on a Redis 8 server.
func WithRedis(addr, password string) Option {
	return override(func(cfg *config.Config) {
		cfg.Database.Driver = config.DriverRedis
		cfg.Database.Addrs = []string{addr}
		cfg.Database.Password = password
	})
}

// WithMemory stores pages in process memory. The data lives as long as
// the Client.
func WithMemory() Option {
	return override(func(cfg *config.Config) {
		cfg.Database.Driver = config.DriverMemory
	})
}

// WithDataFolder sets where parsed documents are read from.
func WithDataFolder(dir string) Option {
	return override(func(cfg *config.Config) {
		cfg.Catalog.DataFolder = dir
	})
}

// WithCatalog sets the document catalog file. An empty path disables the
// catalog: documents are discovered and no metadata filter applies.
func WithCatalog(path string) Option {
	return override(func(cfg *config.Config) {
		cfg.Catalog.Path = path
	})
}

// WithEcho answers with the offline echo model instead of a real one.
func WithEcho() Option {
	return override(func(cfg *config.Config) {
		cfg.LLM.Provider = providerEcho
	})
}

// WithLanguageModel replaces the configured language model.
func WithLanguageModel(m llm.Model) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = m
	})
}

// WithEmbedder replaces the embedder built from schema.vector_config.
func WithEmbedder(e domain.Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithLogger enables structured logging. Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK operation metrics on reg. Default: none.
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

// QueryOption overrides the configured retrieval settings of one call.
type QueryOption func(*queryParams)

type queryParams struct {
	strategy string
	limit    int
}

// WithStrategy selects bm25, vector or hybrid ("keyword" and "semantic"
// are accepted too). Empty keeps the configured strategy.
func WithStrategy(s string) QueryOption {
	return func(p *queryParams) { p.strategy = s }
}

// WithLimit sets the number of passages. Zero keeps the configured limit.
func WithLimit(n int) QueryOption {
	return func(p *queryParams) { p.limit = n }
}
