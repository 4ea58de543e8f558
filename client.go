package contractrag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/catalog"
	"github.com/kailas-cloud/contractrag/internal/config"
	dbredis "github.com/kailas-cloud/contractrag/internal/db/redis"
	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/domain/search/mode"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	"github.com/kailas-cloud/contractrag/internal/llm"
	"github.com/kailas-cloud/contractrag/internal/metafilter"
	"github.com/kailas-cloud/contractrag/internal/metrics"
	"github.com/kailas-cloud/contractrag/internal/parser/elements"
	"github.com/kailas-cloud/contractrag/internal/repository/checkpoint"
	"github.com/kailas-cloud/contractrag/internal/storage"
	"github.com/kailas-cloud/contractrag/internal/storage/memstore"
	"github.com/kailas-cloud/contractrag/internal/storage/redisstore"
	"github.com/kailas-cloud/contractrag/internal/transport/ollama"
	"github.com/kailas-cloud/contractrag/internal/transport/openai"
	healthuc "github.com/kailas-cloud/contractrag/internal/usecase/health"
	"github.com/kailas-cloud/contractrag/internal/usecase/indexing"
	"github.com/kailas-cloud/contractrag/internal/usecase/query"
)

// Model providers accepted in schema and llm config.
const (
	providerOllama = "ollama"
	providerOpenAI = "openai"
	providerEcho   = "echo"
)

type (
	// Answer is the outcome of Ask.
	Answer = query.Answer
	// SearchResult is one ranked page.
	SearchResult = result.Result
	// IndexReport summarizes an Index run.
	IndexReport = indexing.Report
	// HealthReport is the outcome of Health.
	HealthReport = healthuc.Report
)

// storePort is a storage session that can also be probed.
type storePort interface {
	storage.Port
	storage.Pinger
}

// Client is the contractrag SDK entry point. Every call opens its own
// storage session, so a Client is safe for concurrent use.
type Client struct {
	cfg      config.Config
	schema   schema.Schema
	embedder domain.Embedder
	model    llm.Model
	rawModel llm.Model

	// memory driver state, shared by all sessions of this Client
	data     *memstore.Data
	progress *checkpoint.Memory

	obs    *observer
	logger *zap.Logger
}

// New creates a Client. Without WithConfig or WithConfigFile the
// configuration is loaded for the current ENV.
func New(opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}

	cfg, err := cc.load()
	if err != nil {
		return nil, err
	}

	logger := cc.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterLLMMetrics()
	metrics.RegisterPipelineMetrics()

	obs, err := newObserver(logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	sc := cfg.Schema.ToSchema()

	emb := cc.embedder
	if emb == nil {
		if emb, err = buildEmbedder(cfg, sc.VectorConfig, logger); err != nil {
			return nil, err
		}
	}

	model := cc.model
	if model == nil {
		if model, err = buildModel(cfg, sc.GenerativeConfig, logger); err != nil {
			return nil, err
		}
	}

	return &Client{
		cfg:      cfg,
		schema:   sc,
		embedder: emb,
		model:    llm.WithDefaults(model, modelDefaults(cfg.LLM)...),
		rawModel: model,
		data:     memstore.NewData(),
		progress: checkpoint.NewMemory(),
		obs:      obs,
		logger:   logger,
	}, nil
}

func (c *clientConfig) load() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	switch {
	case c.cfgSet:
		cfg = c.cfg
	case c.cfgPath != "":
		cfg, err = config.LoadFile(c.cfgPath)
	default:
		env := c.cfgEnv
		if env == "" {
			env = config.GetEnv()
		}
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("contractrag: %w", err)
	}

	for _, fn := range c.overrides {
		fn(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, domain.Validationf("contractrag: invalid config: %v", err)
	}
	return cfg, nil
}

func buildEmbedder(cfg config.Config, vc schema.VectorConfig, logger *zap.Logger) (domain.Embedder, error) {
	if !vc.IsSet() {
		return nil, nil
	}
	switch vc.Provider {
	case providerOllama:
		e, err := ollama.NewEmbedder(&ollama.Config{
			BaseURL: vc.Endpoint,
			Model:   vc.Model,
			Timeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("contractrag: ollama embedder: %w", err)
		}
		return e, nil
	case providerOpenAI:
		return openai.NewEmbedder(&openai.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    vc.Endpoint,
			Model:      vc.Model,
			Dimensions: vc.Dimensions,
			Provider:   providerOpenAI,
			Logger:     logger,
		}), nil
	default:
		return nil, domain.Validationf("contractrag: unknown vectorizer provider %q", vc.Provider)
	}
}

func buildModel(cfg config.Config, gc schema.ModelConfig, logger *zap.Logger) (llm.Model, error) {
	provider := cfg.LLM.Provider
	if provider == "" {
		provider = gc.Provider
	}
	switch provider {
	case providerEcho:
		return llm.Echo{Prefix: cfg.LLM.EchoPrefix}, nil
	case providerOllama:
		m, err := ollama.NewChatModel(&ollama.Config{
			BaseURL: gc.Endpoint,
			Model:   gc.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("contractrag: ollama chat model: %w", err)
		}
		return m, nil
	case providerOpenAI:
		return openai.NewChatModel(&openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: gc.Endpoint,
			Model:   gc.Model,
			Logger:  logger,
		}), nil
	default:
		return nil, domain.Validationf("contractrag: unknown language model provider %q", provider)
	}
}

func modelDefaults(c config.LLMConfig) []llm.Option {
	var opts []llm.Option
	if c.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*c.Temperature))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(c.MaxTokens))
	}
	return opts
}

// Schema returns the collection schema the Client indexes into.
func (c *Client) Schema() schema.Schema { return c.schema }

// newStore builds a fresh, disconnected storage session.
func (c *Client) newStore() storePort {
	if c.cfg.Database.Driver == config.DriverMemory {
		return memstore.New(c.data, memstore.WithEmbedder(c.embedder))
	}

	opts := []redisstore.Option{
		redisstore.WithPrefix(c.cfg.Database.KeyPrefix),
		redisstore.WithLogger(c.logger),
	}
	if c.embedder != nil {
		opts = append(opts, redisstore.WithEmbedder(c.embedder))
	}
	if c.cfg.Embedding.Cache {
		ttl := time.Duration(c.cfg.Embedding.CacheTTLSec) * time.Second
		opts = append(opts, redisstore.WithEmbeddingCache(ttl, metrics.EmbeddingCacheTotal))
	}
	return redisstore.New(redisstore.Dial(c.redisConfig(), c.readiness()), opts...)
}

func (c *Client) redisConfig() dbredis.Config {
	db := c.cfg.Database
	return dbredis.Config{
		Addrs:       db.Addrs,
		Username:    db.Username,
		Password:    db.Password,
		DB:          db.DB,
		DialTimeout: time.Duration(db.DialTimeoutSec) * time.Second,
	}
}

func (c *Client) readiness() time.Duration {
	return time.Duration(c.cfg.Database.ReadinessTimeout) * time.Second
}

func (c *Client) catalog() (catalog.Catalog, error) {
	if c.cfg.Catalog.Path == "" {
		return catalog.Catalog{}, nil
	}
	cat, err := catalog.Load(c.cfg.Catalog.Path)
	if err != nil {
		return catalog.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// checkpoint returns the resume store and a function releasing it.
func (c *Client) checkpoint(ctx context.Context) (indexing.Checkpoint, func(), error) {
	if c.cfg.Database.Driver == config.DriverMemory {
		return c.progress, func() {}, nil
	}

	s, err := dbredis.NewStore(c.redisConfig())
	if err != nil {
		return nil, nil, domain.NewProviderError("open checkpoint store", err)
	}
	if err := s.WaitForReady(ctx, c.readiness()); err != nil {
		s.Close()
		return nil, nil, domain.NewProviderError("open checkpoint store", err)
	}
	prefix := c.cfg.Database.KeyPrefix + "checkpoint:"
	return checkpoint.NewRedis(s, prefix, c.schema.CollectionName), s.Close, nil
}

// Index parses the catalog documents, splits them into pages and stores
// the pages. The first failing document aborts the run.
func (c *Client) Index(ctx context.Context) (rep IndexReport, err error) {
	defer c.obs.track("index")(&err)

	cat, err := c.catalog()
	if err != nil {
		return IndexReport{}, err
	}
	docs, err := cat.Resolve(c.cfg.Catalog.DataFolder, c.cfg.Catalog.DiscoverPattern)
	if err != nil {
		return IndexReport{}, fmt.Errorf("resolve documents: %w", err)
	}
	if len(docs) == 0 {
		c.logger.Warn("No documents to index", zap.String("data_folder", c.cfg.Catalog.DataFolder))
	}

	opts := []indexing.Option{indexing.WithLogger(c.logger)}
	if c.cfg.Indexing.Resume {
		cp, release, err := c.checkpoint(ctx)
		if err != nil {
			return IndexReport{}, err
		}
		defer release()
		opts = append(opts, indexing.WithCheckpoint(cp))
	}

	svc := indexing.New(c.newStore(), elements.NewReader(c.cfg.Catalog.DataFolder), indexing.Config{
		Schema:    c.schema,
		DropAll:   c.cfg.Indexing.DropAll != nil && *c.cfg.Indexing.DropAll,
		Workers:   c.cfg.Indexing.Workers,
		BatchSize: c.cfg.Indexing.BatchSize,
		Resume:    c.cfg.Indexing.Resume,
		Segment:   c.cfg.SegmentOptions(),
	}, opts...)

	return svc.Run(ctx, docs)
}

func (c *Client) queryConfig(opts []QueryOption) (query.Config, error) {
	var p queryParams
	for _, o := range opts {
		o(&p)
	}

	strategy := c.cfg.Query.Strategy
	if p.strategy != "" {
		strategy = p.strategy
	}
	m := mode.Parse(strategy)
	if !m.IsValid() {
		return query.Config{}, domain.Validationf("unknown search strategy %q", strategy)
	}
	limit := c.cfg.Query.Limit
	if p.limit != 0 {
		limit = p.limit
	}

	cat, err := c.catalog()
	if err != nil {
		return query.Config{}, err
	}

	prompts := c.cfg.Query.Prompts
	return query.Config{
		Collection:    c.schema.CollectionName,
		Strategy:      m,
		Limit:         limit,
		Filter:        cat.Filter,
		OnSearchError: query.SearchErrorPolicy(c.cfg.Query.OnSearchError),
		Prompts: query.Prompts{
			EntityResolution: prompts.EntityResolution,
			AnswerGeneration: prompts.AnswerGeneration,
			Instructions:     prompts.Instructions,
		},
	}, nil
}

// Ask answers a question about the indexed contracts.
func (c *Client) Ask(ctx context.Context, question string, opts ...QueryOption) (ans Answer, err error) {
	defer c.obs.track("ask")(&err)

	qc, err := c.queryConfig(opts)
	if err != nil {
		return Answer{}, err
	}
	return query.New(c.newStore(), c.model, qc, query.WithLogger(c.logger)).Run(ctx, question)
}

// Search runs a raw strategy search with the catalog filter applied,
// without the language model.
func (c *Client) Search(ctx context.Context, q string, opts ...QueryOption) (res []SearchResult, err error) {
	defer c.obs.track("search")(&err)

	if strings.TrimSpace(q) == "" {
		return nil, domain.Validationf("query must not be empty")
	}
	qc, err := c.queryConfig(opts)
	if err != nil {
		return nil, err
	}
	f, err := metafilter.Build(qc.Filter)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	s := c.newStore()
	if err := s.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	defer c.closeStore(s)

	res, err = storage.Search(ctx, s, storage.Request{
		Strategy:   qc.Strategy,
		Collection: qc.Collection,
		Query:      q,
		Limit:      qc.Limit,
		Filter:     f,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return res, nil
}

// Health probes storage, the embedding provider and the language model.
// Providers that cannot be probed are left out of the report.
func (c *Client) Health(ctx context.Context) HealthReport {
	svc := healthuc.New(healthuc.PingFunc(c.pingStorage), checker(c.embedder), checker(c.rawModel))
	return svc.Check(ctx)
}

func (c *Client) pingStorage(ctx context.Context) error {
	s := c.newStore()
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer c.closeStore(s)
	return s.Ping(ctx)
}

func (c *Client) closeStore(s storePort) {
	if err := s.Close(); err != nil {
		c.logger.Warn("Failed to close storage", zap.Error(err))
	}
}

func checker(v any) healthuc.ProviderChecker {
	if hc, ok := v.(domain.HealthChecker); ok {
		return hc
	}
	return nil
}
