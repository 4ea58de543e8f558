// Package query runs the read path: entity extraction, filtered search,
// prompt assembly and answer generation.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/domain/search/mode"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	"github.com/kailas-cloud/contractrag/internal/llm"
	"github.com/kailas-cloud/contractrag/internal/metafilter"
	"github.com/kailas-cloud/contractrag/internal/metrics"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

// SearchErrorPolicy decides what a failed search does to the run.
type SearchErrorPolicy string

const (
	// Degrade turns a provider failure into an empty passage list.
	// Other error kinds still propagate.
	Degrade SearchErrorPolicy = "degrade"
	// Fail propagates every search error.
	Fail SearchErrorPolicy = "fail"
)

// IsValid reports whether p is a known policy.
func (p SearchErrorPolicy) IsValid() bool { return p == Degrade || p == Fail }

// Prompts are the system messages and instructions sent to the model.
type Prompts struct {
	EntityResolution string
	AnswerGeneration string
	Instructions     string
}

// Config controls a run. Zero values take the defaults from ApplyDefaults.
type Config struct {
	Collection    string
	Strategy      mode.Mode
	Limit         int
	Filter        metafilter.Config
	OnSearchError SearchErrorPolicy
	Prompts       Prompts
}

// Defaults for Config.
const (
	DefaultStrategy = mode.Hybrid
	DefaultLimit    = 2
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = DefaultStrategy
	}
	if c.Limit == 0 {
		c.Limit = DefaultLimit
	}
	if c.OnSearchError == "" {
		c.OnSearchError = Degrade
	}
	if c.Prompts.EntityResolution == "" {
		c.Prompts.EntityResolution = DefaultEntityResolutionPrompt
	}
	if c.Prompts.AnswerGeneration == "" {
		c.Prompts.AnswerGeneration = DefaultAnswerGenerationPrompt
	}
	if c.Prompts.Instructions == "" {
		c.Prompts.Instructions = DefaultInstructions
	}
}

// Answer is the outcome of a run.
type Answer struct {
	Text string
	// SearchQuery is the entity extraction output the search ran with.
	SearchQuery string
	Passages    []string
	// Degraded is set when a search failure was downgraded to no passages.
	Degraded bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the query pipeline.
type Service struct {
	store  Store
	model  llm.Model
	cfg    Config
	logger *zap.Logger
}

// New creates a query pipeline. cfg gets ApplyDefaults.
func New(store Store, model llm.Model, cfg Config, opts ...Option) *Service {
	cfg.ApplyDefaults()
	s := &Service{store: store, model: model, cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run answers userQuery. Language model failures always propagate; search
// failures follow Config.OnSearchError.
func (s *Service) Run(ctx context.Context, userQuery string) (ans Answer, err error) {
	defer func() {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case ans.Degraded:
			status = "degraded"
		}
		metrics.QueriesTotal.WithLabelValues(status).Inc()
	}()

	if !s.cfg.OnSearchError.IsValid() {
		return Answer{}, domain.Validationf("unknown search error policy %q", s.cfg.OnSearchError)
	}
	if err := llm.ValidatePrompt(userQuery); err != nil {
		return Answer{}, err
	}

	if err := s.store.Connect(ctx); err != nil {
		return Answer{}, fmt.Errorf("connect storage: %w", err)
	}
	defer func() {
		if cerr := s.store.Close(); cerr != nil {
			s.logger.Warn("Failed to close storage", zap.Error(cerr))
		}
	}()

	searchQuery, err := s.extractEntities(ctx, userQuery)
	if err != nil {
		return Answer{}, err
	}
	ans.SearchQuery = searchQuery

	f, err := metafilter.Build(s.cfg.Filter)
	if err != nil {
		return Answer{}, fmt.Errorf("build filter: %w", err)
	}

	results, degraded, err := s.search(ctx, searchQuery, f)
	if err != nil {
		return Answer{}, err
	}
	ans.Degraded = degraded
	ans.Passages = passages(results)

	prompt := BuildPrompt(s.cfg.Prompts.Instructions, ans.Passages, userQuery)

	start := time.Now()
	text, err := s.model.Invoke(ctx, prompt, llm.WithSystemMessage(s.cfg.Prompts.AnswerGeneration))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	metrics.PipelineStageDuration.WithLabelValues("query", "answer").Observe(time.Since(start).Seconds())

	ans.Text = text
	return ans, nil
}

// extractEntities returns the model output verbatim. A blank output reaches
// the search as is; keyword search then matches nothing.
func (s *Service) extractEntities(ctx context.Context, userQuery string) (string, error) {
	start := time.Now()
	out, err := s.model.Invoke(ctx, userQuery, llm.WithSystemMessage(s.cfg.Prompts.EntityResolution))
	if err != nil {
		return "", fmt.Errorf("extract entities: %w", err)
	}
	metrics.PipelineStageDuration.WithLabelValues("query", "entities").Observe(time.Since(start).Seconds())

	if strings.TrimSpace(out) == "" {
		s.logger.Debug("Entity extraction returned nothing")
	}
	return out, nil
}

func (s *Service) search(ctx context.Context, q string, f filter.Expression) ([]result.Result, bool, error) {
	req := storage.Request{
		Strategy:   s.cfg.Strategy,
		Collection: s.cfg.Collection,
		Query:      q,
		Limit:      s.cfg.Limit,
		Filter:     f,
	}

	start := time.Now()
	results, err := storage.Search(ctx, s.store, req)
	if err == nil {
		metrics.PipelineStageDuration.WithLabelValues("query", "search").Observe(time.Since(start).Seconds())
		return results, false, nil
	}

	if s.cfg.OnSearchError == Degrade && domain.IsProviderError(err) {
		metrics.SearchDegradedTotal.WithLabelValues(string(s.cfg.Strategy)).Inc()
		s.logger.Warn("Search failed, answering without passages",
			zap.String("strategy", string(s.cfg.Strategy)),
			zap.String("collection", s.cfg.Collection),
			zap.Error(err))
		return nil, true, nil
	}
	return nil, false, err
}

// passages keeps the string content of each result; others are dropped.
func passages(results []result.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if c, ok := r.Content(); ok {
			out = append(out, c)
		}
	}
	return out
}
