// Package indexing runs the write path: parse each catalog document,
// segment it into page records and insert them into storage.
package indexing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/contractrag/internal/catalog"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/metrics"
	"github.com/kailas-cloud/contractrag/internal/segment"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

// Config controls a run.
type Config struct {
	Schema schema.Schema
	// DropAll removes every collection before the schema is created.
	DropAll bool
	// Workers bounds concurrent documents. Values below 1 mean 1.
	Workers   int
	BatchSize int
	// Resume skips documents recorded in the checkpoint. Has no effect
	// without a checkpoint.
	Resume bool
	// Segmenter options applied to every document.
	Segment []segment.Option
}

// Report summarizes a run.
type Report struct {
	Documents int
	Indexed   int
	Skipped   int
	Pages     int
	Resumed   bool
}

// Option configures a Service.
type Option func(*Service)

// WithCheckpoint enables resumable runs.
func WithCheckpoint(cp Checkpoint) Option {
	return func(s *Service) { s.checkpoint = cp }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the indexing pipeline.
type Service struct {
	store      Store
	parser     Parser
	cfg        Config
	checkpoint Checkpoint
	logger     *zap.Logger
}

// New creates an indexing pipeline.
func New(store Store, parser Parser, cfg Config, opts ...Option) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	s := &Service{store: store, parser: parser, cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run indexes docs. The first failing document aborts the run and its
// name is part of the returned error; pages already inserted stay.
// The store session is closed on every path.
func (s *Service) Run(ctx context.Context, docs []catalog.Document) (rep Report, err error) {
	rep.Documents = len(docs)

	if err := s.store.Connect(ctx); err != nil {
		return rep, fmt.Errorf("connect storage: %w", err)
	}
	defer func() {
		if cerr := s.store.Close(); cerr != nil {
			s.logger.Warn("Failed to close storage", zap.Error(cerr))
			if err == nil {
				err = fmt.Errorf("close storage: %w", cerr)
			}
		}
	}()

	done, err := s.prepare(ctx)
	if err != nil {
		return rep, err
	}
	rep.Resumed = len(done) > 0

	var indexed, pages atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, doc := range docs {
		if _, ok := done[doc.FileName]; ok {
			rep.Skipped++
			metrics.IndexedDocumentsTotal.WithLabelValues("skipped").Inc()
			s.logger.Info("Skipping indexed document", zap.String("document", doc.FileName))
			continue
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := s.indexDocument(gctx, doc)
			if err != nil {
				metrics.IndexedDocumentsTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("index %s: %w", doc.FileName, err)
			}
			indexed.Add(1)
			pages.Add(int64(n))
			metrics.IndexedDocumentsTotal.WithLabelValues("indexed").Inc()
			return nil
		})
	}

	err = g.Wait()
	rep.Indexed = int(indexed.Load())
	rep.Pages = int(pages.Load())
	if err == nil && rep.Indexed+rep.Skipped < rep.Documents {
		err = fmt.Errorf("indexing stopped after %d of %d documents: %w",
			rep.Indexed+rep.Skipped, rep.Documents, ctx.Err())
	}
	if err != nil {
		return rep, err
	}

	s.logger.Info("Indexing finished",
		zap.Int("documents", rep.Documents),
		zap.Int("indexed", rep.Indexed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("pages", rep.Pages))
	return rep, nil
}

// prepare sets up the collection and returns the documents to skip.
func (s *Service) prepare(ctx context.Context) (map[string]struct{}, error) {
	if s.cfg.Resume && s.checkpoint != nil {
		done, err := s.checkpoint.Indexed(ctx)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if len(done) > 0 {
			s.logger.Info("Resuming indexing", zap.Int("done", len(done)))
			return done, nil
		}
	}

	if s.cfg.DropAll {
		if err := s.store.DropAllCollections(ctx); err != nil {
			return nil, fmt.Errorf("drop collections: %w", err)
		}
	}
	if err := s.store.CreateSchema(ctx, s.cfg.Schema); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", s.cfg.Schema.CollectionName, err)
	}
	if s.checkpoint != nil {
		if err := s.checkpoint.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset checkpoint: %w", err)
		}
	}
	return nil, nil
}

func (s *Service) indexDocument(ctx context.Context, doc catalog.Document) (int, error) {
	start := time.Now()
	elements, err := s.parser.Parse(ctx, doc.FileName)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	metrics.PipelineStageDuration.WithLabelValues("indexing", "parse").Observe(time.Since(start).Seconds())

	records := segment.Run(doc.FileName, doc.Metadata(), elements, s.cfg.Segment...)
	if len(records) == 0 {
		s.logger.Warn("Document produced no pages", zap.String("document", doc.FileName),
			zap.Int("elements", len(elements)))
	} else {
		objects := make([]storage.Object, len(records))
		for i, r := range records {
			objects[i] = r.Properties()
		}

		start = time.Now()
		if err := s.store.InsertObjects(ctx, s.cfg.Schema.CollectionName, objects, s.cfg.BatchSize); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		metrics.PipelineStageDuration.WithLabelValues("indexing", "insert").Observe(time.Since(start).Seconds())
		metrics.IndexedPagesTotal.Add(float64(len(records)))
	}

	if s.checkpoint != nil {
		if err := s.checkpoint.MarkIndexed(ctx, doc.FileName); err != nil {
			return 0, fmt.Errorf("checkpoint: %w", err)
		}
	}

	s.logger.Info("Indexed document", zap.String("document", doc.FileName), zap.Int("pages", len(records)))
	return len(records), nil
}
