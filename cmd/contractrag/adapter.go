package main

import (
	"context"

	"github.com/kailas-cloud/contractrag"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	chiTransport "github.com/kailas-cloud/contractrag/internal/transport/chi"
	healthuc "github.com/kailas-cloud/contractrag/internal/usecase/health"
	"github.com/kailas-cloud/contractrag/internal/usecase/query"
)

// engine serves HTTP queries through the SDK client so both surfaces share
// one composition root.
type engine struct {
	client *contractrag.Client
}

func (e engine) Ask(ctx context.Context, q string, p chiTransport.Params) (query.Answer, error) {
	return e.client.Ask(ctx, q, queryOptions(p)...)
}

func (e engine) Search(ctx context.Context, q string, p chiTransport.Params) ([]result.Result, error) {
	return e.client.Search(ctx, q, queryOptions(p)...)
}

func queryOptions(p chiTransport.Params) []contractrag.QueryOption {
	return []contractrag.QueryOption{
		contractrag.WithStrategy(string(p.Strategy)),
		contractrag.WithLimit(p.Limit),
	}
}

type healthProbe struct {
	client *contractrag.Client
}

func (h healthProbe) Check(ctx context.Context) healthuc.Report {
	return h.client.Health(ctx)
}
