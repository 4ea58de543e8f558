package chi

import (
	"context"

	"github.com/kailas-cloud/contractrag/internal/domain/search/mode"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/contractrag/internal/usecase/health"
	"github.com/kailas-cloud/contractrag/internal/usecase/query"
)

// Params overrides the configured retrieval settings for one request.
// Zero values keep the configured ones.
type Params struct {
	Strategy mode.Mode
	Limit    int
}

// Engine runs the pipelines behind the /v1 routes. Implementations open
// a fresh storage session per call.
type Engine interface {
	Ask(ctx context.Context, q string, p Params) (query.Answer, error)
	Search(ctx context.Context, q string, p Params) ([]result.Result, error)
}

// HealthChecker reports component health for GET /health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
