package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/search/mode"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/contractrag/internal/logger"
	"github.com/kailas-cloud/contractrag/internal/metrics"
	healthuc "github.com/kailas-cloud/contractrag/internal/usecase/health"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeNotFound           ErrorCode = "not_found"
	CodeRateLimited        ErrorCode = "rate_limited"
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
	CodeEmbeddingProvider  ErrorCode = "embedding_provider_error"
	CodeProviderError      ErrorCode = "provider_error"
	CodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the body of POST /v1/query and POST /v1/search.
type QueryRequest struct {
	Query    string `json:"query"`
	Strategy string `json:"strategy,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	Answer      string   `json:"answer"`
	SearchQuery string   `json:"search_query"`
	Passages    []string `json:"passages"`
	Degraded    bool     `json:"degraded"`
}

// SearchResultItem is one ranked object.
type SearchResultItem struct {
	ID         string         `json:"id"`
	Score      *float64       `json:"score,omitempty"`
	Distance   *float64       `json:"distance,omitempty"`
	Properties map[string]any `json:"properties"`
}

// SearchResponse is the body of a successful POST /v1/search.
type SearchResponse struct {
	Items []SearchResultItem `json:"items"`
	Total int                `json:"total"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the question-answering API.
type Server struct {
	engine        Engine
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(engine Engine, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, health: health, logger: logger}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrConnection, http.StatusServiceUnavailable, CodeStorageUnavailable),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.Query)
		r.Post("/search", s.Search)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	q, params, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	ans, err := s.engine.Ask(r.Context(), q, params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	passages := ans.Passages
	if passages == nil {
		passages = []string{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:      ans.Text,
		SearchQuery: ans.SearchQuery,
		Passages:    passages,
		Degraded:    ans.Degraded,
	})
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q, params, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	results, err := s.engine.Search(r.Context(), q, params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i := range results {
		items[i] = searchResultToItem(results[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (string, Params, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return "", Params{}, false
	}

	var p Params
	if req.Strategy != "" {
		p.Strategy = mode.Parse(req.Strategy)
		if !p.Strategy.IsValid() {
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				"strategy must be one of bm25, vector, hybrid")
			return "", Params{}, false
		}
	}
	if req.Limit != nil {
		if *req.Limit <= 0 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be positive")
			return "", Params{}, false
		}
		p.Limit = *req.Limit
	}
	return req.Query, p, true
}

func searchResultToItem(r result.Result) SearchResultItem {
	item := SearchResultItem{ID: r.ID(), Properties: r.Properties()}
	if item.Properties == nil {
		item.Properties = map[string]any{}
	}
	if score, ok := r.Score(); ok {
		item.Score = &score
	}
	if dist, ok := r.Distance(); ok {
		item.Distance = &dist
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// validationHandler passes the full message through: it describes caller input.
func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel
// and reports only the sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
