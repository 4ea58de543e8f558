package contractrag

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
)

// Operation outcomes recorded in the status label.
const (
	statusOK       = "ok"
	statusInvalid  = "invalid"
	statusProvider = "provider_error"
	statusError    = "error"
)

func status(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, domain.ErrValidation):
		return statusInvalid
	case domain.IsProviderError(err):
		return statusProvider
	}
	return statusError
}

type clientMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contractrag",
		Subsystem: "client",
		Name:      "operations_total",
		Help:      "Client operations by name and outcome.",
	}, []string{"operation", "status"})
	dur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contractrag",
		Subsystem: "client",
		Name:      "operation_duration_seconds",
		Help:      "Client operation latency.",
		// answers wait on a language model, indexing on whole documents
		Buckets: prometheus.ExponentialBuckets(0.05, 2.5, 10),
	}, []string{"operation"})

	var err error
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if dur, err = register(reg, dur); err != nil {
		return nil, err
	}
	return &clientMetrics{operations: ops, duration: dur}, nil
}

// register adds c to reg. When an identical collector is already there it
// is returned instead, so several Clients can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("contractrag: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("contractrag: metric registered as %T", are.ExistingCollector)
	}
	return existing, nil
}

// observer logs and counts Client operations. A nil observer is a no-op.
type observer struct {
	logger  *zap.Logger
	metrics *clientMetrics
}

func newObserver(logger *zap.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

// track starts timing op. Call the returned func with the operation's
// named error result when it finishes:
//
//	defer c.obs.track("ask")(&err)
func (o *observer) track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		if o == nil {
			return
		}
		var err error
		if errp != nil {
			err = *errp
		}
		o.done(op, time.Since(start), err)
	}
}

func (o *observer) done(op string, took time.Duration, err error) {
	st := status(err)
	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, st).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(took.Seconds())
	}
	if o.logger == nil {
		return
	}
	fields := []zap.Field{zap.String("op", op), zap.Duration("took", took)}
	if err != nil {
		o.logger.Warn("Operation failed", append(fields, zap.String("status", st), zap.Error(err))...)
		return
	}
	o.logger.Debug("Operation completed", fields...)
}
