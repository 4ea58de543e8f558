// Package metrics holds the Prometheus collectors of contractrag. Every
// group is registered on the default registry by its Register function;
// registration happens once per process however often it is called.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contractrag"

func register(once *sync.Once, cs ...prometheus.Collector) {
	once.Do(func() {
		prometheus.MustRegister(cs...)
	})
}
