package vm

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the per-heap Prometheus collectors. Each heap owns its own
// registry so several VMs can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	allocations    *prometheus.CounterVec
	allocatedWords prometheus.Counter
	usedWords      prometheus.Gauge
	gcCycles       prometheus.Counter
	sweptWords     prometheus.Counter
	relocations    prometheus.Counter
	outOfMemory    prometheus.Counter
	copiedElements *prometheus.CounterVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarray_allocations_total",
			Help: "Array instances allocated, by descriptor.",
		}, []string{"type"}),
		allocatedWords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tarray_allocated_words_total",
			Help: "Heap words handed out to array instances.",
		}),
		usedWords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tarray_heap_used_words",
			Help: "Heap words currently reserved.",
		}),
		gcCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tarray_gc_cycles_total",
			Help: "Completed collection cycles.",
		}),
		sweptWords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tarray_swept_words_total",
			Help: "Heap words reclaimed by the collector.",
		}),
		relocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tarray_relocations_total",
			Help: "Instances moved by the collector.",
		}),
		outOfMemory: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tarray_out_of_memory_total",
			Help: "Allocations that failed after collection.",
		}),
		copiedElements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarray_copied_elements_total",
			Help: "Elements moved by array copy, by descriptor.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.allocations,
		m.allocatedWords,
		m.usedWords,
		m.gcCycles,
		m.sweptWords,
		m.relocations,
		m.outOfMemory,
		m.copiedElements,
	)
	return m
}

// Registry returns the registry the heap's collectors are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
