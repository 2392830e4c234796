package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "delegation_relayer"

// CountBuckets is a shared bucket layout for "number of items" histograms.
var CountBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250}

var (
	defaultRegistry     = prometheus.NewRegistry()
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry all component registries
// attach to. It is separate from prometheus.DefaultRegisterer so the exposed
// metric set stays under our control.
func DefaultRegistry() *prometheus.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return defaultRegistry
}

// ComponentRegistry namespaces and registers collectors for a single component.
type ComponentRegistry struct {
	registerer prometheus.Registerer
	subsystem  string
}

// NewComponentRegistry creates a registry scoped to the given component name.
// An optional instance label distinguishes multiple instances of the component.
func NewComponentRegistry(component, instance string) *ComponentRegistry {
	return NewComponentRegistryOn(DefaultRegistry(), component, instance)
}

// NewComponentRegistryOn is like NewComponentRegistry but attaches to the
// given registerer instead of the process-wide registry. Used by tests.
func NewComponentRegistryOn(reg prometheus.Registerer, component, instance string) *ComponentRegistry {
	if instance != "" {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"instance": instance}, reg)
	}
	return &ComponentRegistry{
		registerer: reg,
		subsystem:  component,
	}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounter(opts)
	r.registerer.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounterVec(opts, labels)
	r.registerer.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGauge(opts)
	r.registerer.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGaugeVec(opts, labels)
	r.registerer.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogram(opts)
	r.registerer.MustRegister(h)
	return h
}
