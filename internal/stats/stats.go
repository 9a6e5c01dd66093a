package stats

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omnivibe"

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	RegisterCounter(name string)
}

// StatsUpdater exposes server metrics on a Prometheus registry.
// RegisterMetric creates a gauge for values that go up and down (live
// connections, online users); RegisterCounter creates a counter for
// monotonic totals.
type StatsUpdater struct {
	mu       sync.RWMutex
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
	counters map[string]prometheus.Counter
}

// NewStatsUpdater creates a stats updater and mounts its scrape
// endpoint on mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
		counters: make(map[string]prometheus.Counter),
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_milliseconds",
		Help:      "Time since the server started.",
	}, func() float64 {
		return float64(time.Since(startTime).Milliseconds())
	}))
}

// RegisterMetric registers a gauge under the given name. Registering
// the same name twice panics, matching Prometheus semantics.
func (su *StatsUpdater) RegisterMetric(name string) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      toSnake(name),
	})
	su.registry.MustRegister(gauge)

	su.mu.Lock()
	su.gauges[name] = gauge
	su.mu.Unlock()
}

// RegisterCounter registers a counter under the given name.
func (su *StatsUpdater) RegisterCounter(name string) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      toSnake(name) + "_total",
	})
	su.registry.MustRegister(counter)

	su.mu.Lock()
	su.counters[name] = counter
	su.mu.Unlock()
}

func (su *StatsUpdater) Incr(name string) {
	su.mu.RLock()
	defer su.mu.RUnlock()

	if counter, ok := su.counters[name]; ok {
		counter.Inc()
		return
	}
	if gauge, ok := su.gauges[name]; ok {
		gauge.Inc()
		return
	}
	panic("metric not found: " + name)
}

func (su *StatsUpdater) Decr(name string) {
	su.mu.RLock()
	defer su.mu.RUnlock()

	gauge, ok := su.gauges[name]
	if !ok {
		panic("metric not found: " + name)
	}
	gauge.Dec()
}

// toSnake converts a CamelCase metric name to the snake_case form
// Prometheus expects, e.g. NumActiveClients -> num_active_clients.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
