// Package metrics exports pool and cursor events as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vvka-141/sqlpool/internal/pool"
	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// Collector implements sqlpool.Observer on a private registry.
// Fingerprints are exported in their short form as the "pool" label.
type Collector struct {
	registry *prometheus.Registry

	connectionsOpened  *prometheus.CounterVec
	connectionsClosed  *prometheus.CounterVec
	connectDuration    *prometheus.HistogramVec
	connectRetries     *prometheus.CounterVec
	checkouts          *prometheus.CounterVec
	checkins           *prometheus.CounterVec
	healthCheckFailure *prometheus.CounterVec
	exhausted          *prometheus.CounterVec
	statementRetries   *prometheus.CounterVec
	statementFailures  *prometheus.CounterVec

	mu      sync.Mutex
	watched bool
}

var _ sqlpool.Observer = (*Collector)(nil)

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		connectionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Connections opened by the connector",
		}, []string{"pool"}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections closed by the pool",
		}, []string{"pool", "reason"}),
		connectDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time to open a connection, retries included",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"pool"}),
		connectRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_retries_total",
			Help:      "Failed open attempts that were retried",
		}, []string{"pool"}),
		checkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Successful checkouts",
		}, []string{"pool", "source"}),
		checkins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Connections handed back to the pool",
		}, []string{"pool"}),
		healthCheckFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_check_failures_total",
			Help:      "Idle connections that failed the checkout health check",
		}, []string{"pool"}),
		exhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exhausted_total",
			Help:      "Checkouts refused because the pool was full",
		}, []string{"pool"}),
		statementRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_retries_total",
			Help:      "Statements re-sent on a replacement connection",
		}, []string{"pool", "kind"}),
		statementFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_failures_total",
			Help:      "Statements that failed, by error kind",
		}, []string{"pool", "kind"}),
	}
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// WatchPool exports the live idle, in-use and open counts of p as gauges.
// Only the first call has an effect.
func (c *Collector) WatchPool(p *pool.Pool, namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watched {
		return
	}
	c.watched = true
	c.registry.MustRegister(newPoolStatsCollector(namespace, p.AllStats))
}

func (c *Collector) ConnectionOpened(fp sqlpool.Fingerprint, took time.Duration) {
	c.connectionsOpened.WithLabelValues(fp.Short()).Inc()
	c.connectDuration.WithLabelValues(fp.Short()).Observe(took.Seconds())
}

func (c *Collector) ConnectionClosed(fp sqlpool.Fingerprint, reason sqlpool.CloseReason) {
	c.connectionsClosed.WithLabelValues(fp.Short(), string(reason)).Inc()
}

func (c *Collector) ConnectRetried(fp sqlpool.Fingerprint, _ int, _ time.Duration) {
	c.connectRetries.WithLabelValues(fp.Short()).Inc()
}

func (c *Collector) CheckedOut(fp sqlpool.Fingerprint, reused bool) {
	source := "new"
	if reused {
		source = "idle"
	}
	c.checkouts.WithLabelValues(fp.Short(), source).Inc()
}

func (c *Collector) CheckedIn(fp sqlpool.Fingerprint) {
	c.checkins.WithLabelValues(fp.Short()).Inc()
}

func (c *Collector) HealthCheckFailed(fp sqlpool.Fingerprint) {
	c.healthCheckFailure.WithLabelValues(fp.Short()).Inc()
}

func (c *Collector) PoolExhausted(fp sqlpool.Fingerprint) {
	c.exhausted.WithLabelValues(fp.Short()).Inc()
}

func (c *Collector) StatementRetried(fp sqlpool.Fingerprint, kind sqlpool.ErrorKind) {
	c.statementRetries.WithLabelValues(fp.Short(), kind.String()).Inc()
}

func (c *Collector) StatementFailed(fp sqlpool.Fingerprint, kind sqlpool.ErrorKind) {
	c.statementFailures.WithLabelValues(fp.Short(), kind.String()).Inc()
}

// poolStatsCollector reads pool counters at scrape time.
type poolStatsCollector struct {
	stats func() []pool.Stats
	idle  *prometheus.Desc
	inUse *prometheus.Desc
	open  *prometheus.Desc
	max   *prometheus.Desc
}

func newPoolStatsCollector(namespace string, stats func() []pool.Stats) *poolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"pool"}, nil)
	}
	return &poolStatsCollector{
		stats: stats,
		idle:  desc("connections_idle", "Idle connections"),
		inUse: desc("connections_in_use", "Checked-out connections"),
		open:  desc("connections_open", "Open connections, including those being opened"),
		max:   desc("connections_max", "Configured maximum per pool"),
	}
}

func (c *poolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.idle
	ch <- c.inUse
	ch <- c.open
	ch <- c.max
}

func (c *poolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.stats() {
		label := s.Fingerprint.Short()
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle), label)
		ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse), label)
		ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.Open), label)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max), label)
	}
}
