package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalog"

// Metrics records import pipeline activity. A nil *Metrics, or one built
// with a nil registerer, records nothing.
type Metrics struct {
	imports        *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	fetches        *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	outboxPending  prometheus.Gauge
	relayed        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}

	m := &Metrics{
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Import attempts by final status and reason.",
		}, []string{"status", "reason"}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Duration of single import attempts.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"status"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Browser page fetches by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_fetch_duration_seconds",
			Help:      "Duration of browser page fetches including the retry.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Outbox events waiting for delivery.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox events relayed to redis by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.imports, m.importDuration, m.fetches, m.fetchDuration, m.outboxPending, m.relayed)
	return m
}

func (m *Metrics) ObserveImport(status, reason string, d time.Duration) {
	if m == nil || m.imports == nil {
		return
	}
	m.imports.WithLabelValues(status, normalizeLabel(reason)).Inc()
	m.importDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(err error, d time.Duration) {
	if m == nil || m.fetches == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil || m.outboxPending == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

func (m *Metrics) IncRelayed(result string) {
	if m == nil || m.relayed == nil {
		return
	}
	m.relayed.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
