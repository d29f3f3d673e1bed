package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConnections   prometheus.Gauge
	ChatMessages        *prometheus.CounterVec
	ExchangeLatency     prometheus.Histogram
	ExchangeErrors      prometheus.Counter
	CaptureEvents       *prometheus.CounterVec
	UtterancesSpoken    prometheus.Counter
	UtterancesCancelled prometheus.Counter
	WSMessages          *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connected widget clients.",
		}),
		ChatMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Conversation messages appended, by sender.",
		}, []string{"sender"}),
		ExchangeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_latency_ms",
			Help:      "Dialog service round-trip latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}),
		ExchangeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_errors_total",
			Help:      "Dialog exchanges that ended in a network error.",
		}),
		CaptureEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_events_total",
			Help:      "Speech capture lifecycle events by type.",
		}, []string{"event"}),
		UtterancesSpoken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_spoken_total",
			Help:      "Bot utterances handed to speech output.",
		}),
		UtterancesCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_cancelled_total",
			Help:      "Utterances cancelled before completion.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveExchangeLatency(d time.Duration) {
	m.ExchangeLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
