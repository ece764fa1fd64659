package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "msgrelay"

// Metrics groups the Prometheus instruments of the relay. All methods are safe to call
// on a nil *Metrics, which records nothing.
type Metrics struct {
	MessagesQueued   *prometheus.CounterVec
	MessagesSent     prometheus.Counter
	SendFailures     *prometheus.CounterVec
	DeadLetters      *prometheus.CounterVec
	PersistFailures  prometheus.Counter
	DrainPasses      prometheus.Counter
	QueueDepth       prometheus.Gauge
	StaleMessages    prometheus.Gauge
	Online           prometheus.Gauge
	SendLatency      prometheus.Histogram
	HTTPRequests     *prometheus.CounterVec
	HTTPRequestTimes *prometheus.HistogramVec
}

// New registers all instruments with reg. Passing a fresh prometheus.NewRegistry()
// keeps tests isolated from the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_queued_total",
			Help:      "Messages accepted into the delivery queue.",
		}, []string{"type"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages delivered to the chat backend.",
		}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Failed delivery attempts by error code.",
		}, []string{"code"}),
		DeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Messages dropped from the queue without delivery.",
		}, []string{"reason"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed writes of the queue snapshot.",
		}),
		DrainPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_passes_total",
			Help:      "Delivery passes over the queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages currently waiting for delivery.",
		}),
		StaleMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_messages",
			Help:      "Queued messages older than the stale threshold.",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the chat backend is reachable.",
		}),
		SendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of individual delivery attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.MessagesQueued,
		m.MessagesSent,
		m.SendFailures,
		m.DeadLetters,
		m.PersistFailures,
		m.DrainPasses,
		m.QueueDepth,
		m.StaleMessages,
		m.Online,
		m.SendLatency,
		m.HTTPRequests,
		m.HTTPRequestTimes,
	)

	return m
}

func (m *Metrics) RecordQueued(messageType string) {
	if m == nil {
		return
	}
	m.MessagesQueued.WithLabelValues(messageType).Inc()
}

func (m *Metrics) RecordSend(d time.Duration, err error, code string) {
	if m == nil {
		return
	}
	m.SendLatency.Observe(d.Seconds())
	if err == nil {
		m.MessagesSent.Inc()
		return
	}
	m.SendFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordDeadLetter(reason string) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) RecordDrainPass() {
	if m == nil {
		return
	}
	m.DrainPasses.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SetStaleMessages(n int) {
	if m == nil {
		return
	}
	m.StaleMessages.Set(float64(n))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
	} else {
		m.Online.Set(0)
	}
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestTimes.WithLabelValues(method, route).Observe(d.Seconds())
}
