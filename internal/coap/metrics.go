package coap

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the engine updates, in the
// promauto-free style of liveness/metrics.go's package-level vars but
// instantiated per Context so multiple endpoints in one process (or
// tests) don't collide on the default registerer.
type Metrics struct {
	SendQueueLen     prometheus.Gauge
	RecvQueueLen     prometheus.Gauge
	Retransmits      prometheus.Counter
	Exhausted        prometheus.Counter
	BadOption        prometheus.Counter
	NotFound         prometheus.Counter
	MethodNotAllowed prometheus.Counter
	Dropped          *prometheus.CounterVec
	Dispatched       *prometheus.CounterVec
}

// NewMetrics constructs a Metrics bundle and registers it with reg, or
// with prometheus.NewRegistry() internally if reg is nil (tests that
// don't care about scraping can pass nil and still exercise every
// counter increment).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := prometheus.WrapRegistererWithPrefix("coap_", reg)

	m := &Metrics{
		SendQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "send_queue_length",
			Help: "Current number of nodes pending in the send (retransmission) queue.",
		}),
		RecvQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recv_queue_length",
			Help: "Current number of nodes pending in the receive queue.",
		}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retransmits_total",
			Help: "Count of confirmable message retransmissions.",
		}),
		Exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retransmit_exhausted_total",
			Help: "Count of confirmable sends that gave up after MAX_RETRANSMIT attempts.",
		}),
		BadOption: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bad_option_responses_total",
			Help: "Count of 4.02 Bad Option responses synthesized for unknown critical options.",
		}),
		NotFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "not_found_responses_total",
			Help: "Count of 4.04 Not Found responses synthesized.",
		}),
		MethodNotAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "method_not_allowed_responses_total",
			Help: "Count of 4.05 Method Not Allowed responses synthesized.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropped_total",
			Help: "Count of messages dropped by reason.",
		}, []string{"reason"}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatched_total",
			Help: "Count of messages dispatched by code class (request or response).",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{
		m.SendQueueLen, m.RecvQueueLen, m.Retransmits, m.Exhausted,
		m.BadOption, m.NotFound, m.MethodNotAllowed, m.Dropped, m.Dispatched,
	} {
		_ = factory.Register(c)
	}
	return m
}
