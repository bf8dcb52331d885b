package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics exposes counters/histograms for the booking client.
type ClientMetrics struct {
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	commandsTotal *prometheus.CounterVec
	slotsOffered  *prometheus.HistogramVec
}

func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citas",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total requests sent to the booking API",
		}, []string{"operation", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citas",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of booking API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citas",
			Subsystem: "booking",
			Name:      "commands_total",
			Help:      "Total commands processed by the update loop",
		}, []string{"command", "outcome"}),
		slotsOffered: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citas",
			Subsystem: "booking",
			Name:      "slots_offered",
			Help:      "Number of slots resolved for a selected date",
			Buckets:   []float64{0, 1, 2, 4, 8, 12, 24},
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.apiRequests, m.apiLatency, m.commandsTotal, m.slotsOffered)
	return m
}

// ObserveRequest records one API call. status 0 means a transport failure.
func (m *ClientMetrics) ObserveRequest(operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.apiRequests.WithLabelValues(operation, label).Inc()
	m.apiLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *ClientMetrics) ObserveCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
}

func (m *ClientMetrics) ObserveSlots(available, occupied int) {
	if m == nil {
		return
	}
	m.slotsOffered.WithLabelValues("available").Observe(float64(available))
	m.slotsOffered.WithLabelValues("occupied").Observe(float64(occupied))
}
