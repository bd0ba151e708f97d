package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"campusnet/internal/events"
	"campusnet/internal/models"
)

var (
	// ConnectivityChecks counts delivered probe results
	ConnectivityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusnet",
			Name:      "connectivity_checks_total",
			Help:      "Total number of connectivity probes by result",
		},
		[]string{"result"},
	)

	// Connected is 1 while the last probe succeeded
	Connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "campusnet",
			Name:      "connected",
			Help:      "Whether the last connectivity probe succeeded",
		},
	)

	// ProbeLatency observes the latency of successful probes
	ProbeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "campusnet",
			Name:      "probe_latency_seconds",
			Help:      "Latency of successful connectivity probes",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// ReconnectAttempts counts individual attempts by flow (auth or wifi)
	ReconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusnet",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts",
		},
		[]string{"flow"},
	)

	// ReconnectFlows counts finished portal re-login flows
	ReconnectFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusnet",
			Name:      "reconnect_flows_total",
			Help:      "Total number of finished re-login flows by result",
		},
		[]string{"result"},
	)

	// NetworkSwitches counts successful failovers by phase
	NetworkSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campusnet",
			Name:      "network_switches_total",
			Help:      "Total number of networks joined by failover",
		},
		[]string{"phase"},
	)

	// FailoverExhausted counts failovers where no network could be joined
	FailoverExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "campusnet",
			Name:      "failover_exhausted_total",
			Help:      "Total number of failovers that found no usable network",
		},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// It is idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(ConnectivityChecks)
		prometheus.DefaultRegisterer.Register(Connected)
		prometheus.DefaultRegisterer.Register(ProbeLatency)
		prometheus.DefaultRegisterer.Register(ReconnectAttempts)
		prometheus.DefaultRegisterer.Register(ReconnectFlows)
		prometheus.DefaultRegisterer.Register(NetworkSwitches)
		prometheus.DefaultRegisterer.Register(FailoverExhausted)
	})
}

// Subscriber is the part of the event bus the collectors listen on.
type Subscriber interface {
	SubscribeAll(h events.Handler) func()
}

// Attach keeps the collectors current from events on bus.
func Attach(bus Subscriber) func() {
	return bus.SubscribeAll(Observe)
}

// Observe updates the collectors for one event.
func Observe(ev events.Event) {
	switch p := ev.Payload.(type) {
	case models.ConnectivityStatus:
		if p.Connected {
			ConnectivityChecks.WithLabelValues("connected").Inc()
			Connected.Set(1)
		} else {
			ConnectivityChecks.WithLabelValues("disconnected").Inc()
			Connected.Set(0)
		}
		if p.Latency != nil {
			ProbeLatency.Observe(float64(p.Latency.Value) / 1000)
		}
	case models.ReconnectProgress:
		if p.Status == models.AttemptConnecting {
			ReconnectAttempts.WithLabelValues(p.Flow).Inc()
		}
	case models.ReconnectOutcome:
		switch ev.Type {
		case events.ReconnectSucceeded:
			ReconnectFlows.WithLabelValues("success").Inc()
		case events.ReconnectFailed:
			ReconnectFlows.WithLabelValues("failed").Inc()
		}
	case models.NetworkSwitched:
		NetworkSwitches.WithLabelValues(strconv.Itoa(p.Phase)).Inc()
	case models.AllReconnectsFailed:
		FailoverExhausted.Inc()
	}
}
