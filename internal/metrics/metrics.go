// Package metrics defines the supervisor's Prometheus metrics, following
// the "dunebugger_remote_<subsystem>_<metric>_<unit>" naming convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the supervisor exposes, grouped by the
// component that owns them.
type Registry struct {
	Connectivity ConnectivityMetrics
	CloudChannel CloudChannelMetrics
	LocalBus     LocalBusMetrics
	Updater      UpdaterMetrics
	NTP          NTPMetrics
}

// ConnectivityMetrics covers the connectivity supervisor.
type ConnectivityMetrics struct {
	StateTransitionsTotal *prometheus.CounterVec
	Up                    prometheus.Gauge
}

// CloudChannelMetrics covers the cloud channel's session state machine.
type CloudChannelMetrics struct {
	SessionPhase            *prometheus.GaugeVec
	JoinAttemptsTotal        prometheus.Counter
	JoinFailuresTotal        prometheus.Counter
	CircuitBreakerOpenTotal  prometheus.Counter
	MessagesSentTotal        *prometheus.CounterVec
	MessagesReceivedTotal    *prometheus.CounterVec
}

// LocalBusMetrics covers the local bus adapter.
type LocalBusMetrics struct {
	RequestsHandledTotal *prometheus.CounterVec
	HeartbeatsTotal      *prometheus.CounterVec
}

// UpdaterMetrics covers the update orchestrator.
type UpdaterMetrics struct {
	ChecksTotal          *prometheus.CounterVec
	UpdatesAttemptedTotal *prometheus.CounterVec
	UpdatesSucceededTotal *prometheus.CounterVec
	UpdateOrderViolationsTotal prometheus.Counter
}

// NTPMetrics covers the NTP monitor.
type NTPMetrics struct {
	Available prometheus.Gauge
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	const ns = "dunebugger_remote"

	r := &Registry{
		Connectivity: ConnectivityMetrics{
			StateTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "connectivity", Name: "state_transitions_total",
				Help: "Number of connectivity state transitions observed.",
			}, []string{"to"}),
			Up: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: ns, Subsystem: "connectivity", Name: "up",
				Help: "1 if internet connectivity is currently up, 0 otherwise.",
			}),
		},
		CloudChannel: CloudChannelMetrics{
			SessionPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: ns, Subsystem: "cloudchannel", Name: "session_phase",
				Help: "1 for the currently active session phase, 0 for all others.",
			}, []string{"phase"}),
			JoinAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "cloudchannel", Name: "join_attempts_total",
				Help: "Number of attempts to join the cloud channel.",
			}),
			JoinFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "cloudchannel", Name: "join_failures_total",
				Help: "Number of failed attempts to join the cloud channel.",
			}),
			CircuitBreakerOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "cloudchannel", Name: "circuit_breaker_open_total",
				Help: "Number of times the cloud channel's circuit breaker tripped open.",
			}),
			MessagesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "cloudchannel", Name: "messages_sent_total",
				Help: "Messages sent over the cloud channel, by subject leaf.",
			}, []string{"leaf"}),
			MessagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "cloudchannel", Name: "messages_received_total",
				Help: "Messages received over the cloud channel, by subject leaf.",
			}, []string{"leaf"}),
		},
		LocalBus: LocalBusMetrics{
			RequestsHandledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "localbus", Name: "requests_handled_total",
				Help: "Local bus requests handled, by subject leaf.",
			}, []string{"leaf"}),
			HeartbeatsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "localbus", Name: "heartbeats_total",
				Help: "Heartbeats received from sibling components, by component.",
			}, []string{"component"}),
		},
		Updater: UpdaterMetrics{
			ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "updater", Name: "checks_total",
				Help: "Update checks performed, by component.",
			}, []string{"component"}),
			UpdatesAttemptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "updater", Name: "updates_attempted_total",
				Help: "Update requests sent to the host coordinator, by component.",
			}, []string{"component"}),
			UpdatesSucceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "updater", Name: "updates_succeeded_total",
				Help: "Update requests the host coordinator reported as successful, by component.",
			}, []string{"component"}),
			UpdateOrderViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: ns, Subsystem: "updater", Name: "update_order_violations_total",
				Help: "Update requests rejected because remote had a pending update.",
			}),
		},
		NTP: NTPMetrics{
			Available: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: ns, Subsystem: "ntp", Name: "available",
				Help: "1 if at least one configured NTP server is reachable, 0 otherwise.",
			}),
		},
	}

	reg.MustRegister(
		r.Connectivity.StateTransitionsTotal, r.Connectivity.Up,
		r.CloudChannel.SessionPhase, r.CloudChannel.JoinAttemptsTotal, r.CloudChannel.JoinFailuresTotal,
		r.CloudChannel.CircuitBreakerOpenTotal, r.CloudChannel.MessagesSentTotal, r.CloudChannel.MessagesReceivedTotal,
		r.LocalBus.RequestsHandledTotal, r.LocalBus.HeartbeatsTotal,
		r.Updater.ChecksTotal, r.Updater.UpdatesAttemptedTotal, r.Updater.UpdatesSucceededTotal, r.Updater.UpdateOrderViolationsTotal,
		r.NTP.Available,
	)

	return r
}
