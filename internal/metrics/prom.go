package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a correlated bridge call.
const (
	OutcomeMatched   = "matched"
	OutcomeExpired   = "expired"
	OutcomeCancelled = "cancelled"
	OutcomeSendError = "send_error"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figbridge_build_info",
			Help: "Build information",
		},
		[]string{"component", "date", "sha", "version"},
	)

	bridgeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figbridge_bridge_calls_total",
			Help: "Correlated bridge calls by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	bridgePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "figbridge_bridge_pending",
			Help: "Correlated calls waiting for a response",
		},
	)

	bridgeCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "figbridge_bridge_call_duration_seconds",
			Help:    "Time from request to settlement of correlated calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	envelopesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figbridge_envelopes_dropped_total",
			Help: "Inbound envelopes dropped without effect",
		},
		[]string{"side", "reason"},
	)

	hostCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figbridge_host_commands_total",
			Help: "Commands executed by the host",
		},
		[]string{"type"},
	)

	hostExportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "figbridge_host_export_failures_total",
			Help: "Exports that produced no image",
		},
	)
)

// Register registers all collectors with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, bridgeCalls, bridgePending, bridgeCallDuration, envelopesDropped, hostCommands, hostExportFailures)
}

// SetBuildInfo sets the build info metric for a component.
func SetBuildInfo(component, version, sha, date string) {
	buildInfo.WithLabelValues(component, date, sha, version).Set(1)
}

// BridgeCallStart marks a correlated call as pending.
func BridgeCallStart() { bridgePending.Inc() }

// BridgeCallEnd records the settlement of a correlated call.
func BridgeCallEnd(command, outcome string, d time.Duration) {
	bridgePending.Dec()
	bridgeCalls.WithLabelValues(command, outcome).Inc()
	bridgeCallDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordDropped counts an inbound envelope dropped by side ("host" or "ui").
func RecordDropped(side, reason string) {
	envelopesDropped.WithLabelValues(side, reason).Inc()
}

// RecordHostCommand counts a command handled by the host.
func RecordHostCommand(typ string) {
	hostCommands.WithLabelValues(typ).Inc()
}

// RecordExportFailure counts an export that degraded to an absent result.
func RecordExportFailure() { hostExportFailures.Inc() }
