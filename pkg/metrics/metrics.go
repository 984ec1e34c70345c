package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the sfconfig metrics only. The textfile export must not
// carry the go_ and process_ collectors of the default registry, node
// exporter already exposes its own.
var Registry = prometheus.NewRegistry()

var (
	// Derivation metrics
	RolesDerived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfconfig_roles_derived_total",
			Help: "Total number of roles whose variables were derived",
		},
		[]string{"role"},
	)

	VariablesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfconfig_variables_total",
			Help: "Number of variables in the last derived variable set",
		},
	)

	// Secrets metrics
	SecretsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sfconfig_secrets_generated_total",
			Help: "Total number of secrets generated",
		},
	)

	SecretsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfconfig_secrets_total",
			Help: "Number of secrets in the store",
		},
	)

	// Key material metrics
	KeysProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfconfig_keys_provisioned_total",
			Help: "Total number of key material requests by kind",
		},
		[]string{"kind"},
	)

	// Run metrics
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sfconfig_phase_duration_seconds",
			Help:    "Duration of the sfconfig phases in seconds",
			Buckets: []float64{.01, .1, 1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"phase"},
	)

	LastRunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfconfig_last_run_success",
			Help: "Whether the last sfconfig run succeeded (1 = success, 0 = failure)",
		},
	)

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sfconfig_last_run_timestamp_seconds",
			Help: "Unix time of the last sfconfig run",
		},
	)
)

func init() {
	Registry.MustRegister(RolesDerived)
	Registry.MustRegister(VariablesTotal)
	Registry.MustRegister(SecretsGenerated)
	Registry.MustRegister(SecretsTotal)
	Registry.MustRegister(KeysProvisioned)
	Registry.MustRegister(PhaseDuration)
	Registry.MustRegister(LastRunSuccess)
	Registry.MustRegister(LastRunTimestamp)
}

// WriteTextfile writes every metric to path in the text exposition format
// read by the node exporter textfile collector. The file is replaced
// atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
