// Package metrics holds the Prometheus collectors for the control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keeper_control_connections_total",
		Help: "Total command connections accepted by the listener",
	})

	commandsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_control_commands_total",
			Help: "Total command lines received, by command",
		},
		[]string{"command"},
	)

	controlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_control_errors_total",
			Help: "Total command channel failures, by stage",
		},
		[]string{"stage"},
	)

	instanceState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_instance_state",
			Help: "1 for the current instance lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// Label used for command lines that are neither status nor stop.
const unknownCommand = "unknown"

// RecordConnection counts one accepted command connection.
func RecordConnection() {
	connectionsAccepted.Inc()
}

// RecordCommand counts one received command line. Unrecognized lines share a
// single label so arbitrary peer input cannot grow the label set.
func RecordCommand(command string, known bool) {
	if !known {
		command = unknownCommand
	}
	commandsReceived.WithLabelValues(command).Inc()
}

// RecordError counts one failure at the given stage (accept, read, write, shutdown).
func RecordError(stage string) {
	controlErrors.WithLabelValues(stage).Inc()
}

// SetState marks current as the only active lifecycle state among all.
func SetState(current string, all []string) {
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}
		instanceState.WithLabelValues(state).Set(value)
	}
}
