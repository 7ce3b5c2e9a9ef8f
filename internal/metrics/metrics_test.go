package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordCommandKnownAndUnknown(t *testing.T) {
	status := commandsReceived.With(prometheus.Labels{"command": "status"})
	unknown := commandsReceived.With(prometheus.Labels{"command": unknownCommand})

	initialStatus := testutil.ToFloat64(status)
	initialUnknown := testutil.ToFloat64(unknown)

	RecordCommand("status", true)
	RecordCommand("restart", false)
	RecordCommand("STATUS", false)

	require.Equal(t, initialStatus+1, testutil.ToFloat64(status))
	require.Equal(t, initialUnknown+2, testutil.ToFloat64(unknown))
}

func TestRecordConnectionAndError(t *testing.T) {
	initialConns := testutil.ToFloat64(connectionsAccepted)
	readErrors := controlErrors.With(prometheus.Labels{"stage": "read"})
	initialErrors := testutil.ToFloat64(readErrors)

	RecordConnection()
	RecordConnection()
	RecordError("read")

	require.Equal(t, initialConns+2, testutil.ToFloat64(connectionsAccepted))
	require.Equal(t, initialErrors+1, testutil.ToFloat64(readErrors))
}

func TestSetStateIsExclusive(t *testing.T) {
	all := []string{"not_running", "serving", "stopping"}

	SetState("serving", all)
	require.Equal(t, 0.0, testutil.ToFloat64(instanceState.WithLabelValues("not_running")))
	require.Equal(t, 1.0, testutil.ToFloat64(instanceState.WithLabelValues("serving")))
	require.Equal(t, 0.0, testutil.ToFloat64(instanceState.WithLabelValues("stopping")))

	SetState("stopping", all)
	require.Equal(t, 0.0, testutil.ToFloat64(instanceState.WithLabelValues("serving")))
	require.Equal(t, 1.0, testutil.ToFloat64(instanceState.WithLabelValues("stopping")))
}
