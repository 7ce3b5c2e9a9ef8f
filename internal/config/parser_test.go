package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFullConfig(t *testing.T) {
	content := `
command_port: 17000
wait_for_stop: false
control:
  client_timeout: 5s
  probe_timeout: 150ms
  idle_timeout: 0s
workload:
  kind: GRPC
  listen: "127.0.0.1:9090"
  shutdown_timeout: 2s
log:
  level: debug
  path: /tmp/keeper.jsonl
`
	cfg, warnings, err := Parse(content, Default())
	require.NoError(t, err)

	require.Equal(t, 17000, cfg.CommandPort)
	require.False(t, cfg.WaitForStop)
	require.Equal(t, 5*time.Second, cfg.Control.ClientTimeout)
	require.Equal(t, 150*time.Millisecond, cfg.Control.ProbeTimeout)
	require.Zero(t, cfg.Control.IdleTimeout)
	require.Equal(t, WorkloadGRPC, cfg.Workload.Kind)
	require.Equal(t, "127.0.0.1:9090", cfg.Workload.Listen)
	require.Equal(t, 2*time.Second, cfg.Workload.ShutdownTimeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "/tmp/keeper.jsonl", cfg.Log.Path)

	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "idle_timeout")
}

func TestParseEmptyContentKeepsBase(t *testing.T) {
	cfg, warnings, err := Parse("   \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParsePartialOverlayKeepsUnsetFields(t *testing.T) {
	cfg, _, err := Parse("control:\n  client_timeout: 1s\n", Default())
	require.NoError(t, err)

	want := Default()
	want.Control.ClientTimeout = time.Second
	require.Equal(t, want, cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, _, err := Parse("command_prot: 17000\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "command_prot")
}

func TestParseRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("command_port: 17000\n---\ncommand_port: 17001\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "single document")
}

func TestParseRejectsInvalidValues(t *testing.T) {
	_, _, err := Parse("workload:\n  kind: ftp\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "workload.kind")
}

func TestParseCommentOnlyKeepsBase(t *testing.T) {
	cfg, _, err := Parse("# keeper config\n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
