package workload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestGRPCHealthServingUntilStopped(t *testing.T) {
	g := NewGRPC(Options{Listen: "127.0.0.1:0", ShutdownTimeout: time.Second})
	require.Nil(t, g.Addr())
	require.NoError(t, g.Start(context.Background()))

	conn, err := grpc.NewClient(g.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	joined := make(chan error, 1)
	go func() { joined <- g.Join(context.Background()) }()

	require.NoError(t, g.Stop(context.Background()))
	select {
	case err := <-joined:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("join did not return after stop")
	}

	_, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.Error(t, err)
}

func TestGRPCNotStarted(t *testing.T) {
	g := NewGRPC(Options{})
	require.ErrorIs(t, g.Stop(context.Background()), ErrNotStarted)
	require.ErrorIs(t, g.Join(context.Background()), ErrNotStarted)
}

func TestGRPCStartFailsWhenAddressTaken(t *testing.T) {
	first := NewGRPC(Options{Listen: "127.0.0.1:0"})
	require.NoError(t, first.Start(context.Background()))
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	second := NewGRPC(Options{Listen: first.Addr().String()})
	err := second.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen grpc")
}
