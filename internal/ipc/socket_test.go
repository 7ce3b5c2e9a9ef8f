package ipc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenBindConflictWhenInstanceRunning(t *testing.T) {
	t.Parallel()

	first, err := Listen(context.Background(), "127.0.0.1:0", 100*time.Millisecond)
	require.NoError(t, err)
	addr := first.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- (&Server{}).Serve(ctx, first)
	}()

	_, err = Listen(context.Background(), addr, 500*time.Millisecond)
	require.ErrorIs(t, err, ErrBindConflict)
	require.Contains(t, err.Error(), "instance already running")

	alive, err := Probe(context.Background(), addr, time.Second)
	require.NoError(t, err)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestListenBindConflictWhenHolderSilent(t *testing.T) {
	t.Parallel()

	holder, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer holder.Close()

	_, err = Listen(context.Background(), holder.Addr().String(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrBindConflict)
	require.Contains(t, err.Error(), "did not answer status")
}

func TestListenExactlyOneOfConcurrentStartsBinds(t *testing.T) {
	t.Parallel()

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	const attempts = 4
	results := make(chan error, attempts)
	listeners := make(chan net.Listener, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		go func() {
			<-start
			listener, listenErr := Listen(context.Background(), addr, 50*time.Millisecond)
			if listenErr == nil {
				listeners <- listener
			}
			results <- listenErr
		}()
	}
	close(start)

	bound := 0
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			bound++
		} else {
			require.True(t, errors.Is(err, ErrBindConflict), "unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, bound)
	require.NoError(t, (<-listeners).Close())
}

func TestListenRejectsNonLoopback(t *testing.T) {
	t.Parallel()

	for _, addr := range []string{"0.0.0.0:0", "192.0.2.10:16586", ":16586"} {
		_, err := Listen(context.Background(), addr, 50*time.Millisecond)
		require.ErrorIs(t, err, ErrNotLoopback, addr)
	}

	_, err := Listen(context.Background(), "no-port", 50*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse command address")
}

func TestAddress(t *testing.T) {
	require.Equal(t, "127.0.0.1:16586", Address(DefaultPort))
}
