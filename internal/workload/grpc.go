package workload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPC serves the standard gRPC health service.
type GRPC struct {
	opts Options

	mu       sync.Mutex
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	done     chan struct{}
	serveErr error
}

// NewGRPC returns a gRPC workload that binds opts.Listen on Start.
func NewGRPC(opts Options) *GRPC {
	return &GRPC{opts: opts}
}

// Start binds the listen address and serves in the background.
func (g *GRPC) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done != nil {
		return errors.New("grpc workload already started")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", g.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", g.opts.Listen, err)
	}

	logger := g.opts.logger()
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			start := time.Now()
			resp, err := handler(ctx, req)
			logger.Debug("grpc call", "method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
			return resp, err
		},
	))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	done := make(chan struct{})
	g.server = server
	g.health = healthServer
	g.listener = listener
	g.done = done

	go func() {
		defer close(done)
		err := server.Serve(listener)
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		if err != nil {
			logger.Error("grpc workload serve failed", "error", err.Error())
		}
		g.mu.Lock()
		g.serveErr = err
		g.mu.Unlock()
	}()

	logger.Info("grpc workload serving", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *GRPC) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Stop reports NOT_SERVING, then drains with GracefulStop. Calls still open
// after the shutdown timeout are cut off with a hard Stop.
func (g *GRPC) Stop(ctx context.Context) error {
	g.mu.Lock()
	server, healthServer, done := g.server, g.health, g.done
	g.mu.Unlock()
	if server == nil {
		return ErrNotStarted
	}

	healthServer.Shutdown()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		server.GracefulStop()
	}()

	timer := time.NewTimer(g.opts.shutdownTimeout())
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		g.opts.logger().Warn("grpc workload drain timed out; forcing stop")
		server.Stop()
		<-drained
	case <-ctx.Done():
		server.Stop()
		<-drained
	}
	<-done
	return nil
}

// Join blocks until the serve loop has returned.
func (g *GRPC) Join(ctx context.Context) error {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	return join(ctx, done, func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.serveErr
	})
}
