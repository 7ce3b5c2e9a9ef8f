package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP serves a small HTTP API: a greeting, a health probe, and Prometheus metrics.
type HTTP struct {
	opts Options

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
	serveErr error
	started  time.Time
}

// NewHTTP returns an HTTP workload that binds opts.Listen on Start.
func NewHTTP(opts Options) *HTTP {
	return &HTTP{opts: opts}
}

// Router builds the route table served by the workload.
func (h *HTTP) Router() http.Handler {
	router := httprouter.New()
	router.GET("/", h.handleIndex)
	router.GET("/healthz", h.handleHealth)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	return router
}

// Handler is the route table wrapped in the access log.
func (h *HTTP) Handler() http.Handler {
	return accessLog(h.opts.logger(), h.Router())
}

func (h *HTTP) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "keeper workload\n")
}

func (h *HTTP) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "ready uptime=%s\n", time.Since(started).Truncate(time.Second))
}

// Start binds the listen address and serves in the background.
func (h *HTTP) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return errors.New("http workload already started")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", h.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", h.opts.Listen, err)
	}

	server := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	h.server = server
	h.listener = listener
	h.done = done
	h.started = time.Now()

	logger := h.opts.logger()
	go func() {
		defer close(done)
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error("http workload serve failed", "error", err.Error())
		}
		h.mu.Lock()
		h.serveErr = err
		h.mu.Unlock()
	}()

	logger.Info("http workload serving", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (h *HTTP) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop drains in-flight requests for at most the shutdown timeout, then
// closes remaining connections, and waits for the serve loop to return.
func (h *HTTP) Stop(ctx context.Context) error {
	h.mu.Lock()
	server, done := h.server, h.done
	h.mu.Unlock()
	if server == nil {
		return ErrNotStarted
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, h.opts.shutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		h.opts.logger().Warn("http workload drain incomplete; closing", "error", err.Error())
		if closeErr := server.Close(); closeErr != nil {
			return fmt.Errorf("close http server: %w", closeErr)
		}
	}
	<-done
	return nil
}

// Join blocks until the serve loop has returned.
func (h *HTTP) Join(ctx context.Context) error {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	return join(ctx, done, func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.serveErr
	})
}

// accessLog records one line per request, mirroring the grpc call log.
func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"remote", r.RemoteAddr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
