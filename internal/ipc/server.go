package ipc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rbright/keeper/internal/metrics"
)

// Handler performs the instance-side effect of a stop command.
type Handler interface {
	// Shutdown stops the workload and blocks until it is fully stopped or fails.
	Shutdown(context.Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context) error

func (f HandlerFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

const (
	maxAcceptBackoff = time.Second
	// maxLineLength bounds one command line, terminator included. Longer
	// lines drop the connection.
	maxLineLength = 64
)

// Server answers control commands one connection at a time.
type Server struct {
	Handler Handler
	Logger  *slog.Logger

	// IdleTimeout bounds the wait for each command line. Zero waits forever.
	IdleTimeout time.Duration

	// Exit terminates the process after a stop command has been answered and
	// the handler returned. Nil means os.Exit.
	Exit func(code int)
}

// Serve accepts command connections until ctx is cancelled, the listener is
// closed, or a stop command completes. Connections are served strictly in
// sequence, so two commands never run concurrently.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = listener.Close()
		case <-done:
		}
	}()

	logger := s.logger()
	var backoff time.Duration

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			metrics.RecordError("accept")
			backoff = nextBackoff(backoff)
			logger.Error("accept command connection failed", "error", err.Error(), "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		metrics.RecordConnection()

		if !s.serveConn(conn) {
			continue
		}

		// No further commands are accepted once stopping has been answered.
		_ = listener.Close()
		s.shutdown(ctx)
		return nil
	}
}

// serveConn reads command lines until the peer closes or a stop command is
// answered. It reports whether the instance must terminate. The connection is
// closed before returning, which flushes any reply to the peer.
func (s *Server) serveConn(conn net.Conn) bool {
	defer conn.Close()

	logger := s.logger().With("remote", conn.RemoteAddr().String())
	reader := bufio.NewReaderSize(conn, maxLineLength)

	for {
		if s.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.IdleTimeout)); err != nil {
				metrics.RecordError("read")
				logger.Warn("set command read deadline failed", "error", err.Error())
				return false
			}
		}

		raw, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			metrics.RecordError("read")
			logger.Warn("command line too long; dropping connection", "limit", maxLineLength)
			return false
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				metrics.RecordError("read")
				logger.Warn("read command failed", "error", err.Error())
			}
			// A line without its terminator is never dispatched.
			return false
		}

		cmd := ParseCommand(string(raw))
		resp, terminate := dispatch(cmd)
		metrics.RecordCommand(string(cmd), resp != ResponseNone)
		if resp == ResponseNone {
			logger.Debug("ignoring unknown command", "line", string(cmd))
			continue
		}

		logger.Info("command received", "command", string(cmd))
		if _, err := io.WriteString(conn, resp.Line()); err != nil {
			metrics.RecordError("write")
			logger.Warn("write response failed", "command", string(cmd), "error", err.Error())
			if !terminate {
				return false
			}
		}
		if terminate {
			return true
		}
	}
}

// dispatch maps one command to its reply and reports whether the listener
// must terminate after replying.
func dispatch(cmd Command) (Response, bool) {
	switch cmd {
	case CommandStatus:
		return ResponseOK, false
	case CommandStop:
		return ResponseStopping, true
	default:
		return ResponseNone, false
	}
}

// shutdown stops the workload and then requests process exit, even when the
// workload stop failed, so a half-stopped instance never lingers unreachable.
func (s *Server) shutdown(ctx context.Context) {
	logger := s.logger()
	code := 0

	if s.Handler != nil {
		if err := s.Handler.Shutdown(context.WithoutCancel(ctx)); err != nil {
			metrics.RecordError("shutdown")
			logger.Error("workload stop failed; exiting anyway", "error", err.Error())
			code = 1
		}
	}

	logger.Info("command listener terminating process", "exit_code", code)
	exit := s.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(code)
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	current *= 2
	if current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}
