package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/keeper/internal/ipc"
)

// Outcome is the controller-side result of one status or stop request.
type Outcome int

const (
	OutcomeRunning Outcome = iota + 1
	OutcomeNotRunning
	OutcomeStopping
	OutcomeUnreachable
	OutcomeUnexpected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeNotRunning:
		return "not running"
	case OutcomeStopping:
		return "stopping in progress"
	case OutcomeUnreachable:
		return "could not reach a running instance"
	case OutcomeUnexpected:
		return "unexpected response"
	case OutcomeFailed:
		return "request failed"
	default:
		return "unknown"
	}
}

// Client talks to whichever instance currently holds the command port.
// It never changes local state.
type Client struct {
	Addr    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Status reports OutcomeRunning only when the instance answered ok; every
// other result, an absent instance included, is OutcomeNotRunning.
func (c Client) Status(ctx context.Context) Outcome {
	resp, reachable, err := ipc.Send(ctx, c.addr(), ipc.CommandStatus, c.timeout())
	logger := c.logger()

	switch {
	case err != nil:
		logger.Warn("status request failed", "addr", c.addr(), "error", err.Error())
		return OutcomeNotRunning
	case !reachable:
		logger.Debug("no instance listening", "addr", c.addr())
		return OutcomeNotRunning
	case resp != ipc.ResponseOK:
		logger.Warn("unexpected status response", "addr", c.addr(), "response", string(resp))
		return OutcomeNotRunning
	default:
		return OutcomeRunning
	}
}

// Stop asks the running instance to shut down. It does not wait for the
// remote process to exit; callers poll Status for that.
func (c Client) Stop(ctx context.Context) Outcome {
	resp, reachable, err := ipc.Send(ctx, c.addr(), ipc.CommandStop, c.timeout())
	logger := c.logger()

	switch {
	case err != nil:
		logger.Error("stop request failed", "addr", c.addr(), "error", err.Error())
		return OutcomeFailed
	case !reachable:
		logger.Info("no instance listening", "addr", c.addr())
		return OutcomeUnreachable
	case resp != ipc.ResponseStopping:
		logger.Warn("unexpected stop response", "addr", c.addr(), "response", string(resp))
		return OutcomeUnexpected
	default:
		logger.Info("stop accepted", "addr", c.addr())
		return OutcomeStopping
	}
}

func (c Client) addr() string {
	if c.Addr == "" {
		return ipc.Address(ipc.DefaultPort)
	}
	return c.Addr
}

func (c Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 3 * time.Second
	}
	return c.Timeout
}

func (c Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
