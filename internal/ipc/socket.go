package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrBindConflict reports that another process already holds the command port.
	ErrBindConflict = errors.New("command port already bound")
	// ErrNotLoopback reports a command address outside the loopback interface.
	ErrNotLoopback = errors.New("command address must be loopback")
)

// Address returns the loopback command address for port.
func Address(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// Listen claims the command port. The bind itself is the cross-process lock:
// a second instance fails here with ErrBindConflict.
func Listen(ctx context.Context, addr string, probeTimeout time.Duration) (net.Listener, error) {
	if err := checkLoopback(addr); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err == nil {
		return listener, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	alive, probeErr := Probe(ctx, addr, probeTimeout)
	switch {
	case alive:
		return nil, fmt.Errorf("%w: %s: instance already running", ErrBindConflict, addr)
	case probeErr != nil:
		return nil, fmt.Errorf("%w: %s: holder did not answer status: %v", ErrBindConflict, addr, probeErr)
	default:
		return nil, fmt.Errorf("%w: %s", ErrBindConflict, addr)
	}
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parse command address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w: %s", ErrNotLoopback, addr)
	}
	return nil
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) ||
		strings.Contains(err.Error(), "address already in use")
}
