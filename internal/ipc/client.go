package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Send performs one command round trip against whatever instance holds addr.
//
// When nothing listens on addr, Send returns reachable=false and a nil error:
// an absent instance is an expected outcome. A peer that closes without
// answering yields ResponseNone.
func Send(ctx context.Context, addr string, cmd Command, timeout time.Duration) (resp Response, reachable bool, err error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isConnectionRefused(err) {
			return ResponseNone, false, nil
		}
		return ResponseNone, false, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	// Cancelling ctx interrupts a pending write or read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return ResponseNone, true, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := io.WriteString(conn, cmd.Line()); err != nil {
		return ResponseNone, true, fmt.Errorf("write command: %w", cancelCause(ctx, err))
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ParseResponse(line), true, nil
		}
		return ResponseNone, true, fmt.Errorf("read response: %w", cancelCause(ctx, err))
	}

	return ParseResponse(line), true, nil
}

// Probe checks whether a responsive instance is listening on addr.
func Probe(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
	resp, reachable, err := Send(ctx, addr, CommandStatus, timeout)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", addr, err)
	}
	return reachable && resp == ResponseOK, nil
}

// cancelCause prefers the context error when ctx ended the I/O.
func cancelCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
