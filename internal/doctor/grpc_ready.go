package doctor

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

var errConnShutdown = errors.New("connection shut down")

// waitForReady blocks until conn is Ready, shuts down, or ctx ends.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errConnShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("still %s: %w", state, ctx.Err())
		}
	}
}
