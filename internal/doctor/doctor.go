// Package doctor runs runtime readiness diagnostics for config, the command port, and the workload.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/keeper/internal/config"
	"github.com/rbright/keeper/internal/ipc"
)

const workloadProbeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config, command port, and workload checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	portCheck, running := checkCommandPort(ctx, cfg.Config)
	checks = append(checks, portCheck)

	if running {
		checks = append(checks, checkWorkload(ctx, cfg.Config.Workload))
	} else {
		checks = append(checks, Check{Name: "workload", Pass: true, Message: "skipped; no running instance"})
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkCommandPort reports whether the command port is free, held by a live
// instance, or held by something that does not speak the command protocol.
func checkCommandPort(ctx context.Context, cfg config.Config) (Check, bool) {
	const name = "command_port"
	addr := ipc.Address(cfg.CommandPort)

	alive, err := ipc.Probe(ctx, addr, cfg.Control.ProbeTimeout)
	if alive {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("instance running at %s", addr)}, true
	}
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s held by a non-responding process: %v", addr, err)}, false
	}

	var lc net.ListenConfig
	listener, listenErr := lc.Listen(ctx, "tcp", addr)
	if listenErr != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s not bindable: %v", addr, listenErr)}, false
	}
	_ = listener.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s free; no instance running", addr)}, false
}

func checkWorkload(ctx context.Context, cfg config.WorkloadConfig) Check {
	switch cfg.Kind {
	case config.WorkloadHTTP:
		return checkHTTPReady(ctx, cfg.Listen)
	case config.WorkloadGRPC:
		return checkGRPCReady(ctx, cfg.Listen)
	default:
		return Check{Name: "workload", Pass: false, Message: fmt.Sprintf("unknown workload kind %q", cfg.Kind)}
	}
}

// checkHTTPReady probes the HTTP workload health endpoint.
func checkHTTPReady(ctx context.Context, listen string) Check {
	const name = "workload.http"
	url := "http://" + listen + "/healthz"

	ctx, cancel := context.WithTimeout(ctx, workloadProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}

// checkGRPCReady waits for a gRPC connection and asks the health service.
func checkGRPCReady(ctx context.Context, listen string) Check {
	const name = "workload.grpc"

	ctx, cancel := context.WithTimeout(ctx, workloadProbeTimeout)
	defer cancel()

	conn, err := grpc.NewClient(listen, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("dial %s: %v", listen, err)}
	}
	defer conn.Close()

	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("connect %s: %v", listen, err)}
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("health check failed: %v", err)}
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("health status %s at %s", resp.GetStatus(), listen)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("serving at %s", listen)}
}
