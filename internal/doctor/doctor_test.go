package doctor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/keeper/internal/config"
	"github.com/rbright/keeper/internal/ipc"
	"github.com/rbright/keeper/internal/workload"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func portOf(t *testing.T, addr net.Addr) int {
	t.Helper()
	return addr.(*net.TCPAddr).Port
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := portOf(t, listener.Addr())
	require.NoError(t, listener.Close())
	return port
}

func loadedWithPort(port int) config.Loaded {
	cfg := config.Default()
	cfg.CommandPort = port
	return config.Loaded{Path: "/tmp/keeper.yaml", Config: cfg, Exists: true}
}

func startCommandListener(t *testing.T) int {
	t.Helper()
	listener, err := ipc.Listen(context.Background(), "127.0.0.1:0", 100*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = (&ipc.Server{}).Serve(ctx, listener) }()

	return portOf(t, listener.Addr())
}

func TestRunWithoutInstance(t *testing.T) {
	report := Run(context.Background(), loadedWithPort(freePort(t)))

	require.True(t, report.OK(), report.String())
	require.Len(t, report.Checks, 3)
	require.Contains(t, report.Checks[1].Message, "free")
	require.Contains(t, report.Checks[2].Message, "skipped")
}

func TestRunConfigMissingStillPasses(t *testing.T) {
	loaded := loadedWithPort(freePort(t))
	loaded.Exists = false

	report := Run(context.Background(), loaded)
	require.True(t, report.Checks[0].Pass)
	require.Contains(t, report.Checks[0].Message, "using defaults")
}

func TestRunWithRunningHTTPInstance(t *testing.T) {
	port := startCommandListener(t)

	httpWorkload := workload.NewHTTP(workload.Options{Listen: "127.0.0.1:0"})
	require.NoError(t, httpWorkload.Start(context.Background()))
	t.Cleanup(func() { _ = httpWorkload.Stop(context.Background()) })

	loaded := loadedWithPort(port)
	loaded.Config.Workload.Listen = httpWorkload.Addr().String()

	report := Run(context.Background(), loaded)
	require.True(t, report.OK(), report.String())
	require.Contains(t, report.Checks[1].Message, "instance running")
	require.Equal(t, "workload.http", report.Checks[2].Name)
}

func TestRunWithRunningGRPCInstance(t *testing.T) {
	port := startCommandListener(t)

	grpcWorkload := workload.NewGRPC(workload.Options{Listen: "127.0.0.1:0"})
	require.NoError(t, grpcWorkload.Start(context.Background()))
	t.Cleanup(func() { _ = grpcWorkload.Stop(context.Background()) })

	loaded := loadedWithPort(port)
	loaded.Config.Workload.Kind = config.WorkloadGRPC
	loaded.Config.Workload.Listen = grpcWorkload.Addr().String()

	report := Run(context.Background(), loaded)
	require.True(t, report.OK(), report.String())
	require.Equal(t, "workload.grpc", report.Checks[2].Name)
}

func TestRunFlagsSilentPortHolder(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	held := make(chan net.Conn, 8)
	t.Cleanup(func() {
		for {
			select {
			case conn := <-held:
				_ = conn.Close()
			default:
				return
			}
		}
	})
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		held <- conn
	}()

	loaded := loadedWithPort(portOf(t, listener.Addr()))
	loaded.Config.Control.ProbeTimeout = 50 * time.Millisecond

	report := Run(context.Background(), loaded)
	require.False(t, report.OK())
	require.False(t, report.Checks[1].Pass)
	require.Contains(t, report.Checks[1].Message, "non-responding")
}

func TestCheckHTTPReadyFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	check := checkHTTPReady(context.Background(), strings.TrimPrefix(server.URL, "http://"))
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckHTTPReadyUnreachable(t *testing.T) {
	check := checkHTTPReady(context.Background(), net.JoinHostPort("127.0.0.1", "1"))
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "request failed")
}

func TestCheckGRPCReadyUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	check := checkGRPCReady(ctx, net.JoinHostPort("127.0.0.1", "1"))
	require.False(t, check.Pass)
}
