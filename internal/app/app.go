// Package app dispatches a parsed command line to the instance owner or the
// controller side of keeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbright/keeper/internal/cli"
	"github.com/rbright/keeper/internal/config"
	"github.com/rbright/keeper/internal/doctor"
	"github.com/rbright/keeper/internal/ipc"
	"github.com/rbright/keeper/internal/logging"
	"github.com/rbright/keeper/internal/supervisor"
	"github.com/rbright/keeper/internal/version"
	"github.com/rbright/keeper/internal/workload"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitNotRunning = 3
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Exit ends the process once a remote stop has been served. Nil means os.Exit.
	Exit func(code int)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(version.Name))
		return ExitUsage
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(version.Name))
		return ExitOK
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return ExitOK
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ExitFailure
	}
	if parsed.Port != 0 {
		cfgLoaded.Config.CommandPort = parsed.Port
		if _, err := config.Validate(cfgLoaded.Config); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return ExitUsage
		}
	}
	cfg := cfgLoaded.Config

	logger := r.Logger
	logPath := ""
	if logger == nil {
		level, _ := config.ParseLevel(cfg.Log.Level)
		logRuntime, err := logging.New(cfg.Log.Path, level)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
			return ExitFailure
		}
		defer func() { _ = logRuntime.Close() }()
		logger = logRuntime.Logger
		logPath = logRuntime.Path
	}

	if !cfgLoaded.Exists {
		logger.Info("no config file; using defaults", "path", cfgLoaded.Path)
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}
	if parsed.Unrecognized != "" {
		fmt.Fprintf(r.Stderr, "warning: unrecognized command %q; starting\n", parsed.Unrecognized)
		logger.Warn("unrecognized command; defaulting to start", "selector", parsed.Unrecognized)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"command_port", cfg.CommandPort,
		"log", logPath,
	)

	switch parsed.Command {
	case cli.CommandStart:
		return r.commandStart(ctx, cfg, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx, cfg, logger)
	case cli.CommandStop:
		return r.commandStop(ctx, cfg, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return ExitOK
		}
		return ExitFailure
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return ExitUsage
	}
}

func (r Runner) commandStart(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	sup := supervisor.New(supervisor.Options{
		Addr: ipc.Address(cfg.CommandPort),
		NewWorkload: func() (supervisor.Workload, error) {
			return newWorkload(cfg, logger)
		},
		Logger:       logger,
		ProbeTimeout: cfg.Control.ProbeTimeout,
		IdleTimeout:  cfg.Control.IdleTimeout,
		WaitForStop:  cfg.WaitForStop,
		Exit:         r.Exit,
	})

	err := sup.Run(ctx)
	if err == nil && !cfg.WaitForStop {
		// The command listener alone never keeps the process alive: park
		// until the background join sees the workload end, whether from a
		// signal, a remote stop, or the workload exiting by itself.
		<-sup.Done()
		err = sup.Join(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		msg := "instance failed"
		if errors.Is(err, ipc.ErrBindConflict) {
			msg = "start refused"
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error(msg, "error", err.Error())
		return ExitFailure
	}

	// Shutdown shares the result of a stop that already ran.
	if err := sup.Shutdown(context.WithoutCancel(ctx)); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func (r Runner) commandStatus(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	outcome := r.client(cfg, logger).Status(ctx)
	fmt.Fprintln(r.Stdout, outcome.String())
	if outcome == supervisor.OutcomeRunning {
		return ExitOK
	}
	return ExitNotRunning
}

func (r Runner) commandStop(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	outcome := r.client(cfg, logger).Stop(ctx)
	fmt.Fprintln(r.Stdout, outcome.String())
	if outcome == supervisor.OutcomeStopping {
		return ExitOK
	}
	return ExitFailure
}

func (r Runner) client(cfg config.Config, logger *slog.Logger) supervisor.Client {
	return supervisor.Client{
		Addr:    ipc.Address(cfg.CommandPort),
		Timeout: cfg.Control.ClientTimeout,
		Logger:  logger,
	}
}

// newWorkload builds the configured workload kind.
func newWorkload(cfg config.Config, logger *slog.Logger) (supervisor.Workload, error) {
	opts := workload.Options{
		Listen:          cfg.Workload.Listen,
		ShutdownTimeout: cfg.Workload.ShutdownTimeout,
	}

	switch cfg.Workload.Kind {
	case config.WorkloadHTTP:
		opts.Logger = logger.With("workload", config.WorkloadHTTP)
		return workload.NewHTTP(opts), nil
	case config.WorkloadGRPC:
		opts.Logger = logger.With("workload", config.WorkloadGRPC)
		return workload.NewGRPC(opts), nil
	default:
		return nil, fmt.Errorf("unknown workload kind %q", cfg.Workload.Kind)
	}
}
