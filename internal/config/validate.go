package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.CommandPort < 1 || cfg.CommandPort > 65535 {
		return nil, fmt.Errorf("command_port must be between 1 and 65535")
	}
	if cfg.CommandPort < 1024 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("command_port %d is privileged; binding may require elevated rights", cfg.CommandPort)})
	}

	if cfg.Control.ClientTimeout <= 0 {
		return nil, fmt.Errorf("control.client_timeout must be > 0")
	}
	if cfg.Control.ProbeTimeout <= 0 {
		return nil, fmt.Errorf("control.probe_timeout must be > 0")
	}
	if cfg.Control.IdleTimeout < 0 {
		return nil, fmt.Errorf("control.idle_timeout must be >= 0")
	}
	if cfg.Control.IdleTimeout == 0 {
		warnings = append(warnings, Warning{Message: "control.idle_timeout is 0; a silent peer can hold the command channel indefinitely"})
	}

	switch cfg.Workload.Kind {
	case WorkloadHTTP, WorkloadGRPC:
	default:
		return nil, fmt.Errorf("workload.kind must be one of: http, grpc")
	}
	_, port, err := net.SplitHostPort(cfg.Workload.Listen)
	if err != nil {
		return nil, fmt.Errorf("workload.listen must be host:port: %v", err)
	}
	if port == strconv.Itoa(cfg.CommandPort) {
		return nil, fmt.Errorf("workload.listen must not use command_port %d", cfg.CommandPort)
	}
	if cfg.Workload.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("workload.shutdown_timeout must be > 0")
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	return warnings, nil
}

// ParseLevel converts a log.level value into a slog level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	return level, nil
}
