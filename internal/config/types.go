// Package config resolves, parses, validates, and defaults keeper configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by keeper.
type Config struct {
	CommandPort int
	WaitForStop bool
	Control     ControlConfig
	Workload    WorkloadConfig
	Log         LogConfig
}

// ControlConfig tunes the command channel.
type ControlConfig struct {
	ClientTimeout time.Duration
	ProbeTimeout  time.Duration
	IdleTimeout   time.Duration
}

// WorkloadConfig selects and configures the supervised service.
type WorkloadConfig struct {
	Kind            string
	Listen          string
	ShutdownTimeout time.Duration
}

// LogConfig controls the JSONL runtime log.
type LogConfig struct {
	Level string
	Path  string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}

const (
	WorkloadHTTP = "http"
	WorkloadGRPC = "grpc"
)
