package config

import (
	"time"

	"github.com/rbright/keeper/internal/ipc"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		CommandPort: ipc.DefaultPort,
		WaitForStop: true,
		Control: ControlConfig{
			ClientTimeout: 3 * time.Second,
			ProbeTimeout:  200 * time.Millisecond,
			IdleTimeout:   30 * time.Second,
		},
		Workload: WorkloadConfig{
			Kind:            WorkloadHTTP,
			Listen:          "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
