package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors Config with pointer fields so that only keys present in
// the file override the base configuration.
type yamlConfig struct {
	CommandPort *int          `yaml:"command_port"`
	WaitForStop *bool         `yaml:"wait_for_stop"`
	Control     *yamlControl  `yaml:"control"`
	Workload    *yamlWorkload `yaml:"workload"`
	Log         *yamlLog      `yaml:"log"`
}

type yamlControl struct {
	ClientTimeout *time.Duration `yaml:"client_timeout"`
	ProbeTimeout  *time.Duration `yaml:"probe_timeout"`
	IdleTimeout   *time.Duration `yaml:"idle_timeout"`
}

type yamlWorkload struct {
	Kind            *string        `yaml:"kind"`
	Listen          *string        `yaml:"listen"`
	ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
}

type yamlLog struct {
	Level *string `yaml:"level"`
	Path  *string `yaml:"path"`
}

// Parse overlays YAML content onto base and validates the result. Unknown keys
// are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)

	var payload yamlConfig
	if err := decoder.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, fmt.Errorf("decode yaml: %w", err)
	}
	var extra yaml.Node
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, nil, errors.New("decode yaml: expected a single document")
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload yamlConfig) applyTo(cfg *Config) {
	if payload.CommandPort != nil {
		cfg.CommandPort = *payload.CommandPort
	}
	if payload.WaitForStop != nil {
		cfg.WaitForStop = *payload.WaitForStop
	}

	if c := payload.Control; c != nil {
		if c.ClientTimeout != nil {
			cfg.Control.ClientTimeout = *c.ClientTimeout
		}
		if c.ProbeTimeout != nil {
			cfg.Control.ProbeTimeout = *c.ProbeTimeout
		}
		if c.IdleTimeout != nil {
			cfg.Control.IdleTimeout = *c.IdleTimeout
		}
	}

	if w := payload.Workload; w != nil {
		if w.Kind != nil {
			cfg.Workload.Kind = strings.ToLower(strings.TrimSpace(*w.Kind))
		}
		if w.Listen != nil {
			cfg.Workload.Listen = strings.TrimSpace(*w.Listen)
		}
		if w.ShutdownTimeout != nil {
			cfg.Workload.ShutdownTimeout = *w.ShutdownTimeout
		}
	}

	if l := payload.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.TrimSpace(*l.Level)
		}
		if l.Path != nil {
			cfg.Log.Path = strings.TrimSpace(*l.Path)
		}
	}
}
