// Package cli parses keeper's command line.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandStart   Command = "start"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandStart:   {},
	CommandStatus:  {},
	CommandStop:    {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	// Port overrides command_port when non-zero.
	Port     int
	ShowHelp bool
	// Unrecognized holds a selector that fell back to start.
	Unrecognized string
}

// Parse reads flags and the action selector. A missing or unknown selector
// selects start; the caller decides how to report Unrecognized.
func Parse(args []string) (Parsed, error) {
	fs := pflag.NewFlagSet("keeper", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)

	var parsed Parsed
	var showVersion bool
	fs.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	fs.IntVar(&parsed.Port, "port", 0, "command port")
	fs.BoolVarP(&parsed.ShowHelp, "help", "h", false, "show help")
	fs.BoolVar(&showVersion, "version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}
	if fs.Changed("port") && (parsed.Port < 1 || parsed.Port > 65535) {
		return Parsed{}, errors.New("--port must be between 1 and 65535")
	}

	positional := fs.Args()
	if len(positional) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", positional[0])
	}

	parsed.Command = CommandStart
	if len(positional) == 1 {
		cmd := Command(positional[0])
		if _, ok := validCommands[cmd]; ok {
			parsed.Command = cmd
		} else {
			parsed.Unrecognized = positional[0]
		}
	}

	switch {
	case parsed.ShowHelp || parsed.Command == CommandHelp:
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	case showVersion:
		parsed.Command = CommandVersion
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--port N] [command]

Commands:
  start     Run the service in the foreground (default)
  status    Report whether an instance is running (exit 0 running, 3 not running)
  stop      Ask the running instance to stop
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/keeper/config.yaml)
  --port N        Command port (default: 16586)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
