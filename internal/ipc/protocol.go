// Package ipc implements the loopback command channel between a running
// keeper instance and short-lived controller invocations.
//
// The protocol is line oriented: a controller writes one command line and
// reads at most one response line back.
package ipc

import "strings"

// DefaultPort is the command port used when configuration does not name one.
const DefaultPort = 16586

// Command is one control request token.
type Command string

const (
	CommandStatus Command = "status"
	CommandStop   Command = "stop"
)

// Response is one control reply token.
type Response string

const (
	// ResponseNone means the peer answered nothing at all.
	ResponseNone     Response = ""
	ResponseOK       Response = "ok"
	ResponseStopping Response = "stopping"
)

// Line returns the wire encoding of the command.
func (c Command) Line() string {
	return string(c) + "\n"
}

// Line returns the wire encoding of the response.
func (r Response) Line() string {
	return string(r) + "\n"
}

// ParseCommand decodes one received line. Matching is exact and case-sensitive;
// only the line terminator is removed.
func ParseCommand(line string) Command {
	return Command(trimLine(line))
}

// ParseResponse decodes one received response line.
func ParseResponse(line string) Response {
	return Response(trimLine(line))
}

func trimLine(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
