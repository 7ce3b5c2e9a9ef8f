// Package version carries build metadata stamped in through -ldflags.
package version

import "runtime"

// Name is the binary name used in help and version output.
const Name = "keeper"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return Name + " " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}
