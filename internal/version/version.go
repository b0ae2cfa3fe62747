package version

import "fmt"

// Build metadata, overridden at link time with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("bisttracker %s (commit %s, built %s)", Version, Commit, BuildDate)
}
