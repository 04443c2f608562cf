// Package version holds the todomagic build stamp, filled in by -ldflags.
package version

import "fmt"

// Overridden with -X github.com/GoCodeAlone/todomagic/internal/version.Version=... etc.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String is the one-line build description printed by both binaries.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
