// Package version carries build metadata, set with
// -ldflags "-X github.com/you/turnbell/internal/version.Version=v1.2.3 ...".
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String is the one-line build description.
func String() string {
	return fmt.Sprintf("turnbell %s (commit %s, built %s)", Version, Commit, BuildTime)
}
