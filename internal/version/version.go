// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/contractrag/internal/version.Version=v1.2.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build as "v1.2.0 (commit abc123, built 2026-01-02)".
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
