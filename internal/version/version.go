// Package version carries the build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String returns the one-line form printed by `sensorsync version`.
func String() string {
	return fmt.Sprintf("sensorsync %s (%s, built %s)", Version, GitSHA, BuildTime)
}
