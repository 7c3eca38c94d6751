// Package version carries build metadata stamped in with -ldflags -X.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build for the startup log and the debug index.
func String() string {
	return fmt.Sprintf("navcore %s (%s, built %s)", Version, GitSHA, BuildTime)
}
