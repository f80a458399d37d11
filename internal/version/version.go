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

// String renders the build metadata for -version output and the status API.
func String() string {
	return fmt.Sprintf("yard.fusion %s (%s, built %s)", Version, GitSHA, BuildTime)
}
