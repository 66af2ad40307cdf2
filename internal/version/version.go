// Package version holds build identification, overridden at link time
// with -ldflags "-X ...".
package version

var (
	// Version is the release version, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
