// Package version holds build metadata injected through ldflags.
package version

var (
	// Version is the semantic version of the build, "dev" when unset.
	Version = "dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
	// BuildDate is the build timestamp in RFC 3339.
	BuildDate = "unknown"
)
