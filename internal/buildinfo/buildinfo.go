// Package buildinfo exposes the version metadata stamped into the binary
// at build time via -ldflags.
package buildinfo

var (
	// Version is the semantic version of the running binary.
	Version = "dev"
	// Commit is the git commit hash the binary was built from.
	Commit = "none"
	// BuildDate is the UTC timestamp of the build.
	BuildDate = "unknown"
)
