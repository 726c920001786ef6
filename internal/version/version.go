// Package version carries build metadata injected with -ldflags.
package version

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = ""
	// BuildDate is the build timestamp in RFC 3339.
	BuildDate = ""
)
