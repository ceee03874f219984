// Package version provides build-time version information.
package version

import "fmt"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.3.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Name is the program name written into reports.
const Name = "fib-correlate"

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("%s version %s", Name, Version)
}

// Long returns the banner with build details.
func Long() string {
	return fmt.Sprintf("%s\nBuilt: %s\nCommit: %s", String(), BuildTime, GitCommit)
}
