package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// String renders the build information on one line, used in startup logs and the user agent.
func String() string {
	return fmt.Sprintf("valuewatcher %s (%s, %s)", Version, Commit, BuildDate)
}

// UserAgent is sent by HTTP market data sources.
func UserAgent() string {
	return "valuewatcher/" + Version
}
