// Package version provides centralized version information for CWB.
package version

// These variables can be overridden at build time using ldflags:
// go build -ldflags "-X cwb/internal/version.Version=1.0.0 -X cwb/internal/version.Commit=abc123"
var (
	// Version is the semantic version of CWB
	Version = "1.0.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// Info returns a formatted version string
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "cwb version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
