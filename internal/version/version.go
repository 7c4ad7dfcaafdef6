// Package version exposes build metadata stamped in at link time.
//
// Release builds override the defaults with ldflags, e.g.:
//
//	go build -ldflags "\
//	  -X github.com/jstrand/alpaca-stream/internal/version.Version=0.2.0 \
//	  -X github.com/jstrand/alpaca-stream/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/jstrand/alpaca-stream/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the version, commit, and build time on one line.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
