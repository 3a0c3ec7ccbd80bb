package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/MrSnakeDoc/marksync/internal/version.Version=...".
var (
	Version   = "dev"             // ex: v0.1.0
	Commit    = "none"            // ex: abcd123
	BuildDate = "unknown"         // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version() // go version
)

// String is the one-line build description printed by `marksync version`.
func String() string {
	return fmt.Sprintf("marksync %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
