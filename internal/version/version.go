// SPDX-License-Identifier: MIT

// Package version carries build metadata injected via -ldflags.
package version

import "fmt"

var (
	// Version is the release version, set by the build system.
	Version = "v1.5.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String formats the metadata for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
