// Package version holds the release version stamped into binaries.
package version

// Current is the semantic version of this build, without a "v" prefix.
const Current = "0.1.0"
