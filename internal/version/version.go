// Package version holds the build version string.
package version

// Version is the tsel version, overridden at build time via
// -ldflags "-X tsel/internal/version.Version=...".
var Version = "0.3.0-dev"
