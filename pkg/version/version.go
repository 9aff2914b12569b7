// Package version holds the build-time version string, overridden via
// linker flags at release build time.
package version

// Version is stamped with -ldflags "-X .../pkg/version.Version=..." by the
// release build. It defaults to "dev" for local builds.
var Version = "dev"
