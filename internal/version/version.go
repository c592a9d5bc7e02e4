// Package version carries the build version, injected at link time.
package version

// Version is the daemon version string, overridden by the build with
// -ldflags "-X .../internal/version.Version=v1.2.3".
var Version = "dev"
