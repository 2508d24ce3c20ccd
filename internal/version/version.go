// Package version exposes the build version.
package version

// version is overridden at release time via
// -ldflags "-X github.com/fuelsh/fuel/internal/version.version=vX.Y.Z".
var version = "0.1.0-dev"

// Get returns the current version.
func Get() string {
	return version
}
