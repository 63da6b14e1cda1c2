package version

import "runtime/debug"

// version is overridden at build time:
//
//	go build -ldflags "-X github.com/vinodismyname/kpidash/pkg/version.version=v1.2.3"
var version = "dev"

// Version returns the ldflags version, falling back to the module version
// recorded in build info for `go install` builds.
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}
