// Package version reports the shotfs build.
//
// Release builds inject Version, Commit and Date with -ldflags:
//
//	-ldflags "-X github.com/dendrascience/shotfs/version.Version=v1.2.0 -X github.com/dendrascience/shotfs/version.Commit=abc1234"
//
// Builds without them fall back to the module version and VCS stamps Go
// records in the binary, and finally to development defaults.
package version
