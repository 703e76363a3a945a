// Package version holds the mazephases release version.
package version

// Version is overridden at build time with
//
//	go build -ldflags "-X github.com/paulaanasilva/mazephases/internal/version.Version=x.y.z"
var Version = "0.3.0"
