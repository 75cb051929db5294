// Package env holds build-time metadata injected via -ldflags.
package env

var (
	Version    = "dev"
	CommitHash = "none"
	BuildTime  = "unknown"
)
