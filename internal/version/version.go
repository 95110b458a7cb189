package version

// Version is the application version. Override via ldflags:
//
//	go build -ldflags "-X shadowhawk/internal/version.Version=1.2.3 -X shadowhawk/internal/version.Build=153"
var Version = "0.0.1"

// Build is the build number, injected at compile time.
var Build = "dev"
