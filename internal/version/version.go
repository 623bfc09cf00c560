// Package version holds build metadata, set at link time:
//
//	go build -ldflags "-X github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/version.Version=1.2.0"
package version

// Version is the application version.
var Version = "dev"
