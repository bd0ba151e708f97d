//go:build !linux

package wifi

import "github.com/go-logr/logr"

// NewPlatform returns the adapter for this operating system.
func NewPlatform(log logr.Logger, _ string) Adapter {
	log.Info("WiFi control is not available on this platform, failover disabled")
	return Unsupported{}
}
