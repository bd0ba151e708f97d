//go:build linux

package wifi

import "github.com/go-logr/logr"

// NewPlatform returns the adapter for this operating system.
func NewPlatform(log logr.Logger, iface string) Adapter {
	return NewNMCLI(log, WithInterface(iface))
}
