// Package wifi defines the platform WiFi capability the engine depends on,
// plus the implementations shipped with the daemon.
package wifi

import (
	"context"
	"errors"

	"campusnet/internal/models"
)

// ErrUnsupported is returned by adapters that cannot control WiFi on this platform.
var ErrUnsupported = errors.New("wifi control not supported on this platform")

// Adapter is the OS-specific WiFi capability. Implementations bound every call
// with their own short timeout.
type Adapter interface {
	// CurrentWifi returns the associated network, or nil when not associated.
	CurrentWifi(ctx context.Context) (*models.WifiInfo, error)
	NetworkInfo(ctx context.Context) (models.NetworkInfo, error)
	// Connect joins ssid and reports whether the association succeeded.
	Connect(ctx context.Context, ssid, password string) (bool, error)
	Scan(ctx context.Context) ([]models.WifiInfo, error)
}

// Supported reports whether a can switch networks.
func Supported(a Adapter) bool {
	if a == nil {
		return false
	}
	_, unsupported := a.(Unsupported)
	return !unsupported
}

// CurrentSSID is a convenience wrapper returning "" when not associated.
func CurrentSSID(ctx context.Context, a Adapter) (string, error) {
	info, err := a.CurrentWifi(ctx)
	if err != nil || info == nil {
		return "", err
	}
	return info.SSID, nil
}
