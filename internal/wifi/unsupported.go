package wifi

import (
	"context"

	"campusnet/internal/models"
)

// Unsupported is used where no WiFi tooling is available. Network information
// still works since it only needs the standard interface tables.
type Unsupported struct{}

func (Unsupported) CurrentWifi(context.Context) (*models.WifiInfo, error) {
	return nil, ErrUnsupported
}

func (Unsupported) NetworkInfo(ctx context.Context) (models.NetworkInfo, error) {
	return DiscoverNetworkInfo(ctx)
}

func (Unsupported) Connect(context.Context, string, string) (bool, error) {
	return false, ErrUnsupported
}

func (Unsupported) Scan(context.Context) ([]models.WifiInfo, error) {
	return nil, ErrUnsupported
}
