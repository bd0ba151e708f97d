// Package wifitest provides a programmable wifi.Adapter for tests.
package wifitest

import (
	"context"
	"sync"

	"campusnet/internal/models"
)

// ConnectFunc decides the outcome of a Connect call.
type ConnectFunc func(ssid, password string) (bool, error)

// Fake is an in-memory adapter. The zero value is associated with nothing,
// has no network info, and accepts every Connect.
type Fake struct {
	mu        sync.Mutex
	ssid      string
	info      models.NetworkInfo
	infoErr   error
	wifiErr   error
	connect   ConnectFunc
	connects  []string
	visible   []models.WifiInfo
	infoCalls int
}

// New returns a fake associated with ssid and reporting info.
func New(ssid string, info models.NetworkInfo) *Fake {
	return &Fake{ssid: ssid, info: info}
}

// SetSSID changes the associated network; "" means disassociated.
func (f *Fake) SetSSID(ssid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ssid = ssid
}

// SetNetworkInfo changes what NetworkInfo returns.
func (f *Fake) SetNetworkInfo(info models.NetworkInfo, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
	f.infoErr = err
}

// SetWifiError makes CurrentWifi fail.
func (f *Fake) SetWifiError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wifiErr = err
}

// OnConnect installs the Connect behaviour.
func (f *Fake) OnConnect(fn ConnectFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connect = fn
}

// SetVisible sets the Scan result.
func (f *Fake) SetVisible(networks []models.WifiInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = networks
}

// Connects returns the SSIDs passed to Connect, in call order.
func (f *Fake) Connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.connects))
	copy(out, f.connects)
	return out
}

// NetworkInfoCalls returns how many times NetworkInfo was called.
func (f *Fake) NetworkInfoCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

func (f *Fake) CurrentWifi(ctx context.Context) (*models.WifiInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wifiErr != nil {
		return nil, f.wifiErr
	}
	if f.ssid == "" {
		return nil, nil
	}
	return &models.WifiInfo{SSID: f.ssid, Active: true}, nil
}

func (f *Fake) NetworkInfo(ctx context.Context) (models.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	return f.info, f.infoErr
}

func (f *Fake) Connect(ctx context.Context, ssid, password string) (bool, error) {
	f.mu.Lock()
	f.connects = append(f.connects, ssid)
	fn := f.connect
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	ok, err := true, error(nil)
	if fn != nil {
		ok, err = fn(ssid, password)
	}
	if ok && err == nil {
		f.SetSSID(ssid)
	}
	return ok, err
}

func (f *Fake) Scan(ctx context.Context) ([]models.WifiInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WifiInfo, len(f.visible))
	copy(out, f.visible)
	return out, nil
}
