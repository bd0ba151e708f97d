package wifi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/jackpal/gateway"

	"campusnet/internal/models"
)

const resolvConfPath = "/etc/resolv.conf"

type ifaceAddrs struct {
	name     string
	mac      string
	up       bool
	loopback bool
	addrs    []net.Addr
}

// DiscoverNetworkInfo describes the interface on the default gateway's subnet,
// falling back to the first active non-loopback interface with an IPv4 address.
func DiscoverNetworkInfo(ctx context.Context) (models.NetworkInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.NetworkInfo{}, err
	}

	ifaces, err := listInterfaces()
	if err != nil {
		return models.NetworkInfo{}, fmt.Errorf("list interfaces: %w", err)
	}

	gw, gwErr := gateway.DiscoverGateway()
	if gwErr != nil {
		gw = nil
	}

	info, ok := pickInterface(ifaces, gw)
	if !ok {
		if gwErr != nil {
			return models.NetworkInfo{}, fmt.Errorf("no usable interface (gateway: %v)", gwErr)
		}
		return models.NetworkInfo{}, fmt.Errorf("no interface on the gateway %v subnet", gw)
	}

	if f, err := os.Open(resolvConfPath); err == nil {
		info.DNS = parseResolvConf(f)
		_ = f.Close()
	}
	return info, nil
}

func listInterfaces() ([]ifaceAddrs, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]ifaceAddrs, 0, len(ifaces))
	for _, i := range ifaces {
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		out = append(out, ifaceAddrs{
			name:     i.Name,
			mac:      i.HardwareAddr.String(),
			up:       i.Flags&net.FlagUp != 0,
			loopback: i.Flags&net.FlagLoopback != 0,
			addrs:    addrs,
		})
	}
	return out, nil
}

func pickInterface(ifaces []ifaceAddrs, gw net.IP) (models.NetworkInfo, bool) {
	var fallback *models.NetworkInfo
	for _, i := range ifaces {
		if !i.up || i.loopback {
			continue
		}
		info := models.NetworkInfo{Interface: i.name, MAC: i.mac}
		onGateway := false
		for _, a := range i.addrs {
			ip, nw, err := net.ParseCIDR(a.String())
			if err != nil {
				continue
			}
			if ip.To4() != nil {
				if info.IPv4 == "" {
					info.IPv4 = ip.String()
				}
			} else if info.IPv6 == "" && ip.IsGlobalUnicast() {
				info.IPv6 = ip.String()
			}
			if gw != nil && nw.Contains(gw) {
				onGateway = true
			}
		}
		if info.IPv4 == "" {
			continue
		}
		if onGateway {
			info.Gateway = gw.String()
			return info, true
		}
		if fallback == nil {
			candidate := info
			fallback = &candidate
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.NetworkInfo{}, false
}

func parseResolvConf(r io.Reader) []string {
	var servers []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			servers = append(servers, fields[1])
		}
	}
	return servers
}
