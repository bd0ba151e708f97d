package wifi

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipNet(cidr string) net.Addr {
	ip, nw, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	return &net.IPNet{IP: ip, Mask: nw.Mask}
}

func TestPickInterface(t *testing.T) {
	ifaces := []ifaceAddrs{
		{name: "lo", up: true, loopback: true, addrs: []net.Addr{ipNet("127.0.0.1/8")}},
		{name: "docker0", mac: "02:42:00:00:00:01", up: true, addrs: []net.Addr{ipNet("172.17.0.1/16")}},
		{name: "wlan0", mac: "aa:bb:cc:dd:ee:ff", up: true, addrs: []net.Addr{
			ipNet("fe80::1/64"),
			ipNet("10.20.30.40/16"),
			ipNet("2001:db8::40/64"),
		}},
	}

	t.Run("GatewaySubnet", func(t *testing.T) {
		info, ok := pickInterface(ifaces, net.ParseIP("10.20.0.1"))
		require.True(t, ok)
		assert.Equal(t, "wlan0", info.Interface)
		assert.Equal(t, "10.20.30.40", info.IPv4)
		assert.Equal(t, "2001:db8::40", info.IPv6)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", info.MAC)
		assert.Equal(t, "10.20.0.1", info.Gateway)
	})

	t.Run("FallbackWithoutGateway", func(t *testing.T) {
		info, ok := pickInterface(ifaces, nil)
		require.True(t, ok)
		assert.Equal(t, "docker0", info.Interface)
		assert.Empty(t, info.Gateway)
	})

	t.Run("NothingUsable", func(t *testing.T) {
		_, ok := pickInterface(ifaces[:1], nil)
		assert.False(t, ok)
	})
}

func TestParseResolvConf(t *testing.T) {
	conf := "# generated\nnameserver 10.0.0.53\nsearch campus.edu\nnameserver 2001:db8::53\n"
	assert.Equal(t, []string{"10.0.0.53", "2001:db8::53"}, parseResolvConf(strings.NewReader(conf)))
}
