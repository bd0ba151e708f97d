package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnet/internal/models"
	"campusnet/internal/wifi/wifitest"
)

func TestProberStatus(t *testing.T) {
	open := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer open.Close()

	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://10.0.0.1/eportal/index.jsp", http.StatusFound)
	}))
	defer portal.Close()

	link := wifitest.New("CampusNet", models.NetworkInfo{IPv4: "10.1.2.3", IPv6: "fe80::1", MAC: "aa:bb:cc:dd:ee:ff"})

	t.Run("FirstReachableEndpointWins", func(t *testing.T) {
		p := NewProber([]models.ProbeEndpoint{
			{URL: portal.URL, ExpectStatus: http.StatusNoContent},
			{URL: open.URL, ExpectStatus: http.StatusNoContent},
		}, WithLinkInfo(link))

		status, err := p.Status(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.True(t, status.Authenticated)
		require.NotNil(t, status.Latency)
		assert.Equal(t, "127.0.0.1", status.Latency.Source)
		assert.Equal(t, "CampusNet", status.SSID)
		assert.Equal(t, "10.1.2.3", status.IPv4)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", status.MAC)
		assert.Empty(t, status.Error)
		assert.False(t, status.CheckedAt.IsZero())
	})

	t.Run("RedirectMeansCaptive", func(t *testing.T) {
		p := NewProber([]models.ProbeEndpoint{{URL: portal.URL, ExpectStatus: http.StatusNoContent}})

		status, err := p.Status(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Connected)
		assert.False(t, status.Authenticated)
		assert.Nil(t, status.Latency)
		assert.Contains(t, status.Error, "unexpected status 302")
	})

	t.Run("AnySuccessWhenNoExpectation", func(t *testing.T) {
		p := NewProber([]models.ProbeEndpoint{{URL: open.URL}})

		status, err := p.Status(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Connected)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := NewProber([]models.ProbeEndpoint{{URL: open.URL}})

		_, err := p.Status(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewProberDefaults(t *testing.T) {
	p := NewProber(nil)
	assert.Equal(t, DefaultEndpoints, p.endpoints)
	assert.Equal(t, defaultProbeTimeout, p.timeout)
	assert.NotNil(t, p.client.CheckRedirect)
}

func TestEndpointHost(t *testing.T) {
	assert.Equal(t, "www.gstatic.com", endpointHost("http://www.gstatic.com/generate_204"))
	assert.Equal(t, "not a url", endpointHost("not a url"))
}
