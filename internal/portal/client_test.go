package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusnet/internal/models"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		success bool
		code    string
		msg     string
		wantErr bool
	}{
		{name: "Success", body: `dr1003({"result":1,"msg":"Portal协议认证成功！"});`, success: true, msg: "Portal协议认证成功！"},
		{name: "StringResult", body: `dr1003({"result":"1","msg":"ok"})`, success: true, msg: "ok"},
		{name: "AlreadyOnline", body: `dr1003({"result":0,"msg":"IP: 10.0.0.2 已经在线！","ret_code":2});`, success: true, code: "2", msg: "IP: 10.0.0.2 已经在线！"},
		{name: "Rejected", body: `dr1003({"result":0,"msg":"bGRhcCBhdXRoIGVycm9y","ret_code":1});`, code: "1", msg: "bGRhcCBhdXRoIGVycm9y"},
		{name: "PlainJSON", body: `{"result":1,"msg":"logout ok"}`, success: true, msg: "logout ok"},
		{name: "Garbage", body: `<html>portal</html>`, wantErr: true},
		{name: "Unterminated", body: `dr1003({"result":1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseResponse([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.code, res.Code)
			assert.Equal(t, tt.msg, res.Message)
		})
	}
}

func TestLogin(t *testing.T) {
	var got url.Values
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		got = r.URL.Query()
		fmt.Fprint(w, `dr1003({"result":1,"msg":"认证成功"});`)
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	res, err := c.Login(context.Background(), models.LoginConfig{
		UserAccount:  "20231234",
		UserPassword: "p@ss word",
		WlanUserIP:   "10.20.30.40",
		WlanUserIPv6: "2001:db8::1",
		WlanUserMAC:  "AA:BB:CC:DD:EE:FF",
		ISP:          "telecom",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "认证成功", res.Message)

	assert.Equal(t, loginPath, path)
	assert.Equal(t, "dr1003", got.Get("callback"))
	assert.Equal(t, ",0,20231234@telecom", got.Get("user_account"))
	assert.Equal(t, "p@ss word", got.Get("user_password"))
	assert.Equal(t, "10.20.30.40", got.Get("wlan_user_ip"))
	assert.Equal(t, "2001:db8::1", got.Get("wlan_user_ipv6"))
	assert.Equal(t, "aabbccddeeff", got.Get("wlan_user_mac"))
}

func TestLoginServerOverride(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		assert.Equal(t, ",0,alice", r.URL.Query().Get("user_account"))
		fmt.Fprint(w, `dr1003({"result":0,"msg":"wrong password","ret_code":1})`)
	}))
	defer srv.Close()

	c := New("")
	res, err := c.Login(context.Background(), models.LoginConfig{
		ServerURL:   srv.URL,
		UserAccount: "alice",
		WlanUserIP:  "10.0.0.9",
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.False(t, res.Success)
	assert.Equal(t, "1", res.Code)
}

func TestLoginErrors(t *testing.T) {
	t.Run("NoServer", func(t *testing.T) {
		_, err := New("").Login(context.Background(), models.LoginConfig{WlanUserIP: "10.0.0.2"})
		assert.ErrorIs(t, err, ErrNoServer)
	})

	t.Run("NoIP", func(t *testing.T) {
		_, err := New("http://10.0.0.1").Login(context.Background(), models.LoginConfig{})
		assert.ErrorContains(t, err, "wlan_user_ip")
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(srv.URL).Login(context.Background(), models.LoginConfig{WlanUserIP: "10.0.0.2"})
		assert.ErrorContains(t, err, "unexpected status 502")
	})
}

func TestLogout(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, logoutPath, r.URL.Path)
		got = r.URL.Query()
		fmt.Fprint(w, `dr1004({"result":1,"msg":"注销成功"});`)
	}))
	defer srv.Close()

	c := New("http://unused.invalid")
	c.SetServerURL(srv.URL)
	assert.Equal(t, srv.URL, c.ServerURL())

	res, err := c.Logout(context.Background(), "10.20.30.40")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dr1004", got.Get("callback"))
	assert.Equal(t, "10.20.30.40", got.Get("wlan_user_ip"))

	_, err = c.Logout(context.Background(), " ")
	assert.Error(t, err)
}

func TestNormalizeServerURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.1", normalizeServerURL("10.0.0.1"))
	assert.Equal(t, "https://portal.example.edu", normalizeServerURL(" https://portal.example.edu/ "))
	assert.Empty(t, normalizeServerURL(""))
}
