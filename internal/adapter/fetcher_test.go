package adapter

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotexplorer/internal/domain"
)

// deviceServer serves body on /api/device and returns a fetcher aimed at it.
func deviceServer(t *testing.T, status int, body string) *DescriptorFetcher {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DescriptorPath || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return NewDescriptorFetcher(FetcherConfig{Port: port, Timeout: time.Second}, zerolog.Nop())
}

var loopback = net.IPv4(127, 0, 0, 1)

func TestDescriptorFetcherSuccess(t *testing.T) {
	f := deviceServer(t, http.StatusOK, `{
		"status": "successful",
		"device_name": "Kitchen relay",
		"device_type": "relay",
		"server": "192.168.1.40:3796",
		"main_command": "toggle",
		"mac": "AA-BB-CC-DD-EE-40"
	}`)

	info, err := f.Fetch(context.Background(), loopback)
	require.NoError(t, err)
	assert.Equal(t, "Kitchen relay", info.Name)
	assert.Equal(t, "relay", info.Type)
	assert.Equal(t, "192.168.1.40:3796", info.Server)
	assert.Equal(t, "toggle", info.MainCommand)
	assert.Equal(t, "aa:bb:cc:dd:ee:40", info.MAC)
	assert.Contains(t, string(info.Raw), "Kitchen relay")
}

func TestDescriptorFetcherServerFallback(t *testing.T) {
	f := deviceServer(t, http.StatusOK, `{"status":"successful","device_name":"Lamp","device_type":"esp8266_led_on_board","main_command":{"cmd":"toggle"}}`)

	info, err := f.Fetch(context.Background(), loopback)
	require.NoError(t, err)
	assert.Equal(t, f.ControlAddress(loopback), info.Server)
	assert.Equal(t, `{"cmd":"toggle"}`, info.MainCommand)
}

func TestDescriptorFetcherRejects(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"failed status", http.StatusOK, `{"status":"error","device_name":"x","device_type":"relay"}`, domain.ErrProtocol},
		{"missing status", http.StatusOK, `{"device_name":"x","device_type":"relay"}`, domain.ErrProtocol},
		{"missing name", http.StatusOK, `{"status":"successful","device_type":"relay"}`, domain.ErrProtocol},
		{"missing type", http.StatusOK, `{"status":"successful","device_name":"x"}`, domain.ErrProtocol},
		{"not json", http.StatusOK, `<html>hello</html>`, domain.ErrProtocol},
		{"json array", http.StatusOK, `[1,2,3]`, domain.ErrProtocol},
		{"server error", http.StatusInternalServerError, `{"status":"successful"}`, domain.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := deviceServer(t, tt.status, tt.body)
			info, err := f.Fetch(context.Background(), loopback)
			assert.Nil(t, info)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestDescriptorFetcherTransportError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	f := NewDescriptorFetcher(FetcherConfig{Port: port, Timeout: time.Second}, zerolog.Nop())
	_, err = f.Fetch(context.Background(), loopback)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestNormalizeServer(t *testing.T) {
	ip := net.IPv4(10, 0, 0, 7)

	tests := []struct {
		server string
		want   string
	}{
		{"", "10.0.0.7:3796"},
		{"10.0.0.7:8080", "10.0.0.7:8080"},
		{"10.0.0.9", "10.0.0.9:3796"},
		{"http://10.0.0.9:81/", "10.0.0.9:81"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeServer(tt.server, ip, 3796), tt.server)
	}
}
