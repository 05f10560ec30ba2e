package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotexplorer/internal/domain"
	"iotexplorer/internal/service"
)

type fakeDiscovery struct {
	tickErr error
	scanned []net.IP
	removed []string
	ticks   int

	// context state observed while Tick ran
	tickCtxErr  error
	tickHasDead bool
}

func (f *fakeDiscovery) Tick(ctx context.Context) (service.TickReport, error) {
	f.ticks++
	f.tickCtxErr = ctx.Err()
	_, f.tickHasDead = ctx.Deadline()
	return service.TickReport{Responders: 1, Mode: service.ModeFast, Interval: 30 * time.Second}, f.tickErr
}

func (f *fakeDiscovery) ScanOnce(context.Context) ([]net.IP, error) {
	return f.scanned, nil
}

func (f *fakeDiscovery) State() service.CoordinatorState {
	return service.CoordinatorState{Mode: service.ModeNormal, Interval: 100 * time.Second, Devices: 1}
}

func (f *fakeDiscovery) Remove(_ context.Context, mac string) error {
	if mac != "aa:bb:cc:dd:ee:01" {
		return domain.NewError(domain.ErrDeviceNotFound, "remove", mac, nil)
	}
	f.removed = append(f.removed, mac)
	return nil
}

// fakeCommands answers from a fixed table of command -> result
type fakeCommands struct {
	results map[string]service.Result
}

func (f *fakeCommands) Execute(_ context.Context, mac, command string) service.Result {
	if r, ok := f.results[command]; ok {
		r.MAC, r.Command = mac, command
		return r
	}
	return service.Result{MAC: mac, Command: command, Err: domain.NewError(domain.ErrLookup, "execute", command, nil)}
}

func (f *fakeCommands) ExecuteMain(ctx context.Context, mac string) service.Result {
	return f.Execute(ctx, mac, "toggle")
}

func (f *fakeCommands) DescriptorTable() domain.DescriptorTable {
	return domain.DefaultDescriptorTable()
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeDiscovery, *service.Registry) {
	t.Helper()

	registry := service.NewRegistry(3796)
	registry.Reconcile([]domain.Observation{{
		MAC:  "aa:bb:cc:dd:ee:01",
		IP:   "192.168.1.20",
		Info: domain.DeviceInfo{Name: "Kitchen relay", Type: "relay", MainCommand: "toggle"},
	}}, 3, time.Now())

	discovery := &fakeDiscovery{scanned: []net.IP{net.ParseIP("192.168.1.20")}}
	commands := &fakeCommands{results: map[string]service.Result{
		domain.StatusQuery: {Success: true, Value: true},
		"toggle":           {Success: true, Value: false},
		"broken":           {Err: domain.NewError(domain.ErrTransport, "execute", "x", errors.New("connection refused"))},
		"offline":          {Err: domain.NewError(domain.ErrDeviceUnavailable, "execute", "x", nil)},
	}}

	mux := http.NewServeMux()
	NewDeviceHandler(discovery, registry, commands, zerolog.Nop()).Register(mux)

	srv := httptest.NewServer(Chain(mux, Recover(zerolog.Nop()), CORS, Logger(zerolog.Nop())))
	t.Cleanup(srv.Close)
	return srv, discovery, registry
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestListAndGetDevices(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/devices")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var devices []domain.DeviceSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "Kitchen relay", devices[0].Name)
	assert.Equal(t, domain.Manufacturer, devices[0].Manufacturer)

	resp = do(t, http.MethodGet, srv.URL+"/api/devices/AA-BB-CC-DD-EE-01")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/devices/aa:bb:cc:dd:ee:99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "Not Found", errResp.Error)
}

func TestDeleteDevice(t *testing.T) {
	srv, discovery, _ := newTestServer(t)

	resp := do(t, http.MethodDelete, srv.URL+"/api/devices/aa:bb:cc:dd:ee:01")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:01"}, discovery.removed)

	resp = do(t, http.MethodDelete, srv.URL+"/api/devices/aa:bb:cc:dd:ee:02")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommandStatusCodes(t *testing.T) {
	srv, _, _ := newTestServer(t)
	base := srv.URL + "/api/devices/aa:bb:cc:dd:ee:01"

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"status", http.MethodGet, "/status", http.StatusOK},
		{"command", http.MethodPost, "/commands/toggle", http.StatusOK},
		{"main command", http.MethodPost, "/main", http.StatusOK},
		{"unknown command", http.MethodPost, "/commands/explode", http.StatusBadRequest},
		{"transport failure", http.MethodPost, "/commands/broken", http.StatusBadGateway},
		{"unavailable", http.MethodPost, "/commands/offline", http.StatusConflict},
		{"wrong method", http.MethodGet, "/commands/toggle", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, base+tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCommandResultBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/devices/aa:bb:cc:dd:ee:01/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["value"])
	assert.Equal(t, "status", body["command"])
}

func TestDiscoverOutlivesRequestContext(t *testing.T) {
	discovery := &fakeDiscovery{}
	h := NewDeviceHandler(discovery, service.NewRegistry(3796), &fakeCommands{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/discover", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.Discover(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, discovery.ticks)
	assert.NoError(t, discovery.tickCtxErr)
	assert.True(t, discovery.tickHasDead)
}

func TestDiscoverAndScan(t *testing.T) {
	srv, discovery, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/discover")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, discovery.ticks)

	discovery.tickErr = domain.NewError(domain.ErrCycleFailed, "tick", "", errors.New("no socket"))
	resp = do(t, http.MethodPost, srv.URL+"/api/discover")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/scan")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scan struct {
		Responders []string `json:"responders"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	assert.Equal(t, []string{"192.168.1.20"}, scan.Responders)
}

func TestCoordinatorAndDeviceTypes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/coordinator")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state service.CoordinatorState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, service.ModeNormal, state.Mode)

	resp = do(t, http.MethodGet, srv.URL+"/api/device-types")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&table))
	assert.Contains(t, table, "relay")
	assert.Contains(t, table, "servo")
}

func TestExportJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/export/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "iot_explorer_devices.json")

	var records []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", records[0]["mac"])
	assert.Equal(t, "Kitchen relay", records[0]["name"])
	assert.Equal(t, "192.168.1.20:3796", records[0]["server"])
}

func TestLoggerKeepsResponseControllerReachable(t *testing.T) {
	deadlineErr := make(chan error, 1)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadlineErr <- http.NewResponseController(w).SetWriteDeadline(time.Time{})
	})

	srv := httptest.NewServer(Chain(inner, Logger(zerolog.Nop())))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.NoError(t, <-deadlineErr)
}

func TestMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	srv := httptest.NewServer(Chain(mux, Recover(zerolog.Nop()), CORS, Logger(zerolog.Nop())))
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/panic")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = do(t, http.MethodOptions, srv.URL+"/panic")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewError(domain.ErrDeviceNotFound, "get", "x", nil), http.StatusNotFound},
		{domain.NewError(domain.ErrLookup, "lookup", "x", nil), http.StatusBadRequest},
		{domain.NewError(domain.ErrDeviceUnavailable, "execute", "x", nil), http.StatusConflict},
		{domain.NewError(domain.ErrProtocol, "execute", "x", nil), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.err.Error(), " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
