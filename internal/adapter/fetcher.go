package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"iotexplorer/internal/domain"
)

// Descriptor endpoint defaults
const (
	DefaultControlPort  = 3796
	DefaultFetchTimeout = 5 * time.Second
	DescriptorPath      = "/api/device"
)

// FetcherConfig holds configuration for the descriptor fetcher
type FetcherConfig struct {
	Port    int
	Timeout time.Duration
}

// DescriptorFetcher retrieves GET /api/device from responders
type DescriptorFetcher struct {
	config FetcherConfig
	client *DeviceClient
	logger zerolog.Logger
}

// NewDescriptorFetcher creates a fetcher
func NewDescriptorFetcher(config FetcherConfig, logger zerolog.Logger) *DescriptorFetcher {
	if config.Port == 0 {
		config.Port = DefaultControlPort
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultFetchTimeout
	}
	return &DescriptorFetcher{
		config: config,
		client: NewDeviceClient(config.Timeout),
		logger: logger,
	}
}

// ControlAddress is the host:port used when a device does not report one
func (f *DescriptorFetcher) ControlAddress(ip net.IP) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(f.config.Port))
}

// Fetch implements Fetcher. Failures are logged and returned; callers treat
// them as "no device".
func (f *DescriptorFetcher) Fetch(ctx context.Context, ip net.IP) (*domain.DeviceInfo, error) {
	url := "http://" + f.ControlAddress(ip) + DescriptorPath

	resp, err := f.client.Do(ctx, http.MethodGet, url)
	if err != nil {
		f.logger.Warn().Err(err).Str("ip", ip.String()).Msg("Error getting device info")
		return nil, err
	}

	info, err := f.parse(resp, ip)
	if err != nil {
		f.logger.Warn().Err(err).Str("ip", ip.String()).Msg("Rejected device info")
		return nil, err
	}
	return info, nil
}

func (f *DescriptorFetcher) parse(resp *Response, ip net.IP) (*domain.DeviceInfo, error) {
	fail := func(format string, args ...any) error {
		return domain.NewError(domain.ErrProtocol, "fetch device info", ip.String(), fmt.Errorf(format, args...))
	}

	status, ok := resp.Status()
	if !ok {
		return nil, fail("missing status")
	}
	if status != StatusSuccessful {
		return nil, fail("status %q", status)
	}

	var body struct {
		Name        string          `json:"device_name"`
		Type        string          `json:"device_type"`
		Server      string          `json:"server"`
		MainCommand json.RawMessage `json:"main_command"`
		MAC         string          `json:"mac"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fail("decoding fields: %v", err)
	}
	if strings.TrimSpace(body.Name) == "" {
		return nil, fail("missing device_name")
	}
	if strings.TrimSpace(body.Type) == "" {
		return nil, fail("missing device_type")
	}

	info := &domain.DeviceInfo{
		Name:        body.Name,
		Type:        body.Type,
		Server:      normalizeServer(body.Server, ip, f.config.Port),
		MainCommand: rawString(body.MainCommand),
		Raw:         json.RawMessage(resp.Body),
	}
	if body.MAC != "" {
		if mac, err := domain.NormalizeMAC(body.MAC); err == nil {
			info.MAC = mac
		}
	}
	return info, nil
}

// normalizeServer turns the reported server into host:port. Devices report
// "ip:port", a bare host, or a URL; empty falls back to ip:port.
func normalizeServer(server string, ip net.IP, port int) string {
	server = strings.TrimSpace(server)
	server = strings.TrimPrefix(server, "http://")
	server = strings.TrimSuffix(server, "/")
	if server == "" {
		return net.JoinHostPort(ip.String(), strconv.Itoa(port))
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && strings.Contains(addrErr.Err, "missing port") {
			return net.JoinHostPort(server, strconv.Itoa(port))
		}
	}
	return server
}

// rawString returns a JSON string's value, or the raw JSON text of any other value
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
