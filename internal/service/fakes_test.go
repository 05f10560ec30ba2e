package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"iotexplorer/internal/domain"
)

type fakeScanner struct {
	mu    sync.Mutex
	ips   []net.IP
	err   error
	scans int
}

func (f *fakeScanner) set(err error, ips ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.ips = nil
	for _, ip := range ips {
		f.ips = append(f.ips, net.ParseIP(ip))
	}
}

func (f *fakeScanner) Scan(context.Context, time.Duration) ([]net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return f.ips, f.err
}

func (f *fakeScanner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

// cancellingScanner ends the tick's context right after its scan returns
type cancellingScanner struct {
	*fakeScanner
	cancel context.CancelFunc
}

func (s cancellingScanner) Scan(ctx context.Context, timeout time.Duration) ([]net.IP, error) {
	defer s.cancel()
	return s.fakeScanner.Scan(ctx, timeout)
}

// stallingFetcher never answers before ctx ends
type stallingFetcher struct{}

func (stallingFetcher) Fetch(ctx context.Context, _ net.IP) (*domain.DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedFetcher answers once release is closed, signalling entered first
type gatedFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (g gatedFetcher) Fetch(_ context.Context, ip net.IP) (*domain.DeviceInfo, error) {
	g.entered <- struct{}{}
	<-g.release
	return &domain.DeviceInfo{Name: "relay", Type: "relay", Server: ip.String() + ":3796"}, nil
}

// fakeResolver maps IPs to MACs; unknown IPs fail resolution
type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, ip net.IP) (string, error) {
	if mac, ok := f[ip.String()]; ok {
		return mac, nil
	}
	return "", domain.NewError(domain.ErrResolution, "resolve", ip.String(), errors.New("no stage answered"))
}

// fakeFetcher maps IPs to device types; unknown IPs fail the fetch
type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, ip net.IP) (*domain.DeviceInfo, error) {
	deviceType, ok := f[ip.String()]
	if !ok {
		return nil, domain.NewError(domain.ErrTransport, "fetch", ip.String(), errors.New("connection refused"))
	}
	return &domain.DeviceInfo{
		Name:   deviceType + " at " + ip.String(),
		Type:   deviceType,
		Server: ip.String() + ":3796",
	}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	devices map[string]domain.DeviceSnapshot
	saves   int
}

func newMemoryStore(seed ...domain.DeviceSnapshot) *memoryStore {
	s := &memoryStore{devices: make(map[string]domain.DeviceSnapshot)}
	for _, d := range seed {
		s.devices[d.MAC] = d
	}
	return s
}

func (s *memoryStore) ListDevices(context.Context) ([]domain.DeviceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeviceSnapshot
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out, nil
}

func (s *memoryStore) SaveDevices(_ context.Context, devices []domain.DeviceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for _, d := range devices {
		s.devices[d.MAC] = d
	}
	return nil
}

func (s *memoryStore) DeleteDevice(_ context.Context, mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, mac)
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memoryStore) has(mac string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[mac]
	return ok
}

// drain collects every event currently buffered on ch
func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
