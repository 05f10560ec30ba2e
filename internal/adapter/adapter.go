package adapter

import (
	"context"
	"net"
	"time"

	"iotexplorer/internal/domain"
)

// Scanner finds devices answering the discovery handshake
type Scanner interface {
	// Scan broadcasts the probe and returns the distinct responder IPs seen
	// within timeout
	Scan(ctx context.Context, timeout time.Duration) ([]net.IP, error)
}

// Resolver maps a responder IP to its stable link-layer identity
type Resolver interface {
	// Resolve returns the normalised MAC, or an error wrapping
	// domain.ErrResolution when no stage could produce one
	Resolve(ctx context.Context, ip net.IP) (string, error)
}

// Fetcher retrieves a device's self-description
type Fetcher interface {
	Fetch(ctx context.Context, ip net.IP) (*domain.DeviceInfo, error)
}

// EventPublisher allows adapters to publish progress events
type EventPublisher interface {
	PublishDiscoveryEvent(eventType string, payload interface{})
}

// Stage is one step of a resolution chain
type Stage interface {
	// Name identifies the stage in logs
	Name() string

	// Lookup returns a normalised MAC or an error
	Lookup(ctx context.Context, ip net.IP) (string, error)
}
