package repository

import (
	"context"

	"iotexplorer/internal/domain"
)

// DeviceStore persists registry snapshots between runs
type DeviceStore interface {
	// ListDevices returns every persisted device, ordered by MAC
	ListDevices(ctx context.Context) ([]domain.DeviceSnapshot, error)

	// SaveDevices upserts the given devices in one transaction
	SaveDevices(ctx context.Context, devices []domain.DeviceSnapshot) error

	// DeleteDevice removes a device; deleting an unknown MAC is not an error
	DeleteDevice(ctx context.Context, mac string) error

	// Close releases resources
	Close() error
}
