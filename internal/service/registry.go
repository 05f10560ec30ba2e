package service

import (
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"iotexplorer/internal/domain"
)

// ReconcileResult lists the MACs affected by one reconciliation
type ReconcileResult struct {
	Added             []string `json:"added,omitempty"`
	Updated           []string `json:"updated,omitempty"`
	Recovered         []string `json:"recovered,omitempty"`
	Missed            []string `json:"missed,omitempty"`
	BecameUnavailable []string `json:"became_unavailable,omitempty"`
}

// MissedCount is the number of still-available devices not seen this tick
func (r ReconcileResult) MissedCount() int {
	return len(r.Missed)
}

// Registry is the in-memory set of known devices, keyed by MAC.
// Device records are never replaced once inserted, so pointers handed out by
// Get stay valid until Remove.
type Registry struct {
	mu          sync.RWMutex
	devices     map[string]*domain.Device
	controlPort int
}

// NewRegistry creates an empty registry. controlPort builds the address of
// devices that do not report a server.
func NewRegistry(controlPort int) *Registry {
	return &Registry{
		devices:     make(map[string]*domain.Device),
		controlPort: controlPort,
	}
}

// Seed inserts persisted devices that are not yet known. It returns the
// number inserted.
func (r *Registry) Seed(snapshots []domain.DeviceSnapshot) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, s := range snapshots {
		mac, err := domain.NormalizeMAC(s.MAC)
		if err != nil {
			continue
		}
		if _, exists := r.devices[mac]; exists {
			continue
		}
		s.MAC = mac
		r.devices[mac] = domain.RestoreDevice(s)
		added++
	}
	return added
}

// Get returns the device for mac, or nil
func (r *Registry) Get(mac string) *domain.Device {
	if normalized, err := domain.NormalizeMAC(mac); err == nil {
		mac = normalized
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[mac]
}

// Snapshot copies every device, ordered by MAC
func (r *Registry) Snapshot() []domain.DeviceSnapshot {
	r.mu.RLock()
	devices := make([]*domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	snapshots := make([]domain.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		snapshots = append(snapshots, d.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].MAC < snapshots[j].MAC
	})
	return snapshots
}

// AvailableMACs lists devices currently flagged available, ordered by MAC
func (r *Registry) AvailableMACs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var macs []string
	for mac, d := range r.devices {
		if d.Available() {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs
}

// Remove deletes a device. It reports whether the device existed.
func (r *Registry) Remove(mac string) bool {
	if normalized, err := domain.NormalizeMAC(mac); err == nil {
		mac = normalized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[mac]; !ok {
		return false
	}
	delete(r.devices, mac)
	return true
}

// Len returns the number of known devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Reconcile merges one tick's observations. Seen devices are updated in place
// and marked available; known devices that were not seen accumulate a miss
// and turn unavailable once threshold misses are reached. Unknown MACs are
// inserted. Nothing is ever deleted here.
func (r *Registry) Reconcile(results []domain.Observation, threshold int, now time.Time) ReconcileResult {
	if threshold < 1 {
		threshold = 1
	}

	seen := make(map[string]domain.Observation, len(results))
	order := make([]string, 0, len(results))
	for _, obs := range results {
		if obs.MAC == "" {
			continue
		}
		if _, dup := seen[obs.MAC]; !dup {
			order = append(order, obs.MAC)
		}
		// Later observations of the same MAC win
		seen[obs.MAC] = obs
	}
	sort.Strings(order)

	r.mu.Lock()
	defer r.mu.Unlock()

	var result ReconcileResult
	for _, mac := range order {
		obs := seen[mac]
		address := obs.Address(r.fallbackAddress(obs.IP))

		device, exists := r.devices[mac]
		if !exists {
			r.devices[mac] = domain.NewDevice(obs, address, now)
			result.Added = append(result.Added, mac)
			continue
		}

		changed, recovered := device.Apply(obs, address, now)
		if changed {
			result.Updated = append(result.Updated, mac)
		}
		if recovered {
			result.Recovered = append(result.Recovered, mac)
		}
	}

	known := make([]string, 0, len(r.devices))
	for mac := range r.devices {
		known = append(known, mac)
	}
	sort.Strings(known)

	for _, mac := range known {
		if _, ok := seen[mac]; ok {
			continue
		}
		wasAvailable, gone := r.devices[mac].Miss(threshold, now)
		if wasAvailable {
			result.Missed = append(result.Missed, mac)
		}
		if gone {
			result.BecameUnavailable = append(result.BecameUnavailable, mac)
		}
	}

	return result
}

func (r *Registry) fallbackAddress(ip string) string {
	if ip == "" {
		return ""
	}
	return net.JoinHostPort(ip, strconv.Itoa(r.controlPort))
}
