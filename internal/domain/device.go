package domain

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// Manufacturer is reported for every device in its device info.
const Manufacturer = "IoT Explorer"

// DeviceInfo is the self-description returned by a device's control API.
type DeviceInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Server      string `json:"server"`
	MainCommand string `json:"main_command,omitempty"`
	MAC         string `json:"mac,omitempty"`

	// Raw is the complete response body, kept opaque.
	Raw json.RawMessage `json:"device_data,omitempty"`
}

// Equal reports whether two descriptions carry the same content.
func (i DeviceInfo) Equal(o DeviceInfo) bool {
	return i.Name == o.Name &&
		i.Type == o.Type &&
		i.Server == o.Server &&
		i.MainCommand == o.MainCommand &&
		i.MAC == o.MAC &&
		bytes.Equal(i.Raw, o.Raw)
}

// Observation is one responder seen during a discovery tick, with its
// identity resolved and its description fetched.
type Observation struct {
	MAC  string
	IP   string
	Info DeviceInfo
}

// Address returns the control address for the observation: the device's own
// server field, or fallback when the device did not report one.
func (o Observation) Address(fallback string) string {
	if o.Info.Server != "" {
		return o.Info.Server
	}
	return fallback
}

// DeviceSnapshot is an immutable copy of a Device, safe to hand to JSON
// encoders, stores and other goroutines.
type DeviceSnapshot struct {
	MAC           string          `json:"mac" yaml:"mac"`
	IP            string          `json:"ip" yaml:"ip"`
	Address       string          `json:"server" yaml:"server"`
	Name          string          `json:"name" yaml:"name"`
	Type          string          `json:"type" yaml:"type"`
	MainCommand   string          `json:"main_command,omitempty" yaml:"main_command,omitempty"`
	Manufacturer  string          `json:"manufacturer" yaml:"manufacturer"`
	Available     bool            `json:"available" yaml:"available"`
	Status        any             `json:"status,omitempty" yaml:"status,omitempty"`
	MissedUpdates int             `json:"missed_updates" yaml:"missed_updates"`
	LastSeen      *time.Time      `json:"last_seen,omitempty" yaml:"last_seen,omitempty"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
	Payload       json.RawMessage `json:"device_data,omitempty" yaml:"-"`
}

// Device is the registry record for one physical device.
// The MAC is fixed at construction; every other field is guarded by mu.
type Device struct {
	mac string

	mu            sync.RWMutex
	ip            string
	address       string
	info          DeviceInfo
	available     bool
	status        any
	missedUpdates int
	lastSeen      time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// NewDevice creates an available record from its first observation.
func NewDevice(obs Observation, address string, now time.Time) *Device {
	return &Device{
		mac:       obs.MAC,
		ip:        obs.IP,
		address:   address,
		info:      obs.Info,
		available: true,
		lastSeen:  now,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreDevice rebuilds a record from a persisted snapshot. Restored devices
// start unavailable until discovery sees them again.
func RestoreDevice(s DeviceSnapshot) *Device {
	d := &Device{
		mac:           s.MAC,
		ip:            s.IP,
		address:       s.Address,
		status:        s.Status,
		missedUpdates: s.MissedUpdates,
		createdAt:     s.CreatedAt,
		updatedAt:     s.UpdatedAt,
		info: DeviceInfo{
			Name:        s.Name,
			Type:        s.Type,
			Server:      s.Address,
			MainCommand: s.MainCommand,
			MAC:         s.MAC,
			Raw:         s.Payload,
		},
	}
	if s.LastSeen != nil {
		d.lastSeen = *s.LastSeen
	}
	if d.createdAt.IsZero() {
		d.createdAt = time.Now()
	}
	if d.updatedAt.IsZero() {
		d.updatedAt = d.createdAt
	}
	return d
}

// MAC returns the device identity.
func (d *Device) MAC() string { return d.mac }

// Apply merges a fresh observation into the record. It reports whether any
// content changed and whether the device came back from being unavailable.
func (d *Device) Apply(obs Observation, address string, now time.Time) (changed, recovered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	changed = d.ip != obs.IP || d.address != address || !d.info.Equal(obs.Info)
	recovered = !d.available

	d.ip = obs.IP
	d.address = address
	d.info = obs.Info
	d.available = true
	d.missedUpdates = 0
	d.lastSeen = now
	if changed || recovered {
		d.updatedAt = now
	}
	return changed, recovered
}

// Miss records one tick in which the device was not seen. Once the count
// reaches threshold the device is marked unavailable; its address is kept.
// wasAvailable reports the availability before this miss.
func (d *Device) Miss(threshold int, now time.Time) (wasAvailable, becameUnavailable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasAvailable = d.available
	d.missedUpdates++
	if d.available && d.missedUpdates >= threshold {
		d.available = false
		d.updatedAt = now
		return wasAvailable, true
	}
	return wasAvailable, false
}

// Target returns what the executor needs to reach the device.
func (d *Device) Target() (address, deviceType string, available bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address, d.info.Type, d.available
}

// MainCommand returns the command the device declares as its primary action.
func (d *Device) MainCommand() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.MainCommand
}

// RecordStatus stores a freshly extracted value and marks the device reachable.
func (d *Device) RecordStatus(value any, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = value
	d.available = true
	d.updatedAt = now
}

// MarkUnreachable flags the device unavailable after a failed control call.
// It reports whether the flag changed.
func (d *Device) MarkUnreachable(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.available {
		return false
	}
	d.available = false
	d.updatedAt = now
	return true
}

// Available reports the current availability flag.
func (d *Device) Available() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.available
}

// Snapshot copies the record.
func (d *Device) Snapshot() DeviceSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := DeviceSnapshot{
		MAC:           d.mac,
		IP:            d.ip,
		Address:       d.address,
		Name:          d.info.Name,
		Type:          d.info.Type,
		MainCommand:   d.info.MainCommand,
		Manufacturer:  Manufacturer,
		Available:     d.available,
		Status:        d.status,
		MissedUpdates: d.missedUpdates,
		CreatedAt:     d.createdAt,
		UpdatedAt:     d.updatedAt,
	}
	if !d.lastSeen.IsZero() {
		seen := d.lastSeen
		s.LastSeen = &seen
	}
	if len(d.info.Raw) > 0 {
		s.Payload = append(json.RawMessage(nil), d.info.Raw...)
	}
	return s
}
