// Package codec reads descriptor tables and reads/writes device lists in
// JSON and YAML.
package codec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"iotexplorer/internal/domain"
)

// DescriptorImporter parses a descriptor table
type DescriptorImporter interface {
	ParseDescriptors(r io.Reader) (domain.DescriptorTable, error)
	Format() string
}

// DeviceImporter parses a device list
type DeviceImporter interface {
	ParseDevices(r io.Reader) ([]domain.DeviceSnapshot, error)
	Format() string
}

// DeviceExporter writes a device list
type DeviceExporter interface {
	ExportDevices(devices []domain.DeviceSnapshot, w io.Writer) error
	Format() string
}

// Codec implements every direction for one format
type Codec interface {
	DescriptorImporter
	DeviceImporter
	DeviceExporter
}

// ForFormat returns the codec for "json" or "yaml"/"yml"
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// ForPath picks a codec from the file extension
func ForPath(path string) (Codec, error) {
	return ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// LoadDescriptorFile reads and validates a descriptor table file
func LoadDescriptorFile(path string) (domain.DescriptorTable, error) {
	c, err := ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open descriptor table: %w", err)
	}
	defer f.Close()

	table, err := c.ParseDescriptors(f)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("descriptor table %s declares no device types", path)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadDeviceFile reads a device list file
func LoadDeviceFile(path string) ([]domain.DeviceSnapshot, error) {
	c, err := ForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device list: %w", err)
	}
	defer f.Close()

	return c.ParseDevices(f)
}

// rawDescriptor is the on-disk descriptor shape. "buttons" is the historical
// name of "commands"; both are accepted.
type rawDescriptor struct {
	Status   domain.Route            `json:"status" yaml:"status"`
	Commands map[string]domain.Route `json:"commands,omitempty" yaml:"commands,omitempty"`
	Buttons  map[string]domain.Route `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	Images   map[string]string       `json:"imgs,omitempty" yaml:"imgs,omitempty"`
}

func (r rawDescriptor) toDomain(deviceType string) (domain.TypeDescriptor, error) {
	d := domain.TypeDescriptor{
		Status: r.Status,
		Images: r.Images,
	}
	if len(r.Commands)+len(r.Buttons) > 0 {
		d.Commands = make(map[string]domain.Route, len(r.Commands)+len(r.Buttons))
	}
	for name, route := range r.Buttons {
		d.Commands[name] = route
	}
	for name, route := range r.Commands {
		if prev, ok := d.Commands[name]; ok && prev != route {
			return domain.TypeDescriptor{}, fmt.Errorf("device type %s: command %s declared differently in buttons and commands", deviceType, name)
		}
		d.Commands[name] = route
	}
	return d, nil
}

func buildTable(raw map[string]rawDescriptor) (domain.DescriptorTable, error) {
	table := make(domain.DescriptorTable, len(raw))
	for typ, rd := range raw {
		d, err := rd.toDomain(typ)
		if err != nil {
			return nil, err
		}
		table[typ] = d
	}
	return table, nil
}

// deviceRecord is one entry of an exported device list
type deviceRecord struct {
	MAC         string `json:"mac" yaml:"mac"`
	IP          string `json:"ip,omitempty" yaml:"ip,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Server      string `json:"server" yaml:"server"`
	MainCommand string `json:"main_command" yaml:"main_command"`
	Available   bool   `json:"available" yaml:"available"`
}

func toRecords(devices []domain.DeviceSnapshot) []deviceRecord {
	records := make([]deviceRecord, 0, len(devices))
	for _, d := range devices {
		records = append(records, deviceRecord{
			MAC:         d.MAC,
			IP:          d.IP,
			Name:        d.Name,
			Type:        d.Type,
			Server:      d.Address,
			MainCommand: d.MainCommand,
			Available:   d.Available,
		})
	}
	return records
}

// fromRecords converts parsed records, normalising MACs. Records without a
// usable MAC cannot be identified and are rejected.
func fromRecords(records []deviceRecord) ([]domain.DeviceSnapshot, error) {
	devices := make([]domain.DeviceSnapshot, 0, len(records))
	for i, r := range records {
		mac, err := domain.NormalizeMAC(r.MAC)
		if err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i, r.Name, err)
		}
		devices = append(devices, domain.DeviceSnapshot{
			MAC:         mac,
			IP:          r.IP,
			Address:     r.Server,
			Name:        r.Name,
			Type:        r.Type,
			MainCommand: r.MainCommand,
			Available:   r.Available,
		})
	}
	return devices, nil
}
