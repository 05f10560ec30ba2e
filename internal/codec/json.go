package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"iotexplorer/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ParseDescriptors imports a descriptor table from JSON
func (c *JSONCodec) ParseDescriptors(r io.Reader) (domain.DescriptorTable, error) {
	var raw map[string]rawDescriptor
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return buildTable(raw)
}

// ParseDevices imports a device list from JSON
func (c *JSONCodec) ParseDevices(r io.Reader) ([]domain.DeviceSnapshot, error) {
	var records []deviceRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return fromRecords(records)
}

// ExportDevices exports a device list to JSON
func (c *JSONCodec) ExportDevices(devices []domain.DeviceSnapshot, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")

	if err := encoder.Encode(toRecords(devices)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
