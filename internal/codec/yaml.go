package codec

import (
	"errors"
	"fmt"
	"io"

	"iotexplorer/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlDescriptors allows the table either at the top level or under a
// device_types key.
type yamlDescriptors struct {
	DeviceTypes map[string]rawDescriptor `yaml:"device_types"`
}

// ParseDescriptors imports a descriptor table from YAML
func (c *YAMLCodec) ParseDescriptors(r io.Reader) (domain.DescriptorTable, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.DescriptorTable{}, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var wrapped yamlDescriptors
	if err := node.Decode(&wrapped); err == nil && len(wrapped.DeviceTypes) > 0 {
		return buildTable(wrapped.DeviceTypes)
	}

	var raw map[string]rawDescriptor
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return buildTable(raw)
}

// ParseDevices imports a device list from YAML
func (c *YAMLCodec) ParseDevices(r io.Reader) ([]domain.DeviceSnapshot, error) {
	var records []deviceRecord
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return fromRecords(records)
}

// ExportDevices exports a device list to YAML
func (c *YAMLCodec) ExportDevices(devices []domain.DeviceSnapshot, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(toRecords(devices)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}
