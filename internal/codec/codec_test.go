package codec

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotexplorer/internal/domain"
)

// Shape of the stock device_types.json shipped with the firmware.
const descriptorJSON = `{
  "relay": {
    "imgs": {"relay": "/static/images/relay.png"},
    "status": {"route": "/api/relay", "method": "GET", "status_in_response": "relay_on"},
    "buttons": {
      "toggle": {"route": "/api/relay/toggle", "method": "GET", "status_in_response": "relay_on"}
    }
  }
}`

const descriptorYAML = `
device_types:
  servo:
    status:
      route: /api/servo
      method: GET
      status_in_response: servo_status
    commands:
      toggle:
        route: /api/servo/on
        method: POST
        status_in_response: servo_status
`

func TestJSONParseDescriptorsAcceptsButtons(t *testing.T) {
	table, err := NewJSONCodec().ParseDescriptors(strings.NewReader(descriptorJSON))
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	relay, err := table.Lookup("relay")
	require.NoError(t, err)

	toggle, err := relay.Route("toggle")
	require.NoError(t, err)
	assert.Equal(t, "/api/relay/toggle", toggle.Route)
	assert.Equal(t, "relay_on", toggle.Field)
	assert.Equal(t, "/static/images/relay.png", relay.Images["relay"])
}

func TestYAMLParseDescriptors(t *testing.T) {
	t.Run("wrapped under device_types", func(t *testing.T) {
		table, err := NewYAMLCodec().ParseDescriptors(strings.NewReader(descriptorYAML))
		require.NoError(t, err)

		servo, err := table.Lookup("servo")
		require.NoError(t, err)
		toggle, err := servo.Route("toggle")
		require.NoError(t, err)
		assert.Equal(t, "POST", toggle.HTTPMethod())
	})

	t.Run("top level map", func(t *testing.T) {
		data := "relay:\n  status: {route: /api/relay, status_in_response: relay_on}\n"
		table, err := NewYAMLCodec().ParseDescriptors(strings.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, []string{"relay"}, table.Types())
	})
}

func TestParseDescriptorsConflictingAlias(t *testing.T) {
	data := `{"relay": {
	  "status": {"route": "/api/relay", "status_in_response": "relay_on"},
	  "buttons": {"toggle": {"route": "/a", "status_in_response": "relay_on"}},
	  "commands": {"toggle": {"route": "/b", "status_in_response": "relay_on"}}
	}}`

	_, err := NewJSONCodec().ParseDescriptors(strings.NewReader(data))
	assert.ErrorContains(t, err, "declared differently")
}

func TestLoadDescriptorFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "device_types.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(descriptorJSON), 0644))
	table, err := LoadDescriptorFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, table, "relay")

	yamlPath := filepath.Join(dir, "device_types.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(descriptorYAML), 0644))
	table, err = LoadDescriptorFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, table, "servo")

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"relay": {"status": {"route": "/api/relay"}}}`), 0644))
	_, err = LoadDescriptorFile(invalid)
	assert.ErrorContains(t, err, "status_in_response")

	_, err = LoadDescriptorFile(filepath.Join(dir, "table.toml"))
	assert.ErrorContains(t, err, "unsupported format")
}

func TestDeviceListRoundTrip(t *testing.T) {
	devices := []domain.DeviceSnapshot{
		{MAC: "aa:bb:cc:dd:ee:01", IP: "192.168.1.20", Address: "192.168.1.20:3796", Name: "Relay", Type: "relay", MainCommand: "toggle", Available: true},
		{MAC: "aa:bb:cc:dd:ee:02", IP: "192.168.1.21", Address: "192.168.1.21:3796", Name: "Servo", Type: "servo"},
	}

	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			c, err := ForFormat(format)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, c.ExportDevices(devices, &buf))

			parsed, err := c.ParseDevices(&buf)
			require.NoError(t, err)
			require.Len(t, parsed, 2)
			assert.Equal(t, devices[0].Address, parsed[0].Address)
			assert.Equal(t, devices[1].MAC, parsed[1].MAC)
			assert.Equal(t, "toggle", parsed[0].MainCommand)
		})
	}
}

func TestExportDevicesUsesStockFieldNames(t *testing.T) {
	var buf bytes.Buffer
	err := NewJSONCodec().ExportDevices([]domain.DeviceSnapshot{
		{MAC: "aa:bb:cc:dd:ee:01", Address: "10.0.0.2:3796", Name: "Lamp", Type: "esp8266_led_on_board", MainCommand: "toggle"},
	}, &buf)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	for _, key := range []string{"name", "type", "server", "main_command", "mac"} {
		assert.Contains(t, out[0], key)
	}
}

func TestParseDevicesRejectsMissingMAC(t *testing.T) {
	_, err := NewJSONCodec().ParseDevices(strings.NewReader(`[{"name": "Lamp", "type": "relay", "server": "10.0.0.2:3796"}]`))
	assert.Error(t, err)
}
