package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the config leaves the prefix empty
const DefaultTopicPrefix = "iotexplorer"

// Topics builds topic names under a prefix:
//
//	iotexplorer/status                          bridge online/offline (retained, LWT)
//	iotexplorer/devices/aabbccddee01/state      device snapshot (retained)
//	iotexplorer/devices/aabbccddee01/available  "online" or "offline" (retained)
//	iotexplorer/events/device_added             event stream
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Status is the bridge status topic
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// DeviceState is the retained snapshot topic of one device
func (t Topics) DeviceState(mac string) string {
	return fmt.Sprintf("%s/devices/%s/state", t.prefix(), topicID(mac))
}

// DeviceAvailability is the retained availability topic of one device
func (t Topics) DeviceAvailability(mac string) string {
	return fmt.Sprintf("%s/devices/%s/available", t.prefix(), topicID(mac))
}

// Event is the topic for one event type
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/events/%s", t.prefix(), eventType)
}

// topicID strips separators so MACs make single, readable topic levels
func topicID(mac string) string {
	return strings.ToLower(strings.NewReplacer(":", "", "-", "").Replace(mac))
}
