package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"iotexplorer/internal/domain"
	"iotexplorer/internal/service"
)

// Measurement names
const (
	MeasurementTick         = "discovery_tick"
	MeasurementAvailability = "device_availability"
	MeasurementState        = "device_state"
)

// PointsFor maps an event to points. Events without a metric meaning map to none.
func PointsFor(event service.Event) []*write.Point {
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	switch payload := event.Payload.(type) {
	case service.TickReport:
		return []*write.Point{TickPoint(payload, at)}
	case domain.DeviceSnapshot:
		if event.Type == service.EventDeviceRemoved {
			return nil
		}
		return []*write.Point{AvailabilityPoint(payload, at)}
	case map[string]interface{}:
		if event.Type != service.EventDeviceState {
			return nil
		}
		if p := StatePoint(payload, at); p != nil {
			return []*write.Point{p}
		}
	}
	return nil
}

// TickPoint summarizes one discovery cycle
func TickPoint(report service.TickReport, at time.Time) *write.Point {
	tags := map[string]string{}
	if report.Mode != "" {
		tags["mode"] = string(report.Mode)
	}
	return write.NewPoint(MeasurementTick, tags,
		map[string]interface{}{
			"responders":         report.Responders,
			"observations":       report.Observations,
			"added":              len(report.Result.Added),
			"updated":            len(report.Result.Updated),
			"recovered":          len(report.Result.Recovered),
			"missed":             report.Result.MissedCount(),
			"became_unavailable": len(report.Result.BecameUnavailable),
			"interval_seconds":   report.Interval.Seconds(),
			"duration_ms":        report.Duration.Milliseconds(),
		},
		at)
}

// AvailabilityPoint records a device's availability after a transition
func AvailabilityPoint(device domain.DeviceSnapshot, at time.Time) *write.Point {
	tags := map[string]string{"mac": device.MAC}
	if device.Type != "" {
		tags["type"] = device.Type
	}
	if device.Name != "" {
		tags["name"] = device.Name
	}
	return write.NewPoint(MeasurementAvailability, tags,
		map[string]interface{}{
			"available":      device.Available,
			"missed_updates": device.MissedUpdates,
		},
		at)
}

// StatePoint records a command reply. Non-scalar values are skipped.
func StatePoint(state map[string]interface{}, at time.Time) *write.Point {
	mac, _ := state["mac"].(string)
	command, _ := state["command"].(string)
	if mac == "" {
		return nil
	}

	field, ok := scalar(state["value"])
	if !ok {
		return nil
	}

	return write.NewPoint(MeasurementState,
		map[string]string{"mac": mac, "command": command},
		map[string]interface{}{"value": field},
		at)
}

func scalar(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case bool, string, float64, float32, int, int64:
		return val, true
	default:
		return nil, false
	}
}
