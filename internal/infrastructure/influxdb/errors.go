package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when InfluxDB is turned off in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned when the server does not answer a ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned when writing through a closed recorder.
	ErrNotConnected = errors.New("influxdb: not connected")
)
