// Package influxdb records discovery metrics: one point per tick, one per
// availability transition and one per scalar command reply.
package influxdb
