// Package service implements device discovery and control.
//
// Registry holds every known device keyed by MAC. Coordinator runs the
// discovery loop: broadcast scan, MAC resolution and descriptor fetch per
// responder, then Registry.Reconcile. It polls on the base interval while
// the network is quiet and on the fast interval after a tick that found new
// devices or missed known ones.
//
// Executor sends descriptor-table commands to devices over HTTP and records
// the extracted status.
//
// # Event System
//
// Services publish events via EventBus. The SSE hub, the MQTT publisher and
// the InfluxDB recorder subscribe and translate them.
package service
