// Package domain defines the core types of the IoT Explorer device discovery system.
//
// This package contains the entities and value objects shared by the discovery
// adapters, the registry/coordinator services and the HTTP surface.
//
// # Core Types
//
// Device is the registry record for one physical device. Its identity is the
// link-layer (MAC) address, which never changes for the lifetime of the record;
// everything else (IP, control address, name, payload) follows the device
// around the network.
//
// DeviceInfo is the self-description a device returns from its control API.
//
// Observation pairs a resolved MAC with a fetched DeviceInfo. A discovery tick
// produces a set of observations which the registry reconciles.
//
// # Descriptor Table
//
// TypeDescriptor declares, per device type, where the status value lives and
// which HTTP routes implement each named command. Control logic is a lookup in
// the DescriptorTable, there are no per-type code paths.
//
// # Errors
//
// Error carries one of the sentinel kinds (ErrTransport, ErrProtocol,
// ErrLookup, ErrResolution, ...) so callers can branch with errors.Is.
//
// # Design Principles
//
// - No database or external dependencies
// - Records are mutated in place, never replaced, so holders of a *Device keep a valid handle
// - The descriptor table is read-only after load
package domain
