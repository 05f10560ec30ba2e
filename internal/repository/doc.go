// Package repository defines the persistence interface for discovered devices.
//
// The registry itself lives in memory; a DeviceStore only keeps the last known
// snapshot of every device so a restart can seed the registry before the
// first discovery tick. The sqlite subpackage provides the implementation.
//
// Restored devices start unavailable. Discovery flips them back once they
// answer a broadcast again.
package repository
