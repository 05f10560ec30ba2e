// Package adapter implements the network-facing side of IoT Explorer.
//
// Adapters talk to the LAN and to devices. They hold no registry state; the
// coordinator in package service drives them once per tick.
//
// # Broadcast Scanner
//
// BroadcastScanner sends the discovery probe to every IPv4 broadcast address of
// every usable interface and collects the source addresses of exact replies.
//
// # Link-Layer Resolver
//
// LinkResolver turns a responder IP into a MAC by running an ordered chain of
// stages and stopping at the first answer:
//
//  1. NeighborCache reads the kernel neighbor table (or `arp -n` output)
//  2. ProvokeStage pings the host to populate the table, re-reads it, and can
//     fall back to an nmap ARP ping scan
//  3. LocalInterfaceStage answers for addresses owned by this host
//
// A stage that panics or errors counts as "no answer".
//
// # Descriptor Fetcher
//
// DescriptorFetcher performs GET /api/device against the device control port
// and validates the handshake status.
package adapter
