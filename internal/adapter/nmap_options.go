package adapter

import "time"

// NmapOption is a functional option for configuring NmapProber
type NmapOption func(*NmapProber)

// WithTimeout sets the timeout for a single nmap run
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapProber) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithBinaryPath runs a specific nmap binary instead of the one in PATH
func WithBinaryPath(path string) NmapOption {
	return func(n *NmapProber) {
		n.binaryPath = path
	}
}

// WithPrivileged tells nmap it may use raw sockets (--privileged).
// ARP ping needs raw sockets; without them nmap falls back to TCP/ICMP
// host discovery and reports no MAC.
func WithPrivileged(privileged bool) NmapOption {
	return func(n *NmapProber) {
		n.privileged = privileged
	}
}
