package bootstrap

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/net/icmp"
)

// Property names
const (
	PropICMP          = "can_icmp"
	PropNeighborTable = "can_read_neighbors"
	PropNmap          = "has_nmap"
	PropInterface     = "broadcast_interface"
)

// ProbeICMP checks whether an ICMP echo socket can be opened, trying the
// unprivileged datagram socket before the raw one.
func ProbeICMP() []Evidence {
	if conn, err := icmp.ListenPacket("udp4", "0.0.0.0"); err == nil {
		conn.Close()
		return []Evidence{NewEvidence(CategoryCapability, PropICMP, true, 0.95,
			"opened unprivileged ICMP socket").WithRaw(map[string]any{"mode": "unprivileged"})}
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return []Evidence{NewEvidence(CategoryCapability, PropICMP, false, 0.90,
			"failed to open ICMP socket: "+err.Error())}
	}
	conn.Close()
	return []Evidence{NewEvidence(CategoryCapability, PropICMP, true, 0.95,
		"opened raw ICMP socket").WithRaw(map[string]any{"mode": "raw"})}
}

// ProbeNeighborTable checks that either the kernel neighbor table or the
// arp command is usable.
func ProbeNeighborTable(tablePath, command string) []Evidence {
	var evidence []Evidence

	if tablePath != "" {
		if _, err := os.ReadFile(tablePath); err == nil {
			return append(evidence, NewEvidence(CategoryCapability, PropNeighborTable, true, 0.95,
				"read "+tablePath))
		}
	}

	if command != "" {
		if path, err := exec.LookPath(command); err == nil {
			return append(evidence, NewEvidence(CategoryCapability, PropNeighborTable, true, 0.85,
				command+" found in PATH").WithRaw(map[string]any{"path": path}))
		}
	}

	return append(evidence, NewEvidence(CategoryCapability, PropNeighborTable, false, 0.90,
		"neither neighbor table nor arp command available"))
}

// ProbeNmap checks that binary (default "nmap") runs
func ProbeNmap(ctx context.Context, binary string) []Evidence {
	if binary == "" {
		binary = "nmap"
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return []Evidence{NewEvidence(CategoryCapability, PropNmap, false, 0.95, binary+" not in PATH")}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return []Evidence{NewEvidence(CategoryCapability, PropNmap, false, 0.85,
			"nmap --version failed: "+err.Error()).WithRaw(map[string]any{"path": path})}
	}

	version := strings.TrimSpace(strings.Split(string(output), "\n")[0])
	return []Evidence{NewEvidence(CategoryCapability, PropNmap, true, 0.99, "nmap --version succeeded").
		WithRaw(map[string]any{"path": path, "version": version})}
}

// DetectInterfaces records every up, non-loopback IPv4 interface that
// supports broadcast.
func DetectInterfaces() []Evidence {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var evidence []Evidence
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			ones, _ := ipnet.Mask.Size()
			evidence = append(evidence, NewEvidence(CategoryNetwork, PropInterface, iface.Name, 0.95, "net.Interfaces()").
				WithRaw(map[string]any{
					"ip":     ipnet.IP.String(),
					"subnet": fmt.Sprintf("%s/%d", ipnet.IP.Mask(ipnet.Mask), ones),
					"mac":    iface.HardwareAddr.String(),
				}))
		}
	}
	return evidence
}
