package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"iotexplorer/internal/domain"
)

var errNoNeighborEntry = errors.New("no neighbor entry")

// NeighborCache reads the kernel neighbor (ARP) table. When the proc table is
// not readable it falls back to the output of `arp -n <ip>`.
type NeighborCache struct {
	// TablePath is the proc neighbor table, usually /proc/net/arp
	TablePath string
	// Command is the arp binary used as fallback ("" disables it)
	Command string
	// CommandTimeout bounds the fallback command
	CommandTimeout time.Duration

	readFile func(string) ([]byte, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewNeighborCache creates the stage with the given table path and arp command
func NewNeighborCache(tablePath, command string) *NeighborCache {
	return &NeighborCache{
		TablePath:      tablePath,
		Command:        command,
		CommandTimeout: 2 * time.Second,
		readFile:       os.ReadFile,
		run:            runCommand,
	}
}

// Name implements Stage
func (n *NeighborCache) Name() string {
	return "neighbor_cache"
}

// Lookup implements Stage
func (n *NeighborCache) Lookup(ctx context.Context, ip net.IP) (string, error) {
	target := ip.String()

	if n.TablePath != "" {
		data, err := n.readFile(n.TablePath)
		if err == nil {
			if mac, ok := parseProcARP(data, target); ok {
				return mac, nil
			}
			return "", fmt.Errorf("%s: %w", target, errNoNeighborEntry)
		}
	}

	if n.Command == "" {
		return "", fmt.Errorf("%s: %w", target, errNoNeighborEntry)
	}

	ctx, cancel := context.WithTimeout(ctx, n.CommandTimeout)
	defer cancel()

	out, err := n.run(ctx, n.Command, "-n", target)
	if err != nil && len(out) == 0 {
		return "", fmt.Errorf("%s -n %s: %w", n.Command, target, err)
	}
	if mac, ok := parseArpOutput(out, target); ok {
		return mac, nil
	}
	return "", fmt.Errorf("%s: %w", target, errNoNeighborEntry)
}

// parseProcARP finds ip in /proc/net/arp content:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.20     0x1         0x2         aa:bb:cc:dd:ee:01     *        wlan0
func parseProcARP(data []byte, ip string) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != ip {
			continue
		}
		// Flags 0x0 marks an incomplete entry
		if fields[2] == "0x0" {
			continue
		}
		if mac, err := domain.NormalizeMAC(fields[3]); err == nil {
			return mac, true
		}
	}
	return "", false
}

// parseArpOutput finds ip in `arp -n` output. Linux net-tools, BSD/macOS and
// Windows layouts are all accepted: the first MAC-shaped field on a line that
// mentions the ip wins.
func parseArpOutput(out []byte, ip string) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if !mentionsIP(fields, ip) {
			continue
		}
		for _, f := range fields {
			if mac, err := domain.NormalizeMAC(f); err == nil {
				return mac, true
			}
		}
	}
	return "", false
}

func mentionsIP(fields []string, ip string) bool {
	for _, f := range fields {
		if f == ip || f == "("+ip+")" {
			return true
		}
	}
	return false
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
