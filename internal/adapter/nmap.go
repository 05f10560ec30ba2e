package adapter

import (
	"context"
	"fmt"
	"net"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"iotexplorer/internal/domain"
)

// NmapProber finds a host's MAC with an nmap ARP ping scan (-sn). On a local
// segment nmap resolves the target with ARP and reports its hardware address.
type NmapProber struct {
	timeout    time.Duration
	binaryPath string
	privileged bool
	logger     zerolog.Logger
}

// NewNmapProber creates a prober
func NewNmapProber(logger zerolog.Logger, opts ...NmapOption) *NmapProber {
	prober := &NmapProber{
		timeout: 10 * time.Second,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(prober)
	}

	return prober
}

// Name implements Stage
func (n *NmapProber) Name() string {
	return "nmap"
}

// Available checks if the nmap binary can be run
func (n *NmapProber) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := append(n.baseOptions(), nmap.WithTargets("127.0.0.1"), nmap.WithListScan())
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return false
	}

	_, _, err = scanner.Run()
	return err == nil
}

// Lookup implements Stage
func (n *NmapProber) Lookup(ctx context.Context, ip net.IP) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	target := ip.String()
	opts := append(n.baseOptions(), nmap.WithTargets(target), nmap.WithPingScan())

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return "", fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.logger.Debug().Str("ip", target).Strs("warnings", *warnings).Msg("nmap warnings")
	}

	return macFromResult(result, target)
}

func (n *NmapProber) baseOptions() []nmap.Option {
	var opts []nmap.Option
	if n.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.binaryPath))
	}
	if n.privileged {
		opts = append(opts, nmap.WithPrivileged())
	}
	return opts
}

// macFromResult extracts the hardware address reported for ip
func macFromResult(result *nmap.Run, ip string) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil scan result")
	}

	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}

		var hostIP, mac string
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "ipv4":
				hostIP = addr.Addr
			case "mac":
				mac = addr.Addr
			}
		}
		if hostIP != ip || mac == "" {
			continue
		}

		normalized, err := domain.NormalizeMAC(mac)
		if err != nil {
			return "", err
		}
		return normalized, nil
	}

	return "", fmt.Errorf("nmap reported no MAC for %s", ip)
}
