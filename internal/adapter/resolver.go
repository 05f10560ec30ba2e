package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"iotexplorer/internal/domain"
)

// ResolverConfig controls the default resolution chain
type ResolverConfig struct {
	TablePath   string
	ARPCommand  string
	Ping        bool
	PingTimeout time.Duration
	// Nmap is consulted after ping when non-nil
	Nmap *NmapProber
}

// DefaultResolverConfig returns Linux defaults
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		TablePath:   "/proc/net/arp",
		ARPCommand:  "arp",
		Ping:        true,
		PingTimeout: time.Second,
	}
}

// LinkResolver runs resolution stages in order and returns the first answer
type LinkResolver struct {
	stages []Stage
	logger zerolog.Logger
}

// NewLinkResolver creates a resolver over explicit stages
func NewLinkResolver(logger zerolog.Logger, stages ...Stage) *LinkResolver {
	return &LinkResolver{stages: stages, logger: logger}
}

// NewDefaultResolver builds the neighbor cache, provoke, local interface chain
func NewDefaultResolver(config ResolverConfig, logger zerolog.Logger) *LinkResolver {
	cache := NewNeighborCache(config.TablePath, config.ARPCommand)

	provoke := &ProvokeStage{Cache: cache}
	if config.Ping {
		provoke.Pinger = NewICMPPinger(config.PingTimeout)
	}
	if config.Nmap != nil {
		provoke.Fallback = config.Nmap
	}

	return NewLinkResolver(logger, cache, provoke, NewLocalInterfaceStage())
}

// Resolve implements Resolver
func (r *LinkResolver) Resolve(ctx context.Context, ip net.IP) (string, error) {
	var errs []error

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return "", domain.NewError(domain.ErrResolution, "resolve", ip.String(), err)
		}

		mac, err := safeLookup(ctx, stage, ip)
		if err == nil {
			r.logger.Debug().Str("ip", ip.String()).Str("mac", mac).Str("stage", stage.Name()).Msg("Resolved MAC")
			return mac, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", stage.Name(), err))
	}

	return "", domain.NewError(domain.ErrResolution, "resolve", ip.String(), errors.Join(errs...))
}

// safeLookup turns a panicking stage into an ordinary failure
func safeLookup(ctx context.Context, stage Stage, ip net.IP) (mac string, err error) {
	defer func() {
		if r := recover(); r != nil {
			mac, err = "", fmt.Errorf("stage panicked: %v", r)
		}
	}()

	mac, err = stage.Lookup(ctx, ip)
	if err != nil {
		return "", err
	}
	return domain.NormalizeMAC(mac)
}

// ProvokeStage makes the host talk so the kernel learns its MAC, then
// re-reads the neighbor cache. Fallback runs when that still fails.
type ProvokeStage struct {
	Cache    Stage
	Pinger   Pinger
	Fallback Stage
}

// Name implements Stage
func (p *ProvokeStage) Name() string {
	return "provoke"
}

// Lookup implements Stage
func (p *ProvokeStage) Lookup(ctx context.Context, ip net.IP) (string, error) {
	var errs []error

	if p.Pinger != nil {
		// The reply itself does not matter, only the ARP exchange it causes.
		if err := p.Pinger.Ping(ctx, ip); err != nil {
			errs = append(errs, err)
		}
		mac, err := p.Cache.Lookup(ctx, ip)
		if err == nil {
			return mac, nil
		}
		errs = append(errs, err)
	}

	if p.Fallback != nil {
		mac, err := p.Fallback.Lookup(ctx, ip)
		if err == nil {
			return mac, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Fallback.Name(), err))
	}

	if len(errs) == 0 {
		return "", errors.New("no provoke method enabled")
	}
	return "", errors.Join(errs...)
}

// LocalInterfaceStage answers for addresses assigned to this host with the
// owning interface's hardware address.
type LocalInterfaceStage struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// NewLocalInterfaceStage creates the stage over the host's interfaces
func NewLocalInterfaceStage() *LocalInterfaceStage {
	return &LocalInterfaceStage{
		interfaces: net.Interfaces,
		addrs:      func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() },
	}
}

// Name implements Stage
func (l *LocalInterfaceStage) Name() string {
	return "local_interface"
}

// Lookup implements Stage
func (l *LocalInterfaceStage) Lookup(_ context.Context, ip net.IP) (string, error) {
	ifaces, err := l.interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range ifaces {
		if len(iface.HardwareAddr) != 6 {
			continue
		}
		addrs, err := l.addrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var owned net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				owned = a.IP
			case *net.IPAddr:
				owned = a.IP
			}
			if owned != nil && owned.Equal(ip) {
				return domain.NormalizeMAC(iface.HardwareAddr.String())
			}
		}
	}

	return "", fmt.Errorf("%s is not a local address", ip)
}
