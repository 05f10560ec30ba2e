package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"iotexplorer/internal/domain"
)

// Discovery handshake literals. Replies must match ResponsePayload exactly.
const (
	ProbePayload    = "IOTEXPLR_Q_V1"
	ResponsePayload = "IOTEXPLR_A_V1"

	DefaultDiscoveryPort = 3795
	DefaultScanTimeout   = 2500 * time.Millisecond

	maxDatagram = 1024
)

var responsePayload = []byte(ResponsePayload)

// ErrScanInProgress is returned when a scan is requested while another runs
var ErrScanInProgress = errors.New("scan already in progress")

// IsResponse reports whether a datagram is a valid discovery reply
func IsResponse(payload []byte) bool {
	return len(payload) == len(responsePayload) && bytes.Equal(payload, responsePayload)
}

// ScannerConfig holds configuration for the broadcast scanner
type ScannerConfig struct {
	// Port devices listen on for the probe
	Port int
	// Timeout is the listen window used when Scan is called with zero
	Timeout time.Duration
	// Interfaces restricts probing to these interface names (empty = all usable)
	Interfaces []string
	// Targets replaces interface enumeration with explicit destination addresses
	Targets []string
}

// DefaultScannerConfig returns the stock firmware settings
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Port:    DefaultDiscoveryPort,
		Timeout: DefaultScanTimeout,
	}
}

// BroadcastScanner discovers devices with the UDP broadcast handshake
type BroadcastScanner struct {
	config    ScannerConfig
	logger    zerolog.Logger
	publisher EventPublisher
	mu        sync.Mutex
	scanning  bool

	// interfaces is swapped in tests
	interfaces func() ([]net.Interface, error)
}

// NewBroadcastScanner creates a scanner
func NewBroadcastScanner(config ScannerConfig, logger zerolog.Logger) *BroadcastScanner {
	if config.Port == 0 {
		config.Port = DefaultDiscoveryPort
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultScanTimeout
	}
	return &BroadcastScanner{
		config:     config,
		logger:     logger,
		interfaces: net.Interfaces,
	}
}

// SetEventPublisher sets the event publisher for progress updates
func (s *BroadcastScanner) SetEventPublisher(pub EventPublisher) {
	s.publisher = pub
}

func (s *BroadcastScanner) publishProgress(eventType string, payload interface{}) {
	if s.publisher != nil {
		s.publisher.PublishDiscoveryEvent(eventType, payload)
	}
}

// Scan sends the probe and collects distinct responder IPs until timeout.
// Opening the socket is the only fatal failure.
func (s *BroadcastScanner) Scan(ctx context.Context, timeout time.Duration) ([]net.IP, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if timeout <= 0 {
		timeout = s.config.Timeout
	}

	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, domain.NewError(domain.ErrTransport, "open discovery socket", "", err)
	}
	defer pc.Close()

	targets := s.broadcastAddresses()
	s.logger.Debug().Strs("targets", targets).Int("port", s.config.Port).Msg("Sending discovery probe")
	s.publishProgress("scan_started", map[string]interface{}{
		"targets": targets,
		"timeout": timeout.String(),
	})

	sent := 0
	for _, target := range targets {
		ip := net.ParseIP(target).To4()
		if ip == nil {
			s.logger.Warn().Str("target", target).Msg("Skipping invalid broadcast address")
			continue
		}
		addr := &net.UDPAddr{IP: ip, Port: s.config.Port}
		if _, err := pc.WriteTo([]byte(ProbePayload), addr); err != nil {
			s.logger.Warn().Err(err).Str("target", target).Msg("Failed to send discovery probe")
			continue
		}
		sent++
	}
	if sent == 0 {
		s.logger.Warn().Msg("Discovery probe could not be sent to any address")
	}

	responders := s.collect(ctx, pc, time.Now().Add(timeout))

	s.logger.Debug().Int("responders", len(responders)).Msg("Discovery window closed")
	s.publishProgress("scan_completed", map[string]interface{}{
		"responders": len(responders),
	})

	return responders, nil
}

// collect reads replies until the deadline or ctx is done
func (s *BroadcastScanner) collect(ctx context.Context, pc net.PacketConn, deadline time.Time) []net.IP {
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to set read deadline")
		return nil
	}

	// Unblock the read early on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = pc.SetReadDeadline(time.Now())
	})
	defer stop()

	seen := make(map[string]net.IP)
	buf := make([]byte, maxDatagram)

	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				s.logger.Warn().Err(err).Msg("Error receiving discovery reply")
			}
			break
		}

		if !IsResponse(buf[:n]) {
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		ip := udpAddr.IP.To4()
		if ip == nil {
			continue
		}
		if _, dup := seen[ip.String()]; !dup {
			seen[ip.String()] = append(net.IP(nil), ip...)
		}
	}

	responders := make([]net.IP, 0, len(seen))
	for _, ip := range seen {
		responders = append(responders, ip)
	}
	sort.Slice(responders, func(i, j int) bool {
		return bytes.Compare(responders[i], responders[j]) < 0
	})
	return responders
}

// broadcastAddresses lists probe destinations: explicit targets, else the
// broadcast address of every usable interface, else the /24 broadcast of the
// primary outbound address.
func (s *BroadcastScanner) broadcastAddresses() []string {
	if len(s.config.Targets) > 0 {
		return s.config.Targets
	}

	var targets []string
	seen := make(map[string]bool)

	ifaces, err := s.interfaces()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list interfaces")
	}

	for _, iface := range ifaces {
		if !s.usableInterface(iface) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if bcast := broadcastOf(ipnet); bcast != "" && !seen[bcast] {
				seen[bcast] = true
				targets = append(targets, bcast)
			}
		}
	}

	if len(targets) == 0 {
		if fallback := primaryBroadcast(); fallback != "" {
			targets = append(targets, fallback)
		}
	}

	return targets
}

func (s *BroadcastScanner) usableInterface(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
		return false
	}

	if len(s.config.Interfaces) > 0 {
		for _, name := range s.config.Interfaces {
			if name == iface.Name {
				return true
			}
		}
		return false
	}

	// Container plumbing never hosts devices
	for _, prefix := range []string{"veth", "docker", "br-", "cni", "flannel"} {
		if strings.HasPrefix(iface.Name, prefix) {
			return false
		}
	}
	return true
}

// broadcastOf returns the directed broadcast address of an IPv4 network
func broadcastOf(ipnet *net.IPNet) string {
	ip := ipnet.IP.To4()
	if ip == nil || ip.IsLoopback() {
		return ""
	}
	mask := ipnet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return ""
	}
	if ones, _ := net.IPMask(mask).Size(); ones >= 31 {
		return ""
	}

	bcast := make(net.IP, net.IPv4len)
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast.String()
}

// primaryBroadcast assumes a /24 around the address used for outbound traffic
func primaryBroadcast() string {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	ip := localAddr.IP.To4()
	if ip == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.255", ip[0], ip[1], ip[2])
}

