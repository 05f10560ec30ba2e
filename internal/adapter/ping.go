package adapter

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const protocolICMP = 1

// Pinger sends a single echo request to a host
type Pinger interface {
	Ping(ctx context.Context, ip net.IP) error
}

// ICMPPinger pings with an unprivileged datagram ICMP socket, falling back to
// a raw socket when the kernel does not allow unprivileged ping.
type ICMPPinger struct {
	Timeout time.Duration
}

// NewICMPPinger creates a pinger
func NewICMPPinger(timeout time.Duration) *ICMPPinger {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ICMPPinger{Timeout: timeout}
}

// Ping sends one echo request and waits for the matching reply
func (p *ICMPPinger) Ping(ctx context.Context, ip net.IP) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("ping %s: not an IPv4 address", ip)
	}

	conn, dst, err := listenICMP(ip4)
	if err != nil {
		return fmt.Errorf("ping %s: %w", ip, err)
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: 1, Data: []byte("iotexplorer")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("ping %s: marshal: %w", ip, err)
	}

	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("ping %s: %w", ip, err)
	}

	if _, err := conn.WriteTo(wb, dst); err != nil {
		return fmt.Errorf("ping %s: send: %w", ip, err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return fmt.Errorf("ping %s: %w", ip, err)
		}
		if !sameHost(peer, ip4) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
	}
}

func listenICMP(ip net.IP) (*icmp.PacketConn, net.Addr, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, &net.UDPAddr{IP: ip}, nil
	}

	raw, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr != nil {
		return nil, nil, fmt.Errorf("open icmp socket: %w (raw: %v)", err, rawErr)
	}
	return raw, &net.IPAddr{IP: ip}, nil
}

func sameHost(addr net.Addr, ip net.IP) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}
