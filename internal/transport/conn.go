// Package transport provides the UDP socket wrapper that
// internal/coap.Socket is implemented against: a SO_REUSEADDR-bound
// udp4 listener with IPv4 control messages enabled. The sockaddr length
// reported for a peer is derived from its address family, not from
// those control messages.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// ipv4SockaddrLen is the size, in bytes, of the IPv4 sockaddr the
// engine hashes a peer's address up to (spec.md §4.1 step 2): 4 bytes
// of address plus 2 of port, matching what a constrained-profile stack
// would see in a sockaddr_in's address+port fields.
const ipv4SockaddrLen = 6

// Conn wraps a UDP socket and satisfies internal/coap.Socket. Reads go
// through an ipv4.PacketConn so a future caller can recover destination
// IP / interface index from control messages the way liveness.UDPConn
// does, even though the narrow Socket contract doesn't expose them today.
type Conn struct {
	raw *net.UDPConn
	pc4 *ipv4.PacketConn
}

// Listen binds addr ("host:port") with SO_REUSEADDR set before bind,
// per spec.md §6's new_context.
func Listen(addr string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}

	lc := net.ListenConfig{Control: setReuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp4", laddr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	raw, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("transport: unexpected packet conn type %T", pc)
	}
	return NewConn(raw)
}

// NewConn wraps an already-bound *net.UDPConn, enabling the IPv4
// control messages liveness.NewUDPConn enables (interface, dst, src).
func NewConn(raw *net.UDPConn) (*Conn, error) {
	pc4 := ipv4.NewPacketConn(raw)
	if err := pc4.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst|ipv4.FlagSrc, true); err != nil {
		return nil, fmt.Errorf("transport: enable control messages: %w", err)
	}
	return &Conn{raw: raw, pc4: pc4}, nil
}

// ReadFrom implements coap.Socket. sockaddrLen is always ipv4SockaddrLen
// for IPv4 peers (this transport is udp4-only) and 0 otherwise.
func (c *Conn) ReadFrom(buf []byte) (n int, remote *net.UDPAddr, sockaddrLen int, err error) {
	n, _, raddr, err := c.pc4.ReadFrom(buf)
	if err != nil {
		return 0, nil, 0, err
	}
	ua, ok := raddr.(*net.UDPAddr)
	if !ok {
		return 0, nil, 0, fmt.Errorf("transport: unexpected remote addr type %T", raddr)
	}
	if ua.IP.To4() != nil {
		sockaddrLen = ipv4SockaddrLen
	}
	return n, ua, sockaddrLen, nil
}

// WriteTo implements coap.Socket.
func (c *Conn) WriteTo(pkt []byte, dst *net.UDPAddr) (int, error) {
	return c.pc4.WriteTo(pkt, nil, dst)
}

// SetReadDeadline implements coap.Socket.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.raw.SetReadDeadline(t) }

// LocalAddr implements coap.Socket.
func (c *Conn) LocalAddr() net.Addr { return c.raw.LocalAddr() }

// Close implements coap.Socket.
func (c *Conn) Close() error { return c.raw.Close() }
