package coap

import (
	"net"
	"time"
)

// Socket is the narrow contract the core requires from the raw UDP
// socket wrapper spec §1 treats as an external collaborator.
// internal/transport.Socket implements this against a real
// golang.org/x/net/ipv4 packet connection.
type Socket interface {
	ReadFrom(buf []byte) (n int, remote *net.UDPAddr, sockaddrLen int, err error)
	WriteTo(pkt []byte, dst *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// ResourceRegistry is the narrow contract the request router requires
// from the resource registry spec §1 treats as an external collaborator.
// internal/resource.Registry implements this.
type ResourceRegistry interface {
	Lookup(key ResourceKey) (*Resource, bool)
}

// LinkFormatRenderer renders the resource registry as CoRE link-format
// into buf, returning the number of bytes written and whether it fit
// (spec §4.7 wellknown_response: "a byte buffer and a length in/out
// parameter and returns success/failure").
type LinkFormatRenderer interface {
	RenderLinkFormat(buf []byte) (n int, ok bool)
}

// ResourceKey is a 4-byte hash of the request URI path option sequence,
// compared byte-wise (spec §3).
type ResourceKey [4]byte

// MethodHandler is a per-resource, per-method handler. It is fully
// responsible for any reply (spec §4.8 step 3): h(ctx, resource, remote,
// pdu, tid).
type MethodHandler func(ctx *Context, res *Resource, remote PeerAddress, pdu *PDU, tid TransactionID)

// Resource owns a handler table indexed by method code (GET=1, POST=2,
// PUT=3, DELETE=4); slots may be absent (spec §3). It is a fixed-size
// array of optional function values, not an interface hierarchy, per
// spec §9 "Polymorphism".
type Resource struct {
	Key     ResourceKey
	Path    string
	Handler [5]MethodHandler // index 0 unused; methods are 1-4
}
