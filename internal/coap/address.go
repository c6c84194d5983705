// Package coap implements the CoAP message-layer engine: transaction
// identity, retransmission scheduling, critical-option validation, and
// URI-keyed request routing on top of a single UDP socket.
package coap

import (
	"encoding/binary"
	"fmt"
	"net"
)

// AddressFamily discriminates the PeerAddress tagged union.
type AddressFamily uint8

const (
	// FamilyIPv4 addresses compare the entire sockaddr (IP + port + the
	// declared address length).
	FamilyIPv4 AddressFamily = iota
	// FamilyIPv6 addresses compare (address, port) only.
	FamilyIPv6
	// FamilyLinkLayer models the constrained-stack link-layer profile;
	// addresses compare (address, port) only. Unreachable from
	// internal/transport, which is UDP/IP-only — kept for interface
	// completeness (see DESIGN.md Open Question 3).
	FamilyLinkLayer
)

// PeerAddress is a discriminated union over the address families a CoAP
// endpoint may see a peer on. Equality and hashing semantics differ per
// family, per spec §3.
type PeerAddress struct {
	Family AddressFamily

	// IPv4 / IPv6: the peer's IP and UDP port.
	IP   net.IP
	Port int

	// IPv4 only: the length of the sockaddr actually observed on the
	// wire. Two IPv4 addresses are only Equal if this also matches.
	SockaddrLen int

	// FamilyLinkLayer only: the raw link-layer address bytes.
	LinkAddr []byte
}

// NewIPv4PeerAddress builds an IPv4 PeerAddress from a UDP address and the
// sockaddr length observed for it.
func NewIPv4PeerAddress(addr *net.UDPAddr, sockaddrLen int) PeerAddress {
	return PeerAddress{
		Family:      FamilyIPv4,
		IP:          addr.IP.To4(),
		Port:        addr.Port,
		SockaddrLen: sockaddrLen,
	}
}

// NewIPv6PeerAddress builds an IPv6 PeerAddress from a UDP address.
func NewIPv6PeerAddress(addr *net.UDPAddr) PeerAddress {
	return PeerAddress{
		Family: FamilyIPv6,
		IP:     addr.IP.To16(),
		Port:   addr.Port,
	}
}

// NewLinkLayerPeerAddress builds the constrained-profile link-layer variant.
func NewLinkLayerPeerAddress(linkAddr []byte, port int) PeerAddress {
	cp := make([]byte, len(linkAddr))
	copy(cp, linkAddr)
	return PeerAddress{Family: FamilyLinkLayer, LinkAddr: cp, Port: port}
}

// Equal implements the per-family comparison rules of spec §3.
func (a PeerAddress) Equal(b PeerAddress) bool {
	if a.Family != b.Family {
		return false
	}
	switch a.Family {
	case FamilyIPv4:
		return a.SockaddrLen == b.SockaddrLen && a.Port == b.Port && a.IP.Equal(b.IP)
	case FamilyIPv6:
		return a.Port == b.Port && a.IP.Equal(b.IP)
	case FamilyLinkLayer:
		if a.Port != b.Port || len(a.LinkAddr) != len(b.LinkAddr) {
			return false
		}
		for i := range a.LinkAddr {
			if a.LinkAddr[i] != b.LinkAddr[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a human-readable form, used only for logging.
func (a PeerAddress) String() string {
	switch a.Family {
	case FamilyIPv4:
		return fmt.Sprintf("%s:%d/4", a.IP, a.Port)
	case FamilyIPv6:
		return fmt.Sprintf("[%s]:%d/6", a.IP, a.Port)
	case FamilyLinkLayer:
		return fmt.Sprintf("ll:%x:%d", a.LinkAddr, a.Port)
	default:
		return "invalid-peer-address"
	}
}

// hashBytes returns the byte sequence the transaction-ID hasher (§4.1
// step 2) folds into its accumulator: for IPv4 the full sockaddr up to
// its declared length; for IPv6 and the link-layer profile, port then
// address, in that order.
func (a PeerAddress) hashBytes() []byte {
	switch a.Family {
	case FamilyIPv4:
		b := make([]byte, 0, 8)
		b = append(b, a.IP.To4()...)
		var p [2]byte
		binary.BigEndian.PutUint16(p[:], uint16(a.Port))
		b = append(b, p[:]...)
		if a.SockaddrLen > 0 && a.SockaddrLen < len(b) {
			b = b[:a.SockaddrLen]
		}
		return b
	case FamilyIPv6:
		b := make([]byte, 0, 18)
		var p [2]byte
		binary.BigEndian.PutUint16(p[:], uint16(a.Port))
		b = append(b, p[:]...)
		b = append(b, a.IP.To16()...)
		return b
	case FamilyLinkLayer:
		b := make([]byte, 0, len(a.LinkAddr)+2)
		var p [2]byte
		binary.BigEndian.PutUint16(p[:], uint16(a.Port))
		b = append(b, p[:]...)
		b = append(b, a.LinkAddr...)
		return b
	default:
		return nil
	}
}
