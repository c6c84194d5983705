package coap

import (
	"fmt"
	"net"
)

// Send performs a single unconfirmed write, per spec §4.9: the PDU is
// not retained anywhere after the write (Go expresses "freed
// unconditionally" by simply not keeping a reference). A successful
// write returns the TransactionID computed from dst and the PDU's
// token; a failed write is logged (throttled) and returns
// InvalidTransactionID.
func (c *Context) Send(dst PeerAddress, pdu *PDU) TransactionID {
	tid := ComputeTransactionID(dst, ExtractToken(pdu))
	if err := c.transmit(dst, pdu); err != nil {
		if c.writeWarn.allow(c.cfg.Clock.Now()) {
			c.log.Warn("coap: send failed", "remote", dst.String(), "error", err)
		}
		return InvalidTransactionID
	}
	return tid
}

// SendError builds an error response via NewErrorResponse and sends it
// unconfirmed, per spec §4.9/§4.7. If the response cannot be built (an
// allocation/encoding failure), the failure is logged and
// InvalidTransactionID returned without attempting a write.
func (c *Context) SendError(request *PDU, dst PeerAddress, code uint8, filter *UnknownOptionsFilter) TransactionID {
	resp := c.NewErrorResponse(request, code, filter)
	if resp == nil {
		if c.writeWarn.allow(c.cfg.Clock.Now()) {
			c.log.Warn("coap: failed to build error response", "code", code, "remote", dst.String())
		}
		return InvalidTransactionID
	}
	return c.Send(dst, resp)
}

// transmit writes pdu's wire bytes to dst over the socket.
func (c *Context) transmit(dst PeerAddress, pdu *PDU) error {
	addr, err := peerToUDPAddr(dst)
	if err != nil {
		return err
	}
	_, err = c.socket.WriteTo(pdu.Bytes(), addr)
	return err
}

// peerToUDPAddr projects a PeerAddress onto the net.UDPAddr the Socket
// contract speaks. The link-layer family has no UDP representation and
// is unreachable via internal/transport (see DESIGN.md Open Question 3).
func peerToUDPAddr(p PeerAddress) (*net.UDPAddr, error) {
	switch p.Family {
	case FamilyIPv4, FamilyIPv6:
		return &net.UDPAddr{IP: p.IP, Port: p.Port}, nil
	default:
		return nil, fmt.Errorf("coap: cannot transmit to %s over UDP", p.String())
	}
}
