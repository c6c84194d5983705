package coap

import "net"

// Read drains one UDP datagram and enqueues it, per spec §4.5. A short
// frame or unsupported version is a silent drop (logged at debug, spec
// §7's "Protocol violation" / "Short frame" kinds) rather than an
// error: only a genuine socket read failure is returned to the caller,
// since Serve's select/poll loop needs to distinguish "nothing to do"
// from "the descriptor broke".
func (c *Context) Read() error {
	buf := make([]byte, c.cfg.MaxPDUSize)
	n, remoteAddr, sockaddrLen, err := c.socket.ReadFrom(buf)
	if err != nil {
		return err
	}

	pdu, err := ParsePDU(buf[:n])
	if err != nil {
		c.log.Debug("coap: dropping malformed datagram", "error", err, "remote", remoteAddr.String())
		return nil
	}

	remote := peerAddressFromUDP(remoteAddr, sockaddrLen)
	node := &QueueNode{
		PDU:         pdu,
		ScheduledAt: c.cfg.nowTick(),
		TxID:        ComputeTransactionID(remote, ExtractToken(pdu)),
		Remote:      remote,
	}
	c.recvQueue.Insert(node)
	c.updateRecvQueueMetric()
	return nil
}

// peerAddressFromUDP classifies a source address as v4 or v6, per spec
// §3's tagged-union PeerAddress; internal/transport is UDP/IP-only, so
// the link-layer family is never produced here.
func peerAddressFromUDP(addr *net.UDPAddr, sockaddrLen int) PeerAddress {
	if addr.IP.To4() != nil {
		return NewIPv4PeerAddress(addr, sockaddrLen)
	}
	return NewIPv6PeerAddress(addr)
}
