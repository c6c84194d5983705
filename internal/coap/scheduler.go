package coap

// SendConfirmed enqueues pdu as a confirmable send, per spec §4.4:
// compute the jittered ACK timeout, schedule the first retransmit
// deadline, insert into the send queue ordered by that deadline, and
// transmit once. The scheduler retains ownership of pdu inside its
// QueueNode until an ACK/RST removes it or retries are exhausted; the
// wire-level write here does not discard it.
func (c *Context) SendConfirmed(dst PeerAddress, pdu *PDU) TransactionID {
	tid := ComputeTransactionID(dst, ExtractToken(pdu))

	r := c.rand.JitterByte()
	rtt := c.cfg.responseTimeoutTicks()
	timeout := rtt + (rtt/2)*Tick(r)/256

	node := &QueueNode{
		PDU:         pdu,
		ScheduledAt: c.cfg.nowTick() + timeout,
		BaseTimeout: timeout,
		TxID:        tid,
		Remote:      dst,
	}
	c.sendQueue.Insert(node)
	c.updateSendQueueMetric()

	if err := c.transmit(dst, pdu); err != nil && c.writeWarn.allow(c.cfg.Clock.Now()) {
		c.log.Warn("coap: confirmed send failed, node remains scheduled", "remote", dst.String(), "error", err)
	}
	return tid
}

// retransmit is called by Context.tickRetransmits on a send-queue node
// whose deadline has arrived. Per spec §4.4: below MAX_RETRANSMIT, bump
// the count, push the deadline out by timeout<<retransmit_count,
// reinsert, and resend; at the limit, let the node (already popped by
// the caller) fall out of scope and report exhaustion. The caller
// learns nothing beyond the invalid sentinel — the absence of a
// response callback is the only signal upstream.
func (c *Context) retransmit(node *QueueNode) TransactionID {
	if node.RetransmitCount < c.cfg.MaxRetransmit {
		node.RetransmitCount++
		node.ScheduledAt += node.BaseTimeout << uint(node.RetransmitCount)
		c.sendQueue.Insert(node)
		c.updateSendQueueMetric()
		c.cfg.Metrics.Retransmits.Inc()

		if err := c.transmit(node.Remote, node.PDU); err != nil && c.writeWarn.allow(c.cfg.Clock.Now()) {
			c.log.Warn("coap: retransmit failed, node remains scheduled", "remote", node.Remote.String(), "error", err)
		}
		return node.TxID
	}

	c.cfg.Metrics.Exhausted.Inc()
	c.log.Debug("coap: retransmission exhausted", "remote", node.Remote.String(), "tid", node.TxID)
	return InvalidTransactionID
}
