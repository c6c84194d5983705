package coap

// Dispatch drains the entire receive queue, per spec §4.6, routing or
// delivering each node in arrival order before returning. It is the
// counterpart Serve calls immediately after a successful Read; hosts
// integrating the engine into their own loop call it the same way.
func (c *Context) Dispatch() {
	for {
		rcvd := c.recvQueue.PopFront()
		if rcvd == nil {
			return
		}
		c.updateRecvQueueMetric()
		c.dispatchOne(rcvd)
	}
}

// dispatchOne implements spec §4.6's per-node procedure: reject on bad
// version, branch on message type (ACK/RST pull the matching send-queue
// node; NON/CON run critical-option validation), then deliver by code
// class (request → router, response → user callback, anything else →
// dropped with a log line). Cleanup is implicit: once dispatchOne
// returns, nothing retains rcvd or the popped send-queue node, so the
// garbage collector reclaims both — the Go analogue of spec §4.6 step
// 4's explicit free.
func (c *Context) dispatchOne(rcvd *QueueNode) {
	pdu := rcvd.PDU
	if pdu.Version != Version {
		c.log.Debug("coap: dropping wrong-version pdu", "remote", rcvd.Remote.String())
		return
	}

	var sent *QueueNode
	switch pdu.Type {
	case TypeACK:
		sent = c.sendQueue.RemoveByID(rcvd.TxID)
		c.updateSendQueueMetric()
		if pdu.Code == CodeEmpty {
			// Empty ACK: a separate-response placeholder, not itself a
			// reply. No handler call, per spec §4.6.
			return
		}

	case TypeRST:
		c.log.Debug("coap: RST received", "remote", rcvd.Remote.String(), "messageID", pdu.MessageID)
		c.sendQueue.RemoveByID(rcvd.TxID)
		c.updateSendQueueMetric()
		// No response callback fires for a RST (spec §4.6, scenario F).
		return

	case TypeNON:
		var unknown UnknownOptionsFilter
		if !CheckCritical(c.known, pdu, &unknown) {
			// No RST is sent for NON, per RFC (spec §4.6/§7).
			c.cfg.Metrics.Dropped.WithLabelValues("bad-option-non").Inc()
			return
		}

	case TypeCON:
		var unknown UnknownOptionsFilter
		if !CheckCritical(c.known, pdu, &unknown) {
			c.cfg.Metrics.BadOption.Inc()
			c.SendError(pdu, rcvd.Remote, CodeBadOption, &unknown)
			return
		}
	}

	switch {
	case pdu.IsRequest():
		c.cfg.Metrics.Dispatched.WithLabelValues("request").Inc()
		c.route(rcvd)

	case pdu.IsResponse():
		c.cfg.Metrics.Dispatched.WithLabelValues("response").Inc()
		if c.cfg.OnResponse == nil {
			return
		}
		var sentPDU *PDU
		if sent != nil {
			sentPDU = sent.PDU
		}
		c.cfg.OnResponse(c, rcvd.Remote, sentPDU, pdu, rcvd.TxID)

	default:
		c.log.Debug("coap: invalid code, dropping", "code", pdu.Code)
	}
}
