package coap

// route implements spec §4.8's request router: hash the URI path to a
// resource key, look it up, and either invoke the resource's
// per-method handler or synthesize the appropriate error/well-known
// response. Any synthesized response is sent unconfirmed (spec §4.8
// step 4); a handler invoked directly is fully responsible for its own
// reply.
func (c *Context) route(rcvd *QueueNode) {
	pdu := rcvd.PDU
	method := pdu.Code
	key := HashURIPath(ExtractURIPath(pdu))

	res, ok := c.cfg.Resources.Lookup(key)
	if !ok {
		if method == CodeGET && key == c.wellKnownResourceKey() {
			c.respondWellKnown(rcvd)
			return
		}
		if method == CodeGET {
			c.cfg.Metrics.NotFound.Inc()
			c.SendError(pdu, rcvd.Remote, CodeNotFound, &UnknownOptionsFilter{})
			return
		}
		c.cfg.Metrics.MethodNotAllowed.Inc()
		c.SendError(pdu, rcvd.Remote, CodeMethodNotAllowed, &UnknownOptionsFilter{})
		return
	}

	if method >= CodeGET && method <= CodeDELETE && res.Handler[method] != nil {
		res.Handler[method](c, res, rcvd.Remote, pdu, rcvd.TxID)
		return
	}

	if method == CodeGET && key == c.wellKnownResourceKey() {
		c.respondWellKnown(rcvd)
		return
	}
	c.cfg.Metrics.MethodNotAllowed.Inc()
	c.SendError(pdu, rcvd.Remote, CodeMethodNotAllowed, &UnknownOptionsFilter{})
}

// respondWellKnown builds and sends the .well-known/core discovery
// response (spec §4.7's wellknown_response), logging and dropping on
// build failure rather than sending a truncated or empty reply.
func (c *Context) respondWellKnown(rcvd *QueueNode) {
	resp := c.WellKnownResponse(rcvd.PDU)
	if resp == nil {
		if c.writeWarn.allow(c.cfg.Clock.Now()) {
			c.log.Warn("coap: failed to build well-known response", "remote", rcvd.Remote.String())
		}
		return
	}
	c.Send(rcvd.Remote, resp)
}
