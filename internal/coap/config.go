package coap

import (
	"errors"
	"log/slog"
	"time"
)

// Defaults per spec §6.
const (
	DefaultMaxRetransmit   = 4
	DefaultResponseTimeout = 2 * time.Second
	DefaultTicksPerSecond  = 1000
	DefaultMaxPDUSize      = 1152
	DefaultWellKnownURI    = ".well-known/core"
)

// ResponseHandler is invoked on received responses, per spec §6:
// response_handler(ctx, remote, sent_pdu?, recv_pdu, tid).
type ResponseHandler func(ctx *Context, remote PeerAddress, sent *PDU, received *PDU, tid TransactionID)

// EndpointConfig carries the tunables and collaborators spec §4.4/§6
// describe as "constants, overridable" plus the external collaborators
// spec §1 treats as narrow contracts (Socket, ResourceRegistry,
// LinkFormatRenderer, Logger, Clock). Validate fills defaults and
// rejects invalid combinations, in the style of
// liveness.ManagerConfig.Validate().
type EndpointConfig struct {
	Logger *slog.Logger
	Clock  Clock
	Socket Socket

	Resources    ResourceRegistry
	LinkFormat   LinkFormatRenderer
	OnResponse   ResponseHandler

	MaxRetransmit   int
	ResponseTimeout time.Duration
	TicksPerSecond  int64
	MaxPDUSize      int
	WellKnownURI    string

	Metrics *Metrics
}

// Validate fills zero-valued fields with defaults and returns an error
// for invalid combinations or missing required collaborators.
func (c *EndpointConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("coap: logger is required")
	}
	if c.Socket == nil {
		return errors.New("coap: socket is required")
	}
	if c.Resources == nil {
		return errors.New("coap: resource registry is required")
	}
	if c.Clock == nil {
		c.Clock = NewClock()
	}
	if c.MaxRetransmit <= 0 {
		c.MaxRetransmit = DefaultMaxRetransmit
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.TicksPerSecond <= 0 {
		c.TicksPerSecond = DefaultTicksPerSecond
	}
	if c.MaxPDUSize <= 0 {
		c.MaxPDUSize = DefaultMaxPDUSize
	}
	if c.WellKnownURI == "" {
		c.WellKnownURI = DefaultWellKnownURI
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
	return nil
}

// tickDuration returns the wall-clock duration of a single tick.
func (c *EndpointConfig) tickDuration() time.Duration {
	return time.Second / time.Duration(c.TicksPerSecond)
}

// ticksFor converts a wall-clock duration to a tick count, rounding down.
func (c *EndpointConfig) ticksFor(d time.Duration) Tick {
	return Tick(d / c.tickDuration())
}

// nowTick returns the current tick, derived from c.Clock.
func (c *EndpointConfig) nowTick() Tick {
	return Tick(c.Clock.Now().UnixNano() / c.tickDuration().Nanoseconds())
}

// responseTimeoutTicks is RESPONSE_TIMEOUT_TICKS from spec §4.4.
func (c *EndpointConfig) responseTimeoutTicks() Tick {
	return c.ticksFor(c.ResponseTimeout)
}
