package coap

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Context is the EndpointContext of spec §3/§6: it exclusively owns the
// socket, send queue, receive queue, resource registry reference,
// known-options bitmap, and response callback. It is the single-threaded
// cooperative engine of spec §5 — Read and Dispatch are plain methods
// that start no internal goroutines (each Queue guards itself with its
// own mutex, but the engine expects a single caller); Serve is the
// optional host-loop helper spec §5/§9 describes.
type Context struct {
	cfg *EndpointConfig
	log *slog.Logger

	socket Socket

	sendQueue *Queue
	recvQueue *Queue

	known *KnownOptionsBitmap
	rand  *RandSource

	wellKnownOnce sync.Once
	wellKnownKey  ResourceKey

	writeWarn *throttledWarner
	readWarn  *throttledWarner
}

// NewContext adopts the already-open UDP socket in cfg.Socket, registers
// the critical options listed in spec §4.3, and seeds the PRNG from the
// listen address bits XOR a clock offset, per spec §6's new_context.
func NewContext(cfg *EndpointConfig) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("coap: invalid config: %w", err)
	}

	c := &Context{
		cfg:       cfg,
		log:       cfg.Logger,
		socket:    cfg.Socket,
		sendQueue: NewQueue(),
		recvQueue: NewQueue(),
		known:     NewKnownOptionsBitmap(),
		writeWarn: newThrottledWarner(5 * time.Second),
		readWarn:  newThrottledWarner(5 * time.Second),
	}

	c.rand = NewRandSource(listenAddrBits(cfg.Socket.LocalAddr()), cfg.Clock.Now().UnixNano())

	c.log.Info("coap: endpoint context starting", "localAddr", cfg.Socket.LocalAddr().String())
	return c, nil
}

// listenAddrBits packs a listen address's IP and port into a uint64 for
// PRNG seeding (spec §6: "seeds the PRNG from (listen_addr bits) XOR
// clock_offset").
func listenAddrBits(addr net.Addr) uint64 {
	ua, ok := addr.(*net.UDPAddr)
	if !ok || ua.IP == nil {
		return 0
	}
	ip4 := ua.IP.To4()
	if ip4 == nil {
		ip4 = ua.IP.To16()[:4]
	}
	var b [8]byte
	copy(b[:4], ip4)
	binary.BigEndian.PutUint16(b[4:6], uint16(ua.Port))
	return binary.BigEndian.Uint64(b[:])
}

// Close drains both queues, per spec §6's free_context, and closes the
// socket.
func (c *Context) Close() error {
	c.sendQueue.DeleteAll()
	c.recvQueue.DeleteAll()
	return c.socket.Close()
}

// CanExit reports whether both queues are empty, per spec §6's
// can_exit.
func (c *Context) CanExit() bool {
	return c.sendQueue.Len() == 0 && c.recvQueue.Len() == 0
}

// Clock returns the injected time source, so handlers that need the
// current time (e.g. a clock resource) honor the same injected-clock
// discipline the engine's own scheduling uses, rather than reading
// time.Now() directly.
func (c *Context) Clock() Clock {
	return c.cfg.Clock
}

// Serve runs the cooperative host-loop shape spec §5/§9 describe: call
// Read on readability, Dispatch immediately after, and arm a timer
// against the send queue's earliest deadline. It is provided as a
// convenience for hosts that don't need to integrate the engine into
// their own select/poll loop; it is not itself an additional thread of
// engine-internal concurrency — exactly one goroutine drives Read,
// Dispatch, and retransmission, matching spec §5's "no internal
// threads".
func (c *Context) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.tickRetransmits()

		deadline := c.nextDeadline()
		if err := c.socket.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("coap: set read deadline: %w", err)
		}

		if err := c.Read(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if c.readWarn.allow(c.cfg.Clock.Now()) {
				c.log.Warn("coap: read error", "error", err)
			}
			continue
		}
		c.Dispatch()
	}
}

// nextDeadline returns the wall-clock time Serve should next wake up by,
// derived from the send queue's earliest scheduled tick.
func (c *Context) nextDeadline() time.Time {
	head := c.sendQueue.PeekFront()
	now := c.cfg.Clock.Now()
	if head == nil {
		return now.Add(1 * time.Second)
	}
	untilTick := head.ScheduledAt - c.cfg.nowTick()
	if untilTick <= 0 {
		return now
	}
	return now.Add(time.Duration(untilTick) * c.cfg.tickDuration())
}

// tickRetransmits retransmits every send-queue node whose deadline has
// arrived, in deadline order, stopping at the first node still in the
// future (the queue is sorted, so later nodes are guaranteed later too).
func (c *Context) tickRetransmits() {
	now := c.cfg.nowTick()
	for {
		head := c.sendQueue.PeekFront()
		if head == nil || head.ScheduledAt > now {
			return
		}
		node := c.sendQueue.PopFront()
		c.updateSendQueueMetric()
		c.retransmit(node)
	}
}

// wellKnownResourceKey lazily computes and caches the resource key for
// cfg.WellKnownURI, a process-lifetime singleton per spec §4.8/§9.
func (c *Context) wellKnownResourceKey() ResourceKey {
	c.wellKnownOnce.Do(func() {
		c.wellKnownKey = HashURIPath(splitURIPath(c.cfg.WellKnownURI))
	})
	return c.wellKnownKey
}

// updateSendQueueMetric refreshes the send-queue length gauge. Called
// after every Insert/PopFront/RemoveByID against c.sendQueue.
func (c *Context) updateSendQueueMetric() {
	c.cfg.Metrics.SendQueueLen.Set(float64(c.sendQueue.Len()))
}

// updateRecvQueueMetric refreshes the receive-queue length gauge.
func (c *Context) updateRecvQueueMetric() {
	c.cfg.Metrics.RecvQueueLen.Set(float64(c.recvQueue.Len()))
}

// splitURIPath splits a slash-separated path into segments the same way
// the wire-level Uri-Path option sequence would be decoded into.
func splitURIPath(path string) [][]byte {
	var segs [][]byte
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segs = append(segs, []byte(path[start:i]))
			}
			start = i + 1
		}
	}
	return segs
}
