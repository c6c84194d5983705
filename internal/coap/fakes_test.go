package coap

import (
	"net"
	"sync"
	"time"
)

// fakeSocket is an in-memory Socket double: inbound datagrams are queued
// via deliver, ReadFrom returns the oldest one or, when none is queued,
// a timeout error at once (it never blocks and ignores the deadline),
// and every WriteTo call is recorded for assertions.
type fakeSocket struct {
	mu       sync.Mutex
	inbox    [][]byte
	inboxFr  []*net.UDPAddr
	inboxSL  []int
	deadline time.Time

	sent []sentDatagram

	closed bool
}

type sentDatagram struct {
	pkt []byte
	dst *net.UDPAddr
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "fake socket: read deadline exceeded" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func newFakeSocket() *fakeSocket {
	return &fakeSocket{}
}

// deliver queues a datagram for the next ReadFrom call.
func (s *fakeSocket) deliver(pkt []byte, from *net.UDPAddr, sockaddrLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = append(s.inbox, pkt)
	s.inboxFr = append(s.inboxFr, from)
	s.inboxSL = append(s.inboxSL, sockaddrLen)
}

func (s *fakeSocket) ReadFrom(buf []byte) (int, *net.UDPAddr, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbox) == 0 {
		return 0, nil, 0, fakeTimeoutError{}
	}
	pkt := s.inbox[0]
	from := s.inboxFr[0]
	sl := s.inboxSL[0]
	s.inbox = s.inbox[1:]
	s.inboxFr = s.inboxFr[1:]
	s.inboxSL = s.inboxSL[1:]
	n := copy(buf, pkt)
	return n, from, sl, nil
}

func (s *fakeSocket) WriteTo(pkt []byte, dst *net.UDPAddr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	s.sent = append(s.sent, sentDatagram{pkt: cp, dst: dst})
	return len(pkt), nil
}

func (s *fakeSocket) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSocket) lastWrite() sentDatagram {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func (s *fakeSocket) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = t
	return nil
}

func (s *fakeSocket) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeRegistry is a map-backed ResourceRegistry double.
type fakeRegistry struct {
	byKey map[ResourceKey]*Resource
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{byKey: map[ResourceKey]*Resource{}}
}

func (r *fakeRegistry) add(res *Resource) {
	r.byKey[res.Key] = res
}

func (r *fakeRegistry) Lookup(key ResourceKey) (*Resource, bool) {
	res, ok := r.byKey[key]
	return res, ok
}

// fakeLinkFormat is a fixed-string (or forced-failure) LinkFormatRenderer
// double.
type fakeLinkFormat struct {
	body string
	fail bool
}

func (f *fakeLinkFormat) RenderLinkFormat(buf []byte) (int, bool) {
	if f.fail {
		return 0, false
	}
	n := copy(buf, f.body)
	return n, n == len(f.body)
}
