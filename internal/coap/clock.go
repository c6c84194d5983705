package coap

import (
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the monotonic tick provider the engine reads time through.
// Embedding clockwork.Clock lets tests substitute clockwork.NewFakeClock()
// instead of sleeping real time, the same pattern
// telemetry/global-monitor/internal/gm.RunnerConfig uses for its injected
// clock.
type Clock interface {
	clockwork.Clock
}

// NewClock returns the real wall-clock implementation.
func NewClock() Clock {
	return clockwork.NewRealClock()
}

// RandSource yields the single random byte spec §4.4 step 2 uses for ACK
// timeout jitter. It is seeded once at context construction (spec §6:
// "seeds the PRNG from (listen_addr bits) XOR clock_offset") and is not
// safe for concurrent use from multiple goroutines, matching the
// single-threaded cooperative model of spec §5.
type RandSource struct {
	r *rand.Rand
}

// NewRandSource seeds a RandSource the way spec §6 describes: the bits of
// the listen address XORed with a clock-derived offset.
func NewRandSource(listenAddrBits uint64, clockOffset int64) *RandSource {
	seed := int64(listenAddrBits) ^ clockOffset
	if seed == 0 {
		seed = 1
	}
	return &RandSource{r: rand.New(rand.NewSource(seed))}
}

// NewRandSourceFromSeed builds a RandSource from a fixed seed, for
// deterministic tests.
func NewRandSourceFromSeed(seed int64) *RandSource {
	return &RandSource{r: rand.New(rand.NewSource(seed))}
}

// JitterByte returns a fresh random byte in [0, 256), per spec §4.4 step 2.
func (s *RandSource) JitterByte() byte {
	return byte(s.r.Intn(256))
}
