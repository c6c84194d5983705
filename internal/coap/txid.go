package coap

import "github.com/cespare/xxhash/v2"

// TransactionID is the engine-local 16-bit identifier matching a response
// to its outstanding request via (peer, token), independent of the wire
// MessageID. Collisions are tolerated (spec §7).
type TransactionID uint16

// InvalidTransactionID is the sentinel returned when allocation fails or
// retransmission is exhausted (spec §4.4, §5).
const InvalidTransactionID TransactionID = 0xFFFF

// accumulate hashes b into the running 4-byte accumulator h, matching
// spec §4.1 step 1-3: each hashed component XORs a fresh 4-byte digest of
// its bytes into the accumulator.
func accumulate(h *[4]byte, b []byte) {
	sum := xxhash.Sum64(b)
	var d [4]byte
	d[0] = byte(sum >> 24)
	d[1] = byte(sum >> 16)
	d[2] = byte(sum >> 8)
	d[3] = byte(sum)
	for i := range h {
		h[i] ^= d[i]
	}
}

// fold16 XORs the top 16 bits of a 4-byte hash with the bottom 16, per
// spec §3.
func fold16(h [4]byte) uint16 {
	top := uint16(h[0])<<8 | uint16(h[1])
	bottom := uint16(h[2])<<8 | uint16(h[3])
	return top ^ bottom
}

// ComputeTransactionID implements the spec §4.1 procedure exactly:
// zero a 4-byte accumulator, hash the peer address into it, hash the
// token (if present) into it, then fold to 16 bits.
//
// It is deterministic for a given (peer, token) pair regardless of the
// PDU's wire MessageID (testable property 2).
func ComputeTransactionID(peer PeerAddress, token Token) TransactionID {
	var h [4]byte
	accumulate(&h, peer.hashBytes())
	if token.Len() > 0 {
		accumulate(&h, token.Bytes())
	}
	return TransactionID(fold16(h))
}
