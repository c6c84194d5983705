// Package optionenc is the PDU option TLV encoder/decoder that
// internal/coap treats as an external collaborator (spec.md §1: "PDU
// byte-level encoding/decoding of options and payload" is out of scope
// for the core engine). The concrete wire layout implemented here is
// documented in SPEC_FULL.md §9 since spec.md leaves the exact bytes to
// "the encoder".
//
// Layout: options are delta-coded relative to the previous option
// number, sorted ascending. Each entry is one header byte (4-bit delta,
// 4-bit length), optionally followed by one extension byte when the
// length nibble is 0xF (extended length = 15 + extension byte, up to
// 270 bytes), followed by the value bytes. A delta greater than 14 is
// represented as a run of zero-length "fence-post" entries (delta
// nibble 14, length 0) advancing the running option number by 14 at a
// time, terminated by one entry carrying the remaining delta (<=14) and
// the real option's length and value.
package optionenc

import (
	"errors"
	"fmt"
)

// Option is a single decoded CoAP option.
type Option struct {
	Number uint16
	Value  []byte
}

const fencePostStride = 14

var (
	// ErrTruncated is returned when the raw bytes end mid-option.
	ErrTruncated = errors.New("optionenc: truncated option")
)

// Encode serializes opts (which must already be sorted ascending by
// Number) into their TLV form, inserting fence posts as needed, and
// returns the bytes plus the number of raw TLV entries written
// (fence posts included) — the value a PDU's header OptionCount field
// must carry.
func Encode(opts []Option) (raw []byte, count uint8, err error) {
	var buf []byte
	prev := uint16(0)
	n := 0
	for _, opt := range opts {
		if opt.Number < prev {
			return nil, 0, fmt.Errorf("optionenc: options not sorted ascending: %d after %d", opt.Number, prev)
		}
		delta := opt.Number - prev
		for delta > fencePostStride {
			buf = append(buf, byte(fencePostStride)<<4)
			prev += fencePostStride
			delta -= fencePostStride
			n++
		}
		hdr, ext := lengthNibble(len(opt.Value))
		buf = append(buf, byte(delta)<<4|hdr)
		if ext != nil {
			buf = append(buf, *ext)
		}
		buf = append(buf, opt.Value...)
		prev = opt.Number
		n++
	}
	if n > 0x0F {
		return nil, 0, fmt.Errorf("optionenc: %d raw option entries exceeds 4-bit option count", n)
	}
	return buf, uint8(n), nil
}

func lengthNibble(length int) (nibble byte, ext *byte) {
	if length < 15 {
		return byte(length), nil
	}
	e := byte(length - 15)
	return 0x0F, &e
}

// Decode walks count raw TLV entries starting at raw[0] and returns the
// semantic option list — the "official" iterator of spec.md §4.5/§9,
// which skips fence-post entries (zero-length options landing on a
// multiple of fencePostStride) rather than returning them. It is used
// for option *semantics* (spec §4.3's critical-option walk); the reader
// must not use it to locate the payload boundary (spec §4.5 step 4) —
// use UncheckedEnd for that instead.
func Decode(raw []byte, count uint8) ([]Option, error) {
	var opts []Option
	offset := 0
	running := uint16(0)
	for i := uint8(0); i < count; i++ {
		delta, length, hdrLen, err := readHeader(raw, offset)
		if err != nil {
			return nil, err
		}
		offset += hdrLen
		if offset+length > len(raw) {
			return nil, ErrTruncated
		}
		running += uint16(delta)
		// Ambiguous by construction: a genuine zero-length option whose
		// number happens to land on a multiple of fencePostStride is
		// indistinguishable from a fence post and is dropped here. Not
		// reachable with the engine's current option set (1,2,3,5,9,11,15),
		// none of which is ever both zero-length and a multiple of 14.
		isFencePost := length == 0 && delta == fencePostStride && running%fencePostStride == 0
		if !isFencePost {
			val := make([]byte, length)
			copy(val, raw[offset:offset+length])
			opts = append(opts, Option{Number: running, Value: val})
		}
		offset += length
	}
	return opts, nil
}

// UncheckedEnd returns the byte offset immediately following the last of
// count raw TLV option entries in raw, without filtering fence posts —
// the walker spec.md §4.5 step 4 requires the reader to use. It must
// produce the same offset Decode would stop at; the two are kept as
// separate functions because the reader and the critical-option
// validator have distinct call-time requirements (one needs the
// semantic list, one only needs a byte offset), not because their byte
// arithmetic differs.
func UncheckedEnd(raw []byte, count uint8) (int, error) {
	offset := 0
	for i := uint8(0); i < count; i++ {
		_, length, hdrLen, err := readHeader(raw, offset)
		if err != nil {
			return 0, err
		}
		offset += hdrLen
		if offset+length > len(raw) {
			return 0, ErrTruncated
		}
		offset += length
	}
	return offset, nil
}

// readHeader parses one option's header bytes at raw[offset:], returning
// its delta, value length, and the number of header bytes consumed
// (1, or 2 if length was extended).
func readHeader(raw []byte, offset int) (delta uint16, length, hdrLen int, err error) {
	if offset >= len(raw) {
		return 0, 0, 0, ErrTruncated
	}
	b := raw[offset]
	delta = uint16(b >> 4)
	lenNibble := b & 0x0F
	if lenNibble < 0x0F {
		return delta, int(lenNibble), 1, nil
	}
	if offset+1 >= len(raw) {
		return 0, 0, 0, ErrTruncated
	}
	return delta, int(raw[offset+1]) + 15, 2, nil
}
