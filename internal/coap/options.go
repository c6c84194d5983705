package coap

import "github.com/malbeclabs/coapd/internal/optionenc"

// KnownOptionsBitmap tracks which option numbers this context recognizes
// as critical. It is append-only during a context's lifetime (spec §3).
// Option numbers above maxKnownOption cannot be represented; callers must
// treat such PDUs as rejected (spec §4.3).
const maxKnownOption = 255

type KnownOptionsBitmap struct {
	bits [maxKnownOption/8 + 1]byte
}

// NewKnownOptionsBitmap seeds the bitmap with the options spec §4.3
// requires at startup: Content-Type, Proxy-Uri, Uri-Host, Uri-Port,
// Uri-Path, Token, Uri-Query.
func NewKnownOptionsBitmap() *KnownOptionsBitmap {
	b := &KnownOptionsBitmap{}
	for _, n := range []uint16{
		OptionContentType,
		OptionProxyURI,
		OptionURIHost,
		OptionURIPort,
		OptionURIPath,
		OptionToken,
		OptionURIQuery,
	} {
		b.Set(n)
	}
	return b
}

// Set marks option number n known. Append-only: callers never clear bits.
func (b *KnownOptionsBitmap) Set(n uint16) {
	if int(n) > maxKnownOption {
		return
	}
	b.bits[n/8] |= 1 << (n % 8)
}

// Has reports whether option number n is known.
func (b *KnownOptionsBitmap) Has(n uint16) bool {
	if int(n) > maxKnownOption {
		return false
	}
	return b.bits[n/8]&(1<<(n%8)) != 0
}

// UnknownOptionsFilter is the out-parameter spec §4.3 writes unknown
// critical option numbers into, later copied verbatim into a 4.02 Bad
// Option response (spec §4.7).
type UnknownOptionsFilter struct {
	bits [maxKnownOption/8 + 1]byte
}

// Set flags option number n as an unrecognized critical option.
func (f *UnknownOptionsFilter) Set(n uint16) {
	if int(n) > maxKnownOption {
		return
	}
	f.bits[n/8] |= 1 << (n % 8)
}

// Has reports whether option number n was flagged.
func (f *UnknownOptionsFilter) Has(n uint16) bool {
	if int(n) > maxKnownOption {
		return false
	}
	return f.bits[n/8]&(1<<(n%8)) != 0
}

// isCritical reports whether a CoAP option number is critical: odd
// numbers must be understood or rejected (spec §4.3, glossary).
func isCritical(n uint16) bool { return n%2 == 1 }

// CheckCritical walks every option in pdu and flags, in unknown, any
// critical option (odd number) not present in known. It returns false
// iff at least one such option was found, per spec §4.3/testable
// property 3. An option number beyond the filter's addressable range
// causes the whole PDU to be treated as rejected (ok=false), matching
// "the filter cannot represent it; caller treats the PDU as rejected".
func CheckCritical(known *KnownOptionsBitmap, pdu *PDU, unknown *UnknownOptionsFilter) (ok bool) {
	opts, err := optionenc.Decode(pdu.OptionBytes(), pdu.OptionCount)
	if err != nil {
		return false
	}
	ok = true
	for _, opt := range opts {
		if !isCritical(opt.Number) {
			continue
		}
		if int(opt.Number) > maxKnownOption {
			return false
		}
		if !known.Has(opt.Number) {
			unknown.Set(opt.Number)
			ok = false
		}
	}
	return ok
}

// uncheckedOptionsEnd locates the payload boundary using the "unchecked"
// walker spec §4.5 step 4 mandates: it must include fence-post options,
// unlike the semantic decoder CheckCritical uses. raw is the full PDU
// buffer (header included); it returns an absolute offset into raw.
func uncheckedOptionsEnd(raw []byte, optionCount int) int {
	if len(raw) < headerLen {
		return len(raw)
	}
	end, err := optionenc.UncheckedEnd(raw[headerLen:], uint8(optionCount))
	if err != nil {
		// Malformed option section: treat the rest of the datagram as
		// payload rather than panicking: the engine never aborts (spec §7).
		return len(raw)
	}
	return headerLen + end
}

// ExtractToken returns the Token option's value, if present, decoded via
// the semantic iterator.
func ExtractToken(pdu *PDU) Token {
	opts, err := optionenc.Decode(pdu.OptionBytes(), pdu.OptionCount)
	if err != nil {
		return Token{}
	}
	for _, opt := range opts {
		if opt.Number == OptionToken {
			t, _ := NewToken(opt.Value)
			return t
		}
	}
	return Token{}
}

// ExtractURIPath reassembles the Uri-Path option segments (in order) into
// the path segments used for §4.8's resource-key hash.
func ExtractURIPath(pdu *PDU) [][]byte {
	opts, err := optionenc.Decode(pdu.OptionBytes(), pdu.OptionCount)
	if err != nil {
		return nil
	}
	var segs [][]byte
	for _, opt := range opts {
		if opt.Number == OptionURIPath {
			segs = append(segs, opt.Value)
		}
	}
	return segs
}
