package coap

import (
	"sort"

	"github.com/malbeclabs/coapd/internal/optionenc"
)

// canonicalPhrase returns the plain-text phrase spec §4.7 adds as the
// payload (with a Content-Type=text/plain option) for codes that carry
// one.
func canonicalPhrase(code uint8) (string, bool) {
	switch code {
	case CodeBadOption:
		return "Bad Option", true
	case CodeNotFound:
		return "Not Found", true
	case CodeMethodNotAllowed:
		return "Method Not Allowed", true
	default:
		return "", false
	}
}

// encodeUint encodes a CoAP integer option value using the minimal
// big-endian form; 0 is conventionally encoded as a zero-length value.
func encodeUint(v uint16) []byte {
	if v == 0 {
		return nil
	}
	if v < 0x100 {
		return []byte{byte(v)}
	}
	return []byte{byte(v >> 8), byte(v)}
}

func sortOptions(opts []optionenc.Option) {
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Number < opts[j].Number })
}

// NewErrorResponse builds a response PDU for code, per spec §4.7:
// ACK if the request was CON else NON; Content-Type forced off from the
// copied options, Token forced on; every option enabled in filter is
// copied from the request (preserving order); a canonical phrase is
// added as payload with Content-Type=text/plain when code has one.
// It returns nil if the result would exceed cfg.MaxPDUSize (an
// allocation-failure outcome, spec §7) or if option encoding fails.
func (c *Context) NewErrorResponse(request *PDU, code uint8, filter *UnknownOptionsFilter) *PDU {
	typ := TypeNON
	if request.Type == TypeCON {
		typ = TypeACK
	}

	reqOpts, _ := optionenc.Decode(request.OptionBytes(), request.OptionCount)
	var keep []optionenc.Option
	for _, o := range reqOpts {
		switch {
		case o.Number == OptionToken:
			keep = append(keep, o)
		case o.Number == OptionContentType:
			// forced off: an error response carries its own Content-Type.
		case int(o.Number) <= maxKnownOption && filter.Has(o.Number):
			keep = append(keep, o)
		}
	}

	var payload []byte
	if phrase, ok := canonicalPhrase(code); ok {
		keep = append(keep, optionenc.Option{Number: OptionContentType, Value: encodeUint(ContentTypeTextPlain)})
		payload = []byte(phrase)
	}
	sortOptions(keep)

	raw, count, err := optionenc.Encode(keep)
	if err != nil {
		c.log.Warn("coap: failed to encode error response options", "error", err)
		return nil
	}
	if headerLen+len(raw)+len(payload) > c.cfg.MaxPDUSize {
		c.log.Warn("coap: error response exceeds MaxPDUSize", "code", code)
		return nil
	}
	return NewPDU(typ, code, request.MessageID, count, raw, payload)
}

// WellKnownResponse builds the 2.05 Content discovery response for
// .well-known/core, per spec §4.7: ACK-type, Content-Type=link-format,
// the request's Token echoed, payload rendered by the external
// LinkFormatRenderer into the remaining size budget.
func (c *Context) WellKnownResponse(request *PDU) *PDU {
	token := ExtractToken(request)
	var opts []optionenc.Option
	opts = append(opts, optionenc.Option{Number: OptionContentType, Value: encodeUint(ContentTypeLinkFormat)})
	if token.Len() > 0 {
		opts = append(opts, optionenc.Option{Number: OptionToken, Value: token.Bytes()})
	}
	sortOptions(opts)

	raw, count, err := optionenc.Encode(opts)
	if err != nil {
		c.log.Warn("coap: failed to encode well-known response options", "error", err)
		return nil
	}

	remaining := c.cfg.MaxPDUSize - headerLen - len(raw)
	if remaining < 0 {
		remaining = 0
	}
	buf := make([]byte, remaining)
	n, ok := c.cfg.LinkFormat.RenderLinkFormat(buf)
	if !ok {
		c.log.Warn("coap: link-format renderer failed or did not fit")
		return nil
	}
	return NewPDU(TypeACK, CodeContent, request.MessageID, count, raw, buf[:n])
}
