package resource

import (
	"bytes"
	"fmt"
)

// RenderLinkFormat implements coap.LinkFormatRenderer: it writes the
// registry's entries as a CoRE link-format document
// (RFC 6690: <path>;rt="...";if="...";title="...",<path2>;...) into buf and
// reports whether the full document fit. Per spec.md §4.7, the caller
// passes the remaining payload budget; a document that doesn't fit is
// a failure, not a silent truncation.
func (r *Registry) RenderLinkFormat(buf []byte) (n int, ok bool) {
	var out bytes.Buffer
	for i, e := range r.entries() {
		if i > 0 {
			out.WriteByte(',')
		}
		fmt.Fprintf(&out, "<%s>", ensureLeadingSlash(e.path))
		if e.attrs.ResourceType != "" {
			fmt.Fprintf(&out, ";rt=%q", e.attrs.ResourceType)
		}
		if e.attrs.Interface != "" {
			fmt.Fprintf(&out, ";if=%q", e.attrs.Interface)
		}
		if e.attrs.Title != "" {
			fmt.Fprintf(&out, ";title=%q", e.attrs.Title)
		}
	}
	if out.Len() > len(buf) {
		return 0, false
	}
	return copy(buf, out.Bytes()), true
}

func ensureLeadingSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path
	}
	return "/" + path
}
