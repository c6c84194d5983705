package coap

import "github.com/cespare/xxhash/v2"

// HashURIPath computes the 4-byte ResourceKey hash of a request's
// Uri-Path option sequence, per spec §3/§4.8. Segments are hashed in
// order with a separator byte between them so that ["a","bc"] and
// ["ab","c"] don't collide.
func HashURIPath(segments [][]byte) ResourceKey {
	h := xxhash.New()
	for _, seg := range segments {
		_, _ = h.Write(seg)
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum64()
	var k ResourceKey
	k[0] = byte(sum >> 24)
	k[1] = byte(sum >> 16)
	k[2] = byte(sum >> 8)
	k[3] = byte(sum)
	return k
}

// SplitURIPath splits a slash-separated path string into the same
// segment form the wire-level Uri-Path option sequence decodes into,
// so that external collaborators (internal/resource) can compute a
// ResourceKey for a path they only know as a string, consistent with
// the key the router derives from an incoming request.
func SplitURIPath(path string) [][]byte {
	return splitURIPath(path)
}
