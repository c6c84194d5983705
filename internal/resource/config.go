package resource

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/malbeclabs/coapd/internal/coap"
	"github.com/malbeclabs/coapd/internal/optionenc"
)

// ManifestEntry is one statically configured resource: a path, its
// link-format attributes, the methods it answers, and the canned
// response body returned for each of them, in the struct-tag decoding
// style of lake/pkg/isis/location.go's locationPattern.
type ManifestEntry struct {
	Path         string   `yaml:"path"`
	ResourceType string   `yaml:"rt"`
	Interface    string   `yaml:"if"`
	Title        string   `yaml:"title"`
	Methods      []string `yaml:"methods"`
	Response     string   `yaml:"response"`
}

// Manifest is the top-level YAML document shape: a flat list of
// resource declarations, turned into registered resources by
// (*Registry).LoadManifest at startup.
type Manifest struct {
	Resources []ManifestEntry `yaml:"resources"`
}

// ParseManifest decodes a YAML resource manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("resource: parse manifest: %w", err)
	}
	return &m, nil
}

// Attrs projects a manifest entry's link-format fields into Attrs.
func (e ManifestEntry) Attrs() Attrs {
	return Attrs{ResourceType: e.ResourceType, Interface: e.Interface, Title: e.Title}
}

var methodCodes = map[string]uint8{
	"GET":    coap.CodeGET,
	"POST":   coap.CodePOST,
	"PUT":    coap.CodePUT,
	"DELETE": coap.CodeDELETE,
}

// Handlers builds e's method handler table: every method named in
// e.Methods answers with a 2.05 Content response carrying e.Response as
// its payload; an unrecognized method name is ignored, leaving that
// slot absent the same way a code-registered resource would leave it.
func (e ManifestEntry) Handlers() [5]coap.MethodHandler {
	var table [5]coap.MethodHandler
	for _, m := range e.Methods {
		code, ok := methodCodes[strings.ToUpper(m)]
		if !ok {
			continue
		}
		table[code] = cannedResponseHandler(e.Response)
	}
	return table
}

// cannedResponseHandler builds a MethodHandler that always replies with
// the same text/plain payload, the response shape cmd/coapd's demo
// handlers build by hand.
func cannedResponseHandler(body string) coap.MethodHandler {
	payload := []byte(body)
	return func(ctx *coap.Context, res *coap.Resource, remote coap.PeerAddress, pdu *coap.PDU, tid coap.TransactionID) {
		typ := coap.TypeNON
		if pdu.Type == coap.TypeCON {
			typ = coap.TypeACK
		}

		token := coap.ExtractToken(pdu)
		opts := []optionenc.Option{{Number: coap.OptionContentType}}
		if token.Len() > 0 {
			opts = append(opts, optionenc.Option{Number: coap.OptionToken, Value: token.Bytes()})
		}
		sort.Slice(opts, func(i, j int) bool { return opts[i].Number < opts[j].Number })

		raw, count, err := optionenc.Encode(opts)
		if err != nil {
			return
		}
		resp := coap.NewPDU(typ, coap.CodeContent, pdu.MessageID, count, raw, payload)
		ctx.Send(remote, resp)
	}
}

// LoadManifest registers every entry in m against r, so a YAML file
// loaded at startup drives the same registry a binary would otherwise
// populate by hand (spec.md's "static per-resource configuration").
func (r *Registry) LoadManifest(m *Manifest) {
	for _, e := range m.Resources {
		r.Register(e.Path, e.Attrs(), e.Handlers())
	}
}
