package main

import (
	"sort"
	"time"

	"github.com/malbeclabs/coapd/internal/coap"
	"github.com/malbeclabs/coapd/internal/optionenc"
	"github.com/malbeclabs/coapd/internal/resource"
)

// registerDemoResources wires up the two sample resources the engine
// ships with: a static "ok" echo at /a (the scenario A "echo CON"
// shape; internal/coap's scenario test exercises the same reply with
// its own /echo fake) and a live clock at /time.
func registerDemoResources(reg *resource.Registry) {
	reg.Register("/a", resource.Attrs{ResourceType: "demo.echo", Title: "static echo resource"}, [5]coap.MethodHandler{
		coap.CodeGET: handleEcho,
	})
	reg.Register("/time", resource.Attrs{ResourceType: "demo.clock", Title: "current server time"}, [5]coap.MethodHandler{
		coap.CodeGET: handleTime,
	})
}

func handleEcho(ctx *coap.Context, res *coap.Resource, remote coap.PeerAddress, pdu *coap.PDU, tid coap.TransactionID) {
	sendContent(ctx, remote, pdu, []byte("ok"))
}

func handleTime(ctx *coap.Context, res *coap.Resource, remote coap.PeerAddress, pdu *coap.PDU, tid coap.TransactionID) {
	sendContent(ctx, remote, pdu, []byte(ctx.Clock().Now().UTC().Format(time.RFC3339)))
}

// sendContent builds a 2.05 Content response the way response.go builds
// error responses: ACK if the request was CON else NON, reusing its
// MessageID and echoing its Token, Content-Type=text/plain.
func sendContent(ctx *coap.Context, remote coap.PeerAddress, request *coap.PDU, payload []byte) {
	typ := coap.TypeNON
	if request.Type == coap.TypeCON {
		typ = coap.TypeACK
	}

	token := coap.ExtractToken(request)
	opts := []optionenc.Option{{Number: coap.OptionContentType}}
	if token.Len() > 0 {
		opts = append(opts, optionenc.Option{Number: coap.OptionToken, Value: token.Bytes()})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Number < opts[j].Number })

	raw, count, err := optionenc.Encode(opts)
	if err != nil {
		return
	}
	resp := coap.NewPDU(typ, coap.CodeContent, request.MessageID, count, raw, payload)
	ctx.Send(remote, resp)
}
