package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// deliverProcedure is the RPC path one rank calls on another to deliver a
// single tagged message.
const deliverProcedure = "/archivecluster.transport.v1.Transport/Deliver"

// NewHandler builds the connect handler a rank serves so peers can deliver
// messages into inbox.
func NewHandler(box *inbox) (string, http.Handler) {
	handler := connect.NewUnaryHandler(
		deliverProcedure,
		func(ctx context.Context, req *connect.Request[Envelope]) (*connect.Response[Ack], error) {
			box.push(*req.Msg)
			return connect.NewResponse(&Ack{OK: true}), nil
		},
		connect.WithCodec(deliveryCodec{}),
	)
	return deliverProcedure, handler
}

// NewClient builds a client that delivers envelopes to the rank served at
// baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string) *connect.Client[Envelope, Ack] {
	return connect.NewClient[Envelope, Ack](
		httpClient,
		baseURL+deliverProcedure,
		connect.WithCodec(deliveryCodec{}),
	)
}
