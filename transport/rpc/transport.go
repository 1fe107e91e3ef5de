// Package rpc implements transport.Transport across separate processes,
// each rank serving a connect RPC endpoint that its peers deliver tagged
// messages to.
package rpc

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/archivekit/objectarchive/transport"
)

// barrierTag is a reserved tag used by Barrier's own message exchange. It
// is chosen far outside the range a caller would plausibly pass to
// Send/IRecv directly.
const barrierTag = -1 << 30

// Transport delivers messages to peers over connect RPC and serves its own
// inbox for peers to deliver into. Construct one per rank with New, mount
// its handler with NewHandler, and supply an http.Client (or anything else
// satisfying connect.HTTPClient) for outbound delivery.
type Transport struct {
	rank  int
	peers []*connect.Client[Envelope, Ack]
	inbox *inbox
}

// New builds a Transport for the given rank. peerURLs lists every rank's
// base URL, including this rank's own (ignored for outbound calls).
func New(rank int, peerURLs []string, httpClient connect.HTTPClient) *Transport {
	peers := make([]*connect.Client[Envelope, Ack], len(peerURLs))
	for i, url := range peerURLs {
		if i == rank {
			continue
		}
		peers[i] = NewClient(httpClient, url)
	}
	return &Transport{rank: rank, peers: peers, inbox: newInbox()}
}

// Inbox returns the queue this rank's RPC handler pushes into; pass it to
// NewHandler when mounting the server side.
func (t *Transport) Inbox() *inbox { return t.inbox }

func (t *Transport) Size() int { return len(t.peers) }
func (t *Transport) Rank() int { return t.rank }

func (t *Transport) Send(ctx context.Context, dest, tag int, payload []byte) error {
	id := uuid.Must(uuid.NewV7()).String()

	if dest == t.rank {
		t.inbox.push(Envelope{Source: t.rank, Tag: tag, Payload: payload, MessageID: id})
		return nil
	}

	_, err := t.peers[dest].CallUnary(ctx, connect.NewRequest(&Envelope{
		Source:    t.rank,
		Tag:       tag,
		Payload:   payload,
		MessageID: id,
	}))
	if err != nil {
		return fmt.Errorf("rpc: deliver to rank %d (message %s): %w", dest, id, err)
	}
	return nil
}

func (t *Transport) ISend(dest, tag int, payload []byte) transport.SendHandle {
	h := &sendHandle{done: make(chan error, 1)}
	go func() { h.done <- t.Send(context.Background(), dest, tag, payload) }()
	return h
}

func (t *Transport) IRecv(src, tag int) transport.RecvHandle {
	return &recvHandle{inbox: t.inbox, src: src, tag: tag}
}

func (t *Transport) IProbe() (transport.Probe, bool) {
	return t.inbox.probe()
}

// Barrier exchanges a reserved-tag message with every other rank: this is
// the same broadcast-then-wait shape the cluster package's own
// broadcastOthers helper uses for announcements, applied here since an RPC
// transport has no shared process state to synchronize a generational
// barrier through.
func (t *Transport) Barrier(ctx context.Context) {
	for i := 0; i < t.Size(); i++ {
		if i == t.rank {
			continue
		}
		t.Send(ctx, i, barrierTag, nil)
	}
	for i := 0; i < t.Size()-1; i++ {
		t.IRecv(transport.AnySource, barrierTag).Wait(ctx)
	}
}

type sendHandle struct {
	done chan error
}

func (h *sendHandle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type recvHandle struct {
	inbox    *inbox
	src, tag int
}

func (h *recvHandle) Wait(ctx context.Context) ([]byte, error) {
	return h.inbox.recv(ctx, h.src, h.tag)
}
