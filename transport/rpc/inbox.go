package rpc

import (
	"context"
	"sync"

	"github.com/archivekit/objectarchive/transport"
)

// inbox is the receive-side queue for one rank's RPC transport. The RPC
// handler appends to it as envelopes arrive over the wire; IProbe/IRecv
// drain it the same way the in-process bus does.
type inbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []Envelope
}

func newInbox() *inbox {
	b := &inbox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *inbox) push(e Envelope) {
	b.mu.Lock()
	b.items = append(b.items, e)
	b.mu.Unlock()
	b.cond.Broadcast()
}

func (b *inbox) matchIndex(src, tag int) int {
	for i, e := range b.items {
		if (src == transport.AnySource || e.Source == src) && (tag == transport.AnyTag || e.Tag == tag) {
			return i
		}
	}
	return -1
}

func (b *inbox) take(idx int) Envelope {
	e := b.items[idx]
	b.items = append(b.items[:idx], b.items[idx+1:]...)
	return e
}

func (b *inbox) probe() (transport.Probe, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return transport.Probe{}, false
	}
	return transport.Probe{Source: b.items[0].Source, Tag: b.items[0].Tag}, true
}

func (b *inbox) recv(ctx context.Context, src, tag int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if idx := b.matchIndex(src, tag); idx >= 0 {
			return b.take(idx).Payload, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-done:
			}
		}()
		b.cond.Wait()
		close(done)
	}
}
