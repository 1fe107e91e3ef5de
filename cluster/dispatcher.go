package cluster

import (
	"context"

	"github.com/archivekit/objectarchive/transport"
)

type handlerFunc func(src int, body []byte)

// dispatcher is the single-threaded cooperative message loop a node drives
// itself through: probe for the next queued message, and if its tag has a
// registered handler, receive and dispatch it. Encountering an unregistered
// tag or an empty queue both stop a run -- a node never blocks trying to
// interpret a message it doesn't understand.
type dispatcher struct {
	t        transport.Transport
	handlers map[Tag]handlerFunc
}

func newDispatcher(t transport.Transport) *dispatcher {
	return &dispatcher{t: t, handlers: make(map[Tag]handlerFunc)}
}

func (d *dispatcher) register(tag Tag, h handlerFunc) {
	d.handlers[tag] = h
}

// pumpOnce processes at most one queued message and reports whether it
// did.
func (d *dispatcher) pumpOnce(ctx context.Context) bool {
	p, ok := d.t.IProbe()
	if !ok {
		return false
	}

	h, known := d.handlers[Tag(p.Tag)]
	if !known {
		return false
	}

	body, err := d.t.IRecv(p.Source, p.Tag).Wait(ctx)
	if err != nil {
		return false
	}

	h(p.Source, body)
	return true
}

// run pumps until the queue is empty or an unknown tag is encountered.
func (d *dispatcher) run(ctx context.Context) {
	for d.pumpOnce(ctx) {
	}
}
