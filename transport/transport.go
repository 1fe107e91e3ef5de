// Package transport defines the message-passing collaborator that the
// cluster package coordinates archive nodes over, and provides an
// in-process implementation of it.
package transport

import "context"

// AnySource matches a message from any rank when passed to IRecv.
const AnySource = -1

// AnyTag matches a message carrying any tag when passed to IRecv.
const AnyTag = -1

// Probe describes a message waiting to be received, as reported by IProbe.
type Probe struct {
	Source int
	Tag    int
}

// SendHandle tracks the completion of a non-blocking send.
type SendHandle interface {
	// Wait blocks until the send has completed.
	Wait(ctx context.Context) error
}

// RecvHandle tracks the completion of a non-blocking receive.
type RecvHandle interface {
	// Wait blocks until a matching message arrives and returns its payload.
	Wait(ctx context.Context) ([]byte, error)
}

// Transport is the message-passing substrate a cluster node runs its
// dispatcher over. It is modeled on an MPI rank's view of its communicator:
// every rank can address every other rank directly by its integer rank,
// send and receive are tagged, and Barrier blocks until every rank has
// called it. Implementations need not be thread-safe for concurrent use
// from multiple goroutines against the same rank; a rank is driven by a
// single dispatcher goroutine.
type Transport interface {
	// Size returns the number of ranks in the communicator.
	Size() int

	// Rank returns this transport's own rank, in [0, Size()).
	Rank() int

	// Send blocks until payload has been handed off to dest's queue.
	Send(ctx context.Context, dest, tag int, payload []byte) error

	// ISend hands payload off to dest's queue and returns immediately,
	// with a handle to wait on completion.
	ISend(dest, tag int, payload []byte) SendHandle

	// IRecv returns a handle that resolves once a message matching src
	// and tag (AnySource/AnyTag to wildcard either) is available.
	IRecv(src, tag int) RecvHandle

	// IProbe reports the source and tag of the next message waiting for
	// this rank without consuming it, or ok=false if none is queued.
	IProbe() (p Probe, ok bool)

	// Barrier blocks until every rank in the communicator has called it.
	Barrier(ctx context.Context)
}
