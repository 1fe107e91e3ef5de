package cluster

import (
	"sync"

	"github.com/archivekit/objectarchive/transport"
	"github.com/archivekit/objectarchive/wire"
)

// requestState tracks one outstanding remote lookup this node issued.
// source records which rank the request was addressed to --
// transport.AnySource for a broadcast lookup sent to every alive peer, or a
// specific rank for a targeted pull. waiting counts how many currently-alive
// peers have not yet answered whether they hold the key; once it reaches
// zero (or a responder says yes), phase one of the lookup is resolved.
// found/foundAt record the first peer that answered yes. dataValid/data
// record the outcome of the follow-up data pull from that peer.
type requestState struct {
	source    int
	waiting   int
	found     bool
	foundAt   int
	dataValid bool
	data      []byte
}

// registry issues and tracks in-flight requests for one node, keyed by
// {key, counter} so that multiple concurrent lookups for the same key --
// a user Load racing a filter-driven pull triggered from inside a handler
// -- never collide.
type registry[K comparable] struct {
	mu       sync.Mutex
	counters map[K]int
	states   map[wire.Request[K]]*requestState
}

func newRegistry[K comparable]() *registry[K] {
	return &registry[K]{
		counters: make(map[K]int),
		states:   make(map[wire.Request[K]]*requestState),
	}
}

// begin allocates a fresh request identity for key and starts tracking it,
// addressed to source (transport.AnySource for a broadcast to every alive
// peer, or a specific rank for a targeted pull), with waiting responses
// expected.
func (r *registry[K]) begin(key K, waiting int, source int) wire.Request[K] {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter := r.counters[key]
	r.counters[key] = counter + 1

	req := wire.Request[K]{Key: key, Counter: counter}
	r.states[req] = &requestState{source: source, waiting: waiting}
	return req
}

// end stops tracking req.
func (r *registry[K]) end(req wire.Request[K]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, req)
}

func (r *registry[K]) snapshot(req wire.Request[K]) (requestState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[req]
	if !ok {
		return requestState{}, false
	}
	return *st, true
}

// onResponse records that from answered req, saying whether it holds the
// key.
func (r *registry[K]) onResponse(req wire.Request[K], from int, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[req]
	if !ok {
		return
	}
	st.waiting--
	if found && !st.found {
		st.found = true
		st.foundAt = from
	}
}

// onResponseData records the outcome of the data pull phase for req.
func (r *registry[K]) onResponseData(req wire.Request[K], valid bool, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[req]
	if !ok {
		return
	}
	st.dataValid = true
	if valid {
		st.data = data
	}
}

// onPeerDied updates in-flight requests to account for a peer that just
// went from alive to dead. Phase one only loses a responder for requests
// addressed to that rank specifically or broadcast to any rank -- a
// targeted pull from a different, still-alive rank is untouched by an
// unrelated peer's death. Phase two is force-resolved if that peer was the
// one the request was waiting on for data.
func (r *registry[K]) onPeerDied(rank int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, st := range r.states {
		if !st.found && (st.source == rank || st.source == transport.AnySource) {
			st.waiting--
			if st.waiting < 0 {
				st.waiting = 0
			}
		}
		if st.found && st.foundAt == rank && !st.dataValid {
			st.dataValid = true
			st.data = nil
		}
	}
}
