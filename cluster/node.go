// Package cluster coordinates a set of archive.Archive instances, one per
// rank, into a loosely-consistent distributed object store: inserts and
// removals are announced to every other rank, and a local miss falls back
// to asking the cluster before giving up.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/archivekit/objectarchive/archive"
	"github.com/archivekit/objectarchive/observability"
	"github.com/archivekit/objectarchive/transport"
	"github.com/archivekit/objectarchive/wire"
)

// pollInterval bounds how long a blocked remote lookup sleeps between
// pump attempts when nothing is queued yet. The reference protocol this
// is grounded on busy-waits unconditionally; a short sleep keeps the same
// cooperative, single-goroutine shape without pegging a core while idle.
const pollInterval = time.Millisecond

// Node is one rank's view of a cluster archive: its own local
// archive.Archive, a transport.Transport connecting it to every other
// rank, and the distributed coordination layered on top. A Node is driven
// by a single goroutine; it is not safe for concurrent use.
type Node[K comparable] struct {
	ar    *archive.Archive[K]
	t     transport.Transport
	codec wire.Codec
	obs   observability.Observer
	disp  *dispatcher
	reg   *registry[K]

	alive []bool

	insertFilter func(K) bool

	closed bool
}

// New creates a cluster node over t, opening its local archive per cfg and
// announcing its presence to every other rank.
func New[K comparable](ctx context.Context, t transport.Transport, cfg Config, codec wire.Codec, obs observability.Observer) (*Node[K], error) {
	if codec == nil {
		codec = wire.GobCodec{}
	}
	if obs == nil {
		obs = observability.NoOpObserver{}
	}

	ar, err := archive.New[K](cfg.Archive, codec, obs)
	if err != nil {
		return nil, fmt.Errorf("cluster: open local archive: %w", err)
	}

	n := &Node[K]{
		ar:    ar,
		t:     t,
		codec: codec,
		obs:   obs,
		disp:  newDispatcher(t),
		reg:   newRegistry[K](),
		alive: make([]bool, t.Size()),
	}
	for i := range n.alive {
		n.alive[i] = true
	}
	n.registerHandlers()

	if err := n.broadcastOthers(TagAlive, true, false); err != nil {
		ar.Close()
		return nil, fmt.Errorf("cluster: announce alive: %w", err)
	}
	n.disp.run(ctx)

	return n, nil
}

func (n *Node[K]) registerHandlers() {
	n.disp.register(TagAlive, n.processAlive)
	n.disp.register(TagInvalidated, n.processInvalidated)
	n.disp.register(TagInserted, n.processInserted)
	n.disp.register(TagChangeKey, n.processChangeKey)
	n.disp.register(TagRequest, n.processRequest)
	n.disp.register(TagResponse, n.processResponse)
	n.disp.register(TagRequestData, n.processRequestData)
	n.disp.register(TagResponseData, n.processResponseData)
}

// Rank returns this node's rank within the cluster.
func (n *Node[K]) Rank() int { return n.t.Rank() }

// Size returns the number of ranks in the cluster.
func (n *Node[K]) Size() int { return n.t.Size() }

// Pump processes at most one queued message, returning whether it did.
// Callers that want to keep a node responsive to peers between their own
// operations should call this periodically.
func (n *Node[K]) Pump(ctx context.Context) bool {
	return n.disp.pumpOnce(ctx)
}

// Run pumps until there is nothing left to process.
func (n *Node[K]) Run(ctx context.Context) {
	n.disp.run(ctx)
}

// Barrier blocks until every rank has called Barrier.
func (n *Node[K]) Barrier(ctx context.Context) {
	n.t.Barrier(ctx)
}

// SetInsertFilter installs a predicate consulted whenever a peer announces
// an insert or an invalidation: when it returns true for the affected key,
// this node opportunistically pulls a fresh copy from the announcing peer.
func (n *Node[K]) SetInsertFilter(f func(K) bool) {
	n.insertFilter = f
}

// ClearInsertFilter removes a previously installed filter.
func (n *Node[K]) ClearInsertFilter() {
	n.insertFilter = nil
}

// IsAvailable reports whether key has a local entry. It does not query the
// rest of the cluster.
func (n *Node[K]) IsAvailable(key K) bool {
	return n.ar.IsAvailable(key)
}

// Keys returns every key this node holds locally.
func (n *Node[K]) Keys() []K {
	return n.ar.Keys()
}

// Insert stores value under key locally and announces the insert to every
// other alive rank.
func (n *Node[K]) Insert(key K, value []byte, keepInBuffer bool) error {
	if n.closed {
		return ErrClosed
	}
	if err := n.ar.Insert(key, value, keepInBuffer); err != nil {
		return err
	}
	return n.broadcastOthers(TagInserted, key, true)
}

// Remove deletes key locally and announces the removal to every other
// alive rank.
func (n *Node[K]) Remove(key K) error {
	if n.closed {
		return ErrClosed
	}
	if err := n.ar.Remove(key); err != nil {
		return err
	}
	return n.broadcastOthers(TagInvalidated, key, true)
}

// ChangeKey renames an entry locally and announces the rename to every
// other alive rank.
func (n *Node[K]) ChangeKey(oldKey, newKey K) error {
	if n.closed {
		return ErrClosed
	}
	if err := n.ar.ChangeKey(oldKey, newKey); err != nil {
		return err
	}
	return n.broadcastOthers(TagChangeKey, wire.KeyPair[K]{Old: oldKey, New: newKey}, true)
}

// Flush flushes the local archive.
func (n *Node[K]) Flush() error { return n.ar.Flush() }

// Clear clears the local archive.
func (n *Node[K]) Clear() error { return n.ar.Clear() }

// Close announces this node's departure to every rank (alive or not, so
// that a peer which briefly looked dead still learns this node is gone)
// and closes the local archive.
func (n *Node[K]) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	n.broadcastOthers(TagAlive, false, false)
	return n.ar.Close()
}

// Load retrieves the bytes stored under key, checking the local archive
// first and falling back to a cluster-wide lookup on a local miss.
func (n *Node[K]) Load(ctx context.Context, key K, keepInBuffer bool) ([]byte, error) {
	if n.closed {
		return nil, ErrClosed
	}

	if data, ok, err := n.ar.Load(key, keepInBuffer); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	return n.loadRemote(ctx, key, keepInBuffer)
}

func (n *Node[K]) countAlivePeers() int {
	count := 0
	for i, alive := range n.alive {
		if i != n.t.Rank() && alive {
			count++
		}
	}
	return count
}

func (n *Node[K]) loadRemote(ctx context.Context, key K, keepInBuffer bool) ([]byte, error) {
	req := n.reg.begin(key, n.countAlivePeers(), transport.AnySource)
	defer n.reg.end(req)

	if err := n.sendRequestToAlivePeers(ctx, req); err != nil {
		return nil, err
	}

	foundAt, found := n.awaitExistence(ctx, req)
	if !found {
		return nil, ErrNotFound
	}

	data, ok := n.awaitData(ctx, req, foundAt)
	if !ok {
		return nil, ErrNotFound
	}

	n.ar.Insert(key, data, keepInBuffer)
	return data, nil
}

func (n *Node[K]) sendRequestToAlivePeers(ctx context.Context, req wire.Request[K]) error {
	payload, err := n.codec.Encode(req)
	if err != nil {
		return fmt.Errorf("cluster: encode request: %w", err)
	}
	for i, alive := range n.alive {
		if i == n.t.Rank() || !alive {
			continue
		}
		n.t.ISend(i, int(TagRequest), payload)
	}
	return nil
}

// awaitExistence pumps the dispatcher until req's phase-one existence
// check resolves: either some peer answered yes, or every alive peer has
// answered (or died) without one.
func (n *Node[K]) awaitExistence(ctx context.Context, req wire.Request[K]) (foundAt int, ok bool) {
	for {
		st, exists := n.reg.snapshot(req)
		if !exists {
			return 0, false
		}
		if st.found {
			return st.foundAt, true
		}
		if st.waiting <= 0 {
			return 0, false
		}
		if err := n.waitForProgress(ctx); err != nil {
			return 0, false
		}
	}
}

// awaitData pumps the dispatcher until req's data pull from source
// resolves: either the data arrives, or source dies before it does.
func (n *Node[K]) awaitData(ctx context.Context, req wire.Request[K], source int) ([]byte, bool) {
	payload, err := n.codec.Encode(req)
	if err != nil {
		return nil, false
	}
	n.t.Send(ctx, source, int(TagRequestData), payload)

	for {
		st, exists := n.reg.snapshot(req)
		if !exists {
			return nil, false
		}
		if st.dataValid {
			return st.data, st.data != nil
		}
		if !n.alive[source] {
			return nil, false
		}
		if err := n.waitForProgress(ctx); err != nil {
			return nil, false
		}
	}
}

func (n *Node[K]) waitForProgress(ctx context.Context) error {
	if n.disp.pumpOnce(ctx) {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pollInterval):
		return nil
	}
}

// pullFrom issues a single-target existence check against src for key, and
// on a yes, pulls and stores its data. It is used by the insert filter
// path, where an announcement from src makes this node want a fresh copy
// without waiting for the rest of the cluster to weigh in.
func (n *Node[K]) pullFrom(ctx context.Context, src int, key K) {
	req := n.reg.begin(key, 1, src)
	defer n.reg.end(req)

	payload, err := n.codec.Encode(req)
	if err != nil {
		return
	}
	n.t.Send(ctx, src, int(TagRequest), payload)

	foundAt, found := n.awaitExistence(ctx, req)
	if !found {
		return
	}

	data, ok := n.awaitData(ctx, req, foundAt)
	if !ok {
		return
	}

	// Durability, not a warm cache: written straight through so a
	// filter-driven pull doesn't itself start evicting this node's buffer.
	n.ar.Insert(key, data, false)
}

// broadcastTimeout bounds how long broadcastOthers waits for all of its
// sends together (one deadline shared by every send), so a peer that's gone unresponsive without announcing TagAlive=false
// (a crash rather than a graceful Close) cannot block this node's
// dispatcher goroutine indefinitely.
const broadcastTimeout = 5 * time.Second

// broadcastOthers encodes payload and fans it out to every other rank,
// optionally restricted to ones currently believed alive, waiting for
// every send to complete (or to time out) before returning.
func (n *Node[K]) broadcastOthers(tag Tag, payload any, checkAlive bool) error {
	data, err := n.codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("cluster: encode %s broadcast: %w", tag, err)
	}

	handles := make([]transport.SendHandle, 0, n.t.Size())
	for i := 0; i < n.t.Size(); i++ {
		if i == n.t.Rank() {
			continue
		}
		if checkAlive && !n.alive[i] {
			continue
		}
		handles = append(handles, n.t.ISend(i, int(tag), data))
	}

	ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
	defer cancel()
	for _, h := range handles {
		h.Wait(ctx)
	}
	return nil
}
