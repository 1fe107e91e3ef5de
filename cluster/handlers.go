package cluster

import (
	"context"

	"github.com/archivekit/objectarchive/observability"
	"github.com/archivekit/objectarchive/wire"
)

// processAlive handles a liveness announcement from src. A 0->1 transition
// is answered in kind, so a newly-joined peer discovers every rank that
// was already alive without a separate discovery round. A 1->0 transition
// unblocks any in-flight request that was waiting on src.
func (n *Node[K]) processAlive(src int, body []byte) {
	var v bool
	if err := n.codec.Decode(body, &v); err != nil {
		return
	}

	wasAlive := n.alive[src]
	n.alive[src] = v

	if v && !wasAlive {
		reply, err := n.codec.Encode(true)
		if err == nil {
			n.t.Send(context.Background(), src, int(TagAlive), reply)
		}
	}
	if !v && wasAlive {
		n.reg.onPeerDied(src)
	}

	n.obs.OnEvent(context.Background(), observability.Event{
		Type:   "cluster.alive",
		Level:  observability.LevelVerbose,
		Source: "cluster.Node",
		Data:   map[string]any{"rank": src, "alive": v},
	})
}

// processInvalidated handles a peer's removal announcement: the local
// copy, if any, is no longer trustworthy and is dropped. If an insert
// filter is installed and wants the key, it's pulled fresh from src --
// mirroring the case where invalidation and reinsertion race each other.
func (n *Node[K]) processInvalidated(src int, body []byte) {
	var key K
	if err := n.codec.Decode(body, &key); err != nil {
		return
	}
	n.ar.Remove(key)
	n.maybePull(src, key)
}

// processInserted handles a peer's insert announcement the same way as an
// invalidation: the local copy is stale either way, and the filter gets
// the same opportunity to pull a fresh one.
func (n *Node[K]) processInserted(src int, body []byte) {
	var key K
	if err := n.codec.Decode(body, &key); err != nil {
		return
	}
	n.ar.Remove(key)
	n.maybePull(src, key)
}

func (n *Node[K]) maybePull(src int, key K) {
	if n.insertFilter == nil || !n.insertFilter(key) {
		return
	}
	n.pullFrom(context.Background(), src, key)
}

// processChangeKey applies a peer's key rename locally, if the old key is
// present.
func (n *Node[K]) processChangeKey(_ int, body []byte) {
	var kp wire.KeyPair[K]
	if err := n.codec.Decode(body, &kp); err != nil {
		return
	}
	n.ar.ChangeKey(kp.Old, kp.New)
}

// processRequest answers whether this node currently holds the requested
// key.
func (n *Node[K]) processRequest(src int, body []byte) {
	var req wire.Request[K]
	if err := n.codec.Decode(body, &req); err != nil {
		return
	}

	resp := wire.Response[K]{Request: req, Found: n.ar.IsAvailable(req.Key)}
	data, err := n.codec.Encode(resp)
	if err != nil {
		return
	}
	n.t.Send(context.Background(), src, int(TagResponse), data)
}

// processResponse records a peer's answer to one of this node's own
// outstanding requests.
func (n *Node[K]) processResponse(src int, body []byte) {
	var resp wire.Response[K]
	if err := n.codec.Decode(body, &resp); err != nil {
		return
	}
	n.reg.onResponse(resp.Request, src, resp.Found)
}

// processRequestData answers a targeted data pull: the key is loaded
// without evicting it from the buffer, since the requester asked for it
// specifically because this node said yes a moment ago.
func (n *Node[K]) processRequestData(src int, body []byte) {
	var req wire.Request[K]
	if err := n.codec.Decode(body, &req); err != nil {
		return
	}

	data, ok, err := n.ar.Load(req.Key, true)
	resp := wire.ResponseData[K]{Request: req, Valid: err == nil && ok, Data: data}
	payload, encErr := n.codec.Encode(resp)
	if encErr != nil {
		return
	}
	n.t.Send(context.Background(), src, int(TagResponseData), payload)
}

// processResponseData records the outcome of this node's data pull.
func (n *Node[K]) processResponseData(_ int, body []byte) {
	var resp wire.ResponseData[K]
	if err := n.codec.Decode(body, &resp); err != nil {
		return
	}
	n.reg.onResponseData(resp.Request, resp.Valid, resp.Data)
}
