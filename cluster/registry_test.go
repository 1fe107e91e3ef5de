package cluster

import (
	"testing"

	"github.com/archivekit/objectarchive/transport"
)

func TestRegistryOnPeerDiedIgnoresUnrelatedTargetedRequest(t *testing.T) {
	r := newRegistry[string]()

	req := r.begin("k", 1, 0) // targeted pull addressed to rank 0 only

	r.onPeerDied(2) // an unrelated rank dying must not touch this request

	st, ok := r.snapshot(req)
	if !ok {
		t.Fatal("snapshot() ok = false, want true")
	}
	if st.waiting != 1 {
		t.Errorf("waiting after unrelated peer death = %d, want 1", st.waiting)
	}

	r.onPeerDied(0) // the actual target dying must resolve phase one

	st, ok = r.snapshot(req)
	if !ok {
		t.Fatal("snapshot() ok = false, want true")
	}
	if st.waiting != 0 {
		t.Errorf("waiting after target peer death = %d, want 0", st.waiting)
	}
}

func TestRegistryOnPeerDiedDecrementsBroadcastRequest(t *testing.T) {
	r := newRegistry[string]()

	req := r.begin("k", 2, transport.AnySource) // broadcast lookup, two alive peers

	r.onPeerDied(1)

	st, ok := r.snapshot(req)
	if !ok {
		t.Fatal("snapshot() ok = false, want true")
	}
	if st.waiting != 1 {
		t.Errorf("waiting after one of two peers died = %d, want 1", st.waiting)
	}
}

func TestRegistryOnPeerDiedForceResolvesDataPhase(t *testing.T) {
	r := newRegistry[string]()

	req := r.begin("k", 1, 0)
	r.onResponse(req, 0, true)

	st, ok := r.snapshot(req)
	if !ok || !st.found || st.foundAt != 0 {
		t.Fatalf("snapshot() after onResponse = %+v, ok=%v, want found at rank 0", st, ok)
	}

	r.onPeerDied(0) // the rank the data pull was waiting on

	st, ok = r.snapshot(req)
	if !ok {
		t.Fatal("snapshot() ok = false, want true")
	}
	if !st.dataValid || st.data != nil {
		t.Errorf("snapshot() after data-source death = %+v, want dataValid=true data=nil", st)
	}
}
