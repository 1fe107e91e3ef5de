package cluster_test

import (
	"context"
	"testing"
	"time"

	"github.com/archivekit/objectarchive/archive"
	"github.com/archivekit/objectarchive/cluster"
	"github.com/archivekit/objectarchive/transport"
	"github.com/archivekit/objectarchive/wire"
)

func newTestNode(t *testing.T, ctx context.Context, tr transport.Transport) *cluster.Node[string] {
	t.Helper()
	cfg := cluster.Config{Archive: archive.Config{MaxBufferSize: 1 << 20}}
	n, err := cluster.New[string](ctx, tr, cfg, wire.GobCodec{}, nil)
	if err != nil {
		t.Fatalf("cluster.New() error = %v", err)
	}
	return n
}

// pumpInBackground drains n's queue continuously until ctx is canceled. It
// must be the only goroutine touching n for the duration, matching a
// node's single-threaded-per-rank contract.
func pumpInBackground(ctx context.Context, n *cluster.Node[string]) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				n.Pump(ctx)
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func TestDistributedLoadFallsBackToPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transports := transport.NewLocalBus(2)
	node0 := newTestNode(t, ctx, transports[0])
	node1 := newTestNode(t, ctx, transports[1])
	defer node0.Close()
	defer node1.Close()

	if err := node0.Insert("greeting", []byte("hello"), true); err != nil {
		t.Fatalf("node0.Insert() error = %v", err)
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	pumpInBackground(bgCtx, node0)

	data, err := node1.Load(ctx, "greeting", true)
	if err != nil {
		t.Fatalf("node1.Load() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("node1.Load() = %q, want %q", data, "hello")
	}

	if !node1.IsAvailable("greeting") {
		t.Error("node1.IsAvailable() = false after remote fetch, want true")
	}
}

func TestDistributedLoadMissReturnsNotFound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	transports := transport.NewLocalBus(2)
	node0 := newTestNode(t, ctx, transports[0])
	node1 := newTestNode(t, ctx, transports[1])
	defer node0.Close()
	defer node1.Close()

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	pumpInBackground(bgCtx, node0)

	_, err := node1.Load(ctx, "never-inserted", true)
	if err != cluster.ErrNotFound {
		t.Errorf("node1.Load() error = %v, want ErrNotFound", err)
	}
}

func TestRemoveIsBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transports := transport.NewLocalBus(2)
	node0 := newTestNode(t, ctx, transports[0])
	node1 := newTestNode(t, ctx, transports[1])
	defer node0.Close()
	defer node1.Close()

	if err := node0.Insert("k", []byte("v"), true); err != nil {
		t.Fatalf("node0.Insert() error = %v", err)
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	pumpInBackground(bgCtx, node0)

	if _, err := node1.Load(ctx, "k", true); err != nil {
		t.Fatalf("node1.Load() error = %v", err)
	}
	if !node1.IsAvailable("k") {
		t.Fatal("node1.IsAvailable() = false after fetch, want true")
	}

	bgCancel()
	time.Sleep(5 * time.Millisecond) // let the background pump goroutine exit before driving node0 directly

	if err := node0.Remove("k"); err != nil {
		t.Fatalf("node0.Remove() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for node1.IsAvailable("k") && time.Now().Before(deadline) {
		node1.Pump(ctx)
		time.Sleep(time.Millisecond)
	}

	if node1.IsAvailable("k") {
		t.Error("node1.IsAvailable() = true after peer removed it, want false")
	}
}

func TestInsertFilterPullsFreshCopy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transports := transport.NewLocalBus(2)
	node0 := newTestNode(t, ctx, transports[0])
	node1 := newTestNode(t, ctx, transports[1])
	defer node0.Close()
	defer node1.Close()

	node1.SetInsertFilter(func(key string) bool { return key == "watched" })

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	pumpInBackground(bgCtx, node0)

	if err := node0.Insert("watched", []byte("fresh"), true); err != nil {
		t.Fatalf("node0.Insert() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !node1.IsAvailable("watched") && time.Now().Before(deadline) {
		node1.Pump(ctx)
		time.Sleep(time.Millisecond)
	}

	if !node1.IsAvailable("watched") {
		t.Fatal("node1 did not pull the watched key after node0's insert announcement")
	}
}
