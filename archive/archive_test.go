package archive_test

import (
	"os"
	"testing"

	"github.com/archivekit/objectarchive/archive"
	"github.com/archivekit/objectarchive/wire"
)

func newTestArchive(t *testing.T, maxBufferSize int64) *archive.Archive[string] {
	t.Helper()
	path := t.TempDir() + "/test.bin"
	a, err := archive.Open[string](path, archive.Config{MaxBufferSize: maxBufferSize}, wire.GobCodec{}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestInsertLoadRoundTrip(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	if err := a.Insert("greeting", []byte("hello"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	data, ok, err := a.Load("greeting", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() ok = false, want true")
	}
	if string(data) != "hello" {
		t.Errorf("Load() = %q, want %q", data, "hello")
	}
}

func TestLoadMissingKey(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	_, ok, err := a.Load("nope", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Fatal("Load() ok = true for missing key, want false")
	}
}

func TestRemove(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	if err := a.Insert("k", []byte("v"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := a.Remove("k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if a.IsAvailable("k") {
		t.Error("IsAvailable() = true after Remove, want false")
	}
}

func TestInsertNotKeptInBufferWritesThrough(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	if err := a.Insert("k", []byte("persisted"), false); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := a.BufferUsed(); got != 0 {
		t.Errorf("BufferUsed() = %d, want 0 (entry written straight through)", got)
	}

	data, ok, err := a.Load("k", false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || string(data) != "persisted" {
		t.Errorf("Load() = (%q, %v), want (\"persisted\", true)", data, ok)
	}
}

func TestEvictionRespectsBufferBudget(t *testing.T) {
	a := newTestArchive(t, 10)

	if err := a.Insert("a", []byte("12345"), true); err != nil {
		t.Fatalf("Insert(a) error = %v", err)
	}
	if err := a.Insert("b", []byte("67890"), true); err != nil {
		t.Fatalf("Insert(b) error = %v", err)
	}
	// Inserting c forces eviction of a, the least recently touched.
	if err := a.Insert("c", []byte("abcde"), true); err != nil {
		t.Fatalf("Insert(c) error = %v", err)
	}

	if got := a.BufferUsed(); got > 10 {
		t.Errorf("BufferUsed() = %d, want <= 10", got)
	}

	// a should still be retrievable from disk even though evicted from
	// the buffer.
	data, ok, err := a.Load("a", true)
	if err != nil {
		t.Fatalf("Load(a) error = %v", err)
	}
	if !ok || string(data) != "12345" {
		t.Errorf("Load(a) = (%q, %v), want (\"12345\", true)", data, ok)
	}
}

func TestChangeKey(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	if err := a.Insert("old", []byte("value"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := a.ChangeKey("old", "new"); err != nil {
		t.Fatalf("ChangeKey() error = %v", err)
	}

	if a.IsAvailable("old") {
		t.Error("IsAvailable(old) = true after ChangeKey, want false")
	}

	data, ok, err := a.Load("new", true)
	if err != nil {
		t.Fatalf("Load(new) error = %v", err)
	}
	if !ok || string(data) != "value" {
		t.Errorf("Load(new) = (%q, %v), want (\"value\", true)", data, ok)
	}
}

func TestChangeKeyToSameKeyIsNoOp(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	if err := a.Insert("k", []byte("value"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	before := a.BufferUsed()

	if err := a.ChangeKey("k", "k"); err != nil {
		t.Fatalf("ChangeKey() error = %v", err)
	}

	if got := a.BufferUsed(); got != before {
		t.Errorf("BufferUsed() after ChangeKey(k, k) = %d, want %d", got, before)
	}

	// The entry must still be reachable by eviction: Unload(0) should write
	// it back and free its buffer space.
	if err := a.Unload(0); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if got := a.BufferUsed(); got != 0 {
		t.Errorf("BufferUsed() after Unload(0) = %d, want 0", got)
	}

	data, ok, err := a.Load("k", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || string(data) != "value" {
		t.Errorf("Load(k) = (%q, %v), want (\"value\", true)", data, ok)
	}
}

func TestWriteBackOnNonResidentIsNoOp(t *testing.T) {
	a := newTestArchive(t, 1<<20)

	if err := a.Insert("k", []byte("value"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := a.WriteBack("k"); err != nil {
		t.Fatalf("WriteBack() error = %v", err)
	}
	if got := a.BufferUsed(); got != 0 {
		t.Fatalf("BufferUsed() after first WriteBack = %d, want 0", got)
	}

	// A second WriteBack on the now-non-resident entry must not further
	// decrement BufferUsed.
	if err := a.WriteBack("k"); err != nil {
		t.Fatalf("WriteBack() (second call) error = %v", err)
	}
	if got := a.BufferUsed(); got != 0 {
		t.Errorf("BufferUsed() after second WriteBack = %d, want 0", got)
	}
}

func TestFlushRebuildsAndSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/test.bin"

	a, err := archive.Open[string](path, archive.Config{MaxBufferSize: 1 << 20}, wire.GobCodec{}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := a.Insert("k1", []byte("v1"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := a.Insert("k2", []byte("v2"), false); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := a.Remove("k2"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := archive.Open[string](path, archive.Config{MaxBufferSize: 1 << 20}, wire.GobCodec{}, nil)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer reopened.Close()

	if reopened.IsAvailable("k2") {
		t.Error("IsAvailable(k2) = true after reopen, want false (removed before flush)")
	}

	data, ok, err := reopened.Load("k1", true)
	if err != nil {
		t.Fatalf("Load(k1) error = %v", err)
	}
	if !ok || string(data) != "v1" {
		t.Errorf("Load(k1) = (%q, %v), want (\"v1\", true)", data, ok)
	}
}

func TestClosedArchiveRejectsOperations(t *testing.T) {
	a := newTestArchive(t, 1<<20)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := a.Insert("k", []byte("v"), true); err != archive.ErrClosed {
		t.Errorf("Insert() after Close() error = %v, want ErrClosed", err)
	}
}

func TestTempArchiveRemovedOnClose(t *testing.T) {
	a, err := archive.NewTemp[string](archive.DefaultConfig(), wire.GobCodec{}, nil)
	if err != nil {
		t.Fatalf("NewTemp() error = %v", err)
	}
	path := a.Path()

	if err := a.Insert("k", []byte("v"), true); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temp file still exists after Close(): %v", err)
	}
}
