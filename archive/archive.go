// Package archive provides a single-file, buffer-budgeted key/object store
// with least-recently-used eviction. Objects are addressed by a generic,
// comparable key; encoding of both keys and values is delegated to a
// wire.Codec so the archive itself never depends on a specific
// serialization format.
package archive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/archivekit/objectarchive/observability"
	"github.com/archivekit/objectarchive/wire"
)

// Archive stores keyed objects in a single backing file, holding up to a
// configured byte budget resident in memory and evicting the
// least-recently-touched entries to make room for new ones.
//
// Every method that touches the archive's state takes an internal mutex, so
// calls from multiple goroutines are serialized against each other.
type Archive[K comparable] struct {
	mu sync.Mutex

	path      string
	temporary bool

	codec wire.Codec
	obs   observability.Observer

	backing *backing
	entries map[K]*entry[K]
	mru     *mru[K]

	maxBufferSize int64
	bufferUsed    int64

	mustRebuild bool
	closed      bool
}

// New opens or creates an archive at path with the given configuration. An
// empty path is equivalent to NewTemp.
func New[K comparable](cfg Config, codec wire.Codec, obs observability.Observer) (*Archive[K], error) {
	if cfg.Path == "" {
		return NewTemp[K](cfg, codec, obs)
	}
	return open[K](cfg.Path, false, cfg, codec, obs)
}

// NewTemp creates an archive backed by a fresh temporary file that is
// removed on Close.
func NewTemp[K comparable](cfg Config, codec wire.Codec, obs observability.Observer) (*Archive[K], error) {
	f, err := os.CreateTemp("", "archive-*.bin")
	if err != nil {
		return nil, fmt.Errorf("archive: create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	return open[K](path, true, cfg, codec, obs)
}

// Open opens an existing or new archive file at path, ignoring cfg.Path.
func Open[K comparable](path string, cfg Config, codec wire.Codec, obs observability.Observer) (*Archive[K], error) {
	return open[K](path, false, cfg, codec, obs)
}

func open[K comparable](path string, temporary bool, cfg Config, codec wire.Codec, obs observability.Observer) (*Archive[K], error) {
	if codec == nil {
		codec = wire.GobCodec{}
	}
	if obs == nil {
		obs = observability.NoOpObserver{}
	}

	b, entries, err := openBacking[K](path, codec)
	if err != nil {
		return nil, err
	}

	if err := flockExclusive(b.file.Fd()); err != nil {
		b.close()
		return nil, fmt.Errorf("archive: lock %s: %w", path, err)
	}

	maxSize, err := cfg.resolvedBufferSize()
	if err != nil {
		b.close()
		return nil, fmt.Errorf("archive: parse buffer size: %w", err)
	}
	if maxSize <= 0 {
		maxSize = 1
	}

	a := &Archive[K]{
		path:          path,
		temporary:     temporary,
		codec:         codec,
		obs:           obs,
		backing:       b,
		entries:       entries,
		mru:           newMRU[K](),
		maxBufferSize: maxSize,
	}

	a.obs.OnEvent(context.Background(), observability.Event{
		Type:   "archive.opened",
		Level:  observability.LevelInfo,
		Source: path,
		Data:   map[string]any{"entries": len(entries), "max_buffer_size": maxSize},
	})

	return a, nil
}

// Close unloads the buffer to disk, rebuilds the file if it has pending
// removals or writes, releases the file lock and closes the file. A
// temporary archive's backing file is then deleted.
func (a *Archive[K]) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	if err := a.internalFlush(); err != nil {
		return err
	}

	funlock(a.backing.file.Fd())
	err := a.backing.close()
	a.closed = true

	if a.temporary {
		os.Remove(a.path)
	}

	return err
}

// IsAvailable reports whether key currently has an entry, resident or not.
func (a *Archive[K]) IsAvailable(key K) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.entries[key]
	return ok
}

// Keys returns every key currently tracked, in no particular order.
func (a *Archive[K]) Keys() []K {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]K, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	return keys
}

// Remove deletes key's entry, if present. The underlying file space is
// reclaimed only on the next rebuild (Flush or Close).
func (a *Archive[K]) Remove(key K) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remove(key)
}

func (a *Archive[K]) remove(key K) error {
	if a.closed {
		return ErrClosed
	}

	e, ok := a.entries[key]
	if !ok {
		return nil
	}

	if e.resident() {
		a.bufferUsed -= e.size
	}
	delete(a.entries, key)
	a.mru.remove(e)
	a.mustRebuild = true

	return nil
}

// Insert stores value under key, evicting least-recently-touched entries as
// needed to respect the buffer budget. If keepInBuffer is false, or value is
// larger than the configured budget, the entry is written to disk
// immediately and not held resident.
func (a *Archive[K]) Insert(key K, value []byte, keepInBuffer bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	size := int64(len(value))
	if size > a.maxBufferSize {
		keepInBuffer = false
	}

	if err := a.remove(key); err != nil {
		return err
	}

	if size+a.bufferUsed > a.maxBufferSize && keepInBuffer {
		if err := a.unload(a.maxBufferSize - size); err != nil {
			return err
		}
	}

	a.bufferUsed += size

	e := &entry[K]{key: key, data: value, size: size, modified: true}
	a.entries[key] = e
	a.mru.touch(e)

	if !keepInBuffer {
		if err := a.writeBack(key); err != nil {
			return err
		}
	}

	a.obs.OnEvent(context.Background(), observability.Event{
		Type:   "archive.inserted",
		Level:  observability.LevelVerbose,
		Source: a.path,
		Data:   map[string]any{"size": size, "resident": keepInBuffer},
	})

	return nil
}

// Load retrieves the bytes stored under key. ok is false if key has no
// entry. If keepInBuffer is false, the entry is evicted to disk after the
// read and the returned slice may alias the entry's now-discarded buffer.
func (a *Archive[K]) Load(key K, keepInBuffer bool) (data []byte, ok bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, false, ErrClosed
	}

	e, found := a.entries[key]
	if !found {
		return nil, false, nil
	}

	size := e.size
	if size > a.maxBufferSize {
		keepInBuffer = false
	}

	if !e.resident() {
		if size+a.bufferUsed > a.maxBufferSize {
			if err := a.unload(a.maxBufferSize - size); err != nil {
				return nil, false, err
			}
		}

		buf, err := a.backing.readAt(e.offset, size)
		if err != nil {
			return nil, false, fmt.Errorf("archive: read %v: %w", key, err)
		}
		e.data = buf
		a.bufferUsed += size
		e.modified = false
	}

	a.mru.touch(e)

	result := e.data
	if !keepInBuffer {
		if err := a.writeBack(key); err != nil {
			return nil, false, err
		}
	} else {
		result = append([]byte(nil), e.data...)
	}

	a.obs.OnEvent(context.Background(), observability.Event{
		Type:   "archive.loaded",
		Level:  observability.LevelVerbose,
		Source: a.path,
		Data:   map[string]any{"size": size, "resident": keepInBuffer},
	})

	return result, true, nil
}

// ChangeKey renames an entry's key in place, leaving its data and buffer
// residency untouched.
func (a *Archive[K]) ChangeKey(oldKey, newKey K) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	e, ok := a.entries[oldKey]
	if !ok {
		return ErrNotFound
	}

	if oldKey == newKey {
		return nil
	}

	// Only remove an existing newKey entry if it's a different one than
	// the entry being renamed; renaming never collides with itself.
	if existing, ok := a.entries[newKey]; ok && existing != e {
		if err := a.remove(newKey); err != nil {
			return err
		}
	}

	delete(a.entries, oldKey)
	e.key = newKey
	a.entries[newKey] = e
	a.mustRebuild = true

	return nil
}

// WriteBack persists key's in-memory data to the backing file, if modified,
// and evicts it from the buffer. It is a no-op if key is absent or already
// non-resident with no pending modification.
func (a *Archive[K]) WriteBack(key K) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	return a.writeBack(key)
}

func (a *Archive[K]) writeBack(key K) error {
	e, ok := a.entries[key]
	if !ok || !e.resident() {
		return nil
	}

	if e.modified {
		offset, err := a.backing.appendData(e.data)
		if err != nil {
			return fmt.Errorf("archive: write back %v: %w", key, err)
		}
		e.offset = offset
		e.persisted = true
		e.modified = false
		a.mustRebuild = true
	}

	a.bufferUsed -= e.size
	e.data = nil
	a.mru.remove(e)

	return nil
}

// Unload evicts least-recently-touched entries, writing modified ones back,
// until the resident buffer is at or below desiredSize.
func (a *Archive[K]) Unload(desiredSize int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	return a.unload(desiredSize)
}

func (a *Archive[K]) unload(desiredSize int64) error {
	for a.bufferUsed > desiredSize {
		victim := a.mru.back()
		if victim == nil {
			break
		}
		if err := a.writeBack(victim.key); err != nil {
			return err
		}
	}
	return nil
}

// Flush unloads the buffer and, if there are pending removals or writes,
// rebuilds the backing file so every entry is laid out contiguously from a
// fresh header.
func (a *Archive[K]) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	return a.internalFlush()
}

func (a *Archive[K]) internalFlush() error {
	if err := a.unload(0); err != nil {
		return err
	}

	if !a.mustRebuild {
		return nil
	}
	a.mustRebuild = false

	b, err := rebuild[K](a.path, a.backing, a.entries, a.codec, a.maxBufferSize)
	if err != nil {
		a.mustRebuild = true
		return err
	}
	a.backing = b
	if err := flockExclusive(b.file.Fd()); err != nil {
		return fmt.Errorf("archive: lock %s: %w", a.path, err)
	}

	a.obs.OnEvent(context.Background(), observability.Event{
		Type:   "archive.rebuilt",
		Level:  observability.LevelInfo,
		Source: a.path,
		Data:   map[string]any{"entries": len(a.entries)},
	})

	return nil
}

// Clear removes every entry and rebuilds the backing file to an empty
// header.
func (a *Archive[K]) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	a.entries = make(map[K]*entry[K])
	a.mru = newMRU[K]()
	a.bufferUsed = 0
	a.mustRebuild = true

	return a.internalFlush()
}

// SetBufferSize changes the resident byte budget, evicting entries
// immediately if the new size is smaller than what's currently resident.
func (a *Archive[K]) SetBufferSize(size int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if size <= 0 {
		size = 1
	}

	if err := a.unload(size); err != nil {
		return err
	}
	a.maxBufferSize = size
	return nil
}

// SetBufferSizeFromString parses a human size string (e.g. "1.5G") and
// applies it via SetBufferSize.
func (a *Archive[K]) SetBufferSizeFromString(s string) error {
	size, err := ParseSize(s)
	if err != nil {
		return fmt.Errorf("archive: parse buffer size %q: %w", s, err)
	}
	return a.SetBufferSize(size)
}

// SetBufferSizeFromRAMFraction sizes the buffer to a fraction of currently
// free system RAM.
func (a *Archive[K]) SetBufferSizeFromRAMFraction(fraction float64) error {
	return a.SetBufferSize(ramFraction(fraction))
}

// BufferUsed returns the number of bytes currently resident.
func (a *Archive[K]) BufferUsed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferUsed
}

// Path returns the backing file's path.
func (a *Archive[K]) Path() string {
	return a.path
}
