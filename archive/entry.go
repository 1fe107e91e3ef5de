package archive

import "container/list"

// entry is the in-memory bookkeeping record for one stored object. It tracks
// both where the object lives on disk (offset, size) and, while the object
// is resident in the buffer, its data and modification state.
type entry[K comparable] struct {
	key K

	// offset is the byte position of this entry's data within the
	// backing file. It is valid only when persisted is true.
	offset int64

	// size is the encoded length of data, on disk or in memory.
	size int64

	// data holds the object bytes while resident in the buffer. It is
	// nil when the entry has been evicted and must be re-read from disk.
	data []byte

	// modified marks an entry whose in-memory data has not yet been
	// written to the backing file.
	modified bool

	// persisted marks an entry that has an on-disk location at offset,
	// either from the initial load or from a prior write-back.
	persisted bool

	// elem is this entry's node in the owning mru list, or nil if the
	// entry currently holds no buffer residency.
	elem *list.Element
}

// resident reports whether the entry's data is currently held in the buffer.
func (e *entry[K]) resident() bool {
	return e.data != nil
}
