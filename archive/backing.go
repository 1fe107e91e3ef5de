package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/archivekit/objectarchive/wire"
)

// backing owns the single on-disk file an Archive reads and writes through.
type backing struct {
	path string
	file *os.File
}

// openBacking opens path for read/write, creating it if absent. If the file
// is non-empty, its header and records are parsed into entries; a zero-length
// file is treated as freshly created. A file that exists but whose header
// cannot be parsed is reported as ErrCorrupt rather than silently truncated,
// since silently truncating would discard whatever the caller already
// trusted was on disk.
func openBacking[K comparable](path string, codec wire.Codec) (*backing, map[K]*entry[K], error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("archive: stat %s: %w", path, err)
	}

	entries := make(map[K]*entry[K])
	if info.Size() > 0 {
		if err := parseHeader(f, codec, entries); err != nil {
			f.Close()
			return nil, nil, err
		}
	} else {
		if err := writeUint64(f, 0); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("archive: write initial header to %s: %w", path, err)
		}
	}

	return &backing{path: path, file: f}, entries, nil
}

func parseHeader[K comparable](f *os.File, codec wire.Codec, entries map[K]*entry[K]) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	nEntries, err := readUint64(f)
	if err != nil {
		return fmt.Errorf("%w: reading entry count: %v", ErrCorrupt, err)
	}

	for i := uint64(0); i < nEntries; i++ {
		keyLen, err := readUint64(f)
		if err != nil {
			return fmt.Errorf("%w: reading key length: %v", ErrCorrupt, err)
		}
		dataLen, err := readUint64(f)
		if err != nil {
			return fmt.Errorf("%w: reading data length: %v", ErrCorrupt, err)
		}

		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(f, keyBytes); err != nil {
			return fmt.Errorf("%w: reading key: %v", ErrCorrupt, err)
		}

		var key K
		if err := codec.Decode(keyBytes, &key); err != nil {
			return fmt.Errorf("%w: decoding key: %v", ErrCorrupt, err)
		}

		offset, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		entries[key] = &entry[K]{
			key:       key,
			offset:    offset,
			size:      int64(dataLen),
			persisted: true,
		}

		if _, err := f.Seek(int64(dataLen), io.SeekCurrent); err != nil {
			return fmt.Errorf("%w: skipping data: %v", ErrCorrupt, err)
		}
	}

	return nil
}

// appendData writes data to the end of the file and returns the offset it
// was written at.
func (b *backing) appendData(data []byte) (int64, error) {
	offset, err := b.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := b.file.Write(data); err != nil {
		return 0, err
	}
	return offset, nil
}

// readAt reads size bytes starting at offset.
func (b *backing) readAt(offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := b.file.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *backing) close() error {
	return b.file.Close()
}
