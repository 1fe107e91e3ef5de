package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/archivekit/objectarchive/wire"
)

// rebuild rewrites the entire backing file from the current entry index:
// a fresh header followed by every entry's key and data, in map iteration
// order. It streams each entry's data through a bounded chunk buffer rather
// than loading the whole object, so a rebuild never needs memory
// proportional to the largest stored object.
//
// The new file is built at a temporary path and only swapped into place via
// rename once it is fully written and closed, so a crash mid-rebuild leaves
// the original file untouched. Unlike the format this is modeled on, Go's
// os.Rename already replaces an existing destination atomically on every
// platform this module targets, so there is no separate pre-rename removal
// step to get wrong.
func rebuild[K comparable](path string, b *backing, entries map[K]*entry[K], codec wire.Codec, chunkSize int64) (*backing, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".archive-rebuild-*")
	if err != nil {
		return nil, fmt.Errorf("archive: create rebuild temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeUint64(tmp, uint64(len(entries))); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}

	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	chunk := make([]byte, chunkSize)

	for key, e := range entries {
		keyBytes, err := codec.Encode(key)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, fmt.Errorf("archive: encode key during rebuild: %w", err)
		}

		if err := writeUint64(tmp, uint64(len(keyBytes))); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		if err := writeUint64(tmp, uint64(e.size)); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		if _, err := tmp.Write(keyBytes); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, err
		}

		newOffset, err := tmp.Seek(0, 1)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return nil, err
		}

		if e.resident() {
			if _, err := tmp.Write(e.data); err != nil {
				tmp.Close()
				os.Remove(tmpPath)
				return nil, err
			}
		} else {
			remaining := e.size
			readOffset := e.offset
			for remaining > 0 {
				n := chunkSize
				if remaining < n {
					n = remaining
				}
				if _, err := b.file.ReadAt(chunk[:n], readOffset); err != nil {
					tmp.Close()
					os.Remove(tmpPath)
					return nil, fmt.Errorf("archive: read during rebuild: %w", err)
				}
				if _, err := tmp.Write(chunk[:n]); err != nil {
					tmp.Close()
					os.Remove(tmpPath)
					return nil, err
				}
				readOffset += n
				remaining -= n
			}
		}

		e.offset = newOffset
		e.persisted = true
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := b.close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("archive: rename rebuild file into place: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: reopen rebuilt file: %w", err)
	}

	return &backing{path: path, file: f}, nil
}
