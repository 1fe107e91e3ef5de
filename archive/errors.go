package archive

import "errors"

// Sentinel errors returned by Archive operations.
var (
	// ErrClosed is returned by any operation on an Archive whose backing
	// file has already been closed.
	ErrClosed = errors.New("archive: closed")

	// ErrNotFound is returned by ChangeKey when the old key has no entry.
	// Load reports a missing key through its ok return value instead, and
	// WriteBack is a no-op for a key it doesn't have.
	ErrNotFound = errors.New("archive: key not found")

	// ErrTooLarge names the case of a single entry whose encoded size
	// exceeds the configured buffer budget. No Archive operation returns
	// it: Insert accepts such an entry without error, never holds it in
	// memory and writes it straight through to the backing file.
	ErrTooLarge = errors.New("archive: entry exceeds buffer size")

	// ErrCorrupt is returned when the backing file's header or a record
	// length cannot be parsed.
	ErrCorrupt = errors.New("archive: backing file is corrupt")
)
