package archive

import (
	"encoding/binary"
	"io"
)

// The backing file is a single flat stream:
//
//	u64          n_entries
//	n_entries x  { u64 key_len, u64 data_len, key_len bytes, data_len bytes }
//
// That header+record layout is only ever current immediately after a
// rebuild (see rebuild.go). Between rebuilds, write-back appends raw
// object bytes past the end of the last record with no length prefix at
// all -- their offset and size live solely in the in-memory index, exactly
// as the file they are modeled on does. Opening a file therefore only ever
// trusts the header and the records it describes; anything appended after
// is addressed by offset, never walked.
const headerFieldSize = 8

func writeUint64(w io.Writer, v uint64) error {
	var buf [headerFieldSize]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [headerFieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
