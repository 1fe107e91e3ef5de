package cluster

import "errors"

// Sentinel errors returned by Node operations.
var (
	// ErrClosed is returned by any operation on a Node after Close.
	ErrClosed = errors.New("cluster: closed")

	// ErrNotFound is returned when a key is not available locally or on
	// any currently-alive peer.
	ErrNotFound = errors.New("cluster: key not found on any alive node")
)
