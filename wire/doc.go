// Package wire defines the object<->bytes serialization collaborator and the
// message payload shapes exchanged between archive nodes.
//
// Encoding and decoding are treated as a pluggable collaborator invoked
// solely through Encode(value) -> bytes and Decode(bytes) -> value, with the
// requirement that it round-trip deterministically per value. GobCodec is
// the concrete default; callers with a domain-specific key or value type are
// free to supply their own Codec.
package wire
