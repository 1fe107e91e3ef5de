package wire

// KeyPair carries the old and new key of a change_key announcement.
type KeyPair[K any] struct {
	Old K
	New K
}

// Request identifies one outstanding remote lookup. Counter disambiguates
// multiple concurrent requests for the same key issued by the same
// requester -- a filter-driven pull triggered from inside an inserted
// handler can race a user-initiated load for the same key.
type Request[K comparable] struct {
	Key     K
	Counter int
}

// Response answers a Request with whether the responder currently holds
// the key.
type Response[K comparable] struct {
	Request Request[K]
	Found   bool
}

// ResponseData answers a request_data with the payload, when still present.
// Valid is false when the key was removed between the Response and the
// follow-up data request.
type ResponseData[K comparable] struct {
	Request Request[K]
	Valid   bool
	Data    []byte
}
