package wire_test

import (
	"testing"

	"github.com/archivekit/objectarchive/wire"
)

func TestGobCodec_RoundTrip(t *testing.T) {
	codec := wire.GobCodec{}

	req := wire.Request[string]{Key: "file.txt", Counter: 7}

	data, err := codec.Encode(req)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got wire.Request[string]
	if err := codec.Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got != req {
		t.Errorf("Decode() = %+v, want %+v", got, req)
	}
}

func TestGobCodec_ResponseData(t *testing.T) {
	codec := wire.GobCodec{}

	resp := wire.ResponseData[int]{
		Request: wire.Request[int]{Key: 42, Counter: 1},
		Valid:   true,
		Data:    []byte("hello"),
	}

	data, err := codec.Encode(resp)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got wire.ResponseData[int]
	if err := codec.Decode(data, &got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Request != resp.Request || got.Valid != resp.Valid || string(got.Data) != string(resp.Data) {
		t.Errorf("Decode() = %+v, want %+v", got, resp)
	}
}
