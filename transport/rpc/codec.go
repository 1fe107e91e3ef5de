package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ackFieldOK is the protobuf field number used for Ack.OK.
const ackFieldOK protowire.Number = 1

// deliveryCodec implements connect.Codec for the two message types this
// service exchanges. Envelope, an opaque byte payload plus routing
// metadata, is encoded with gob -- the same default this module uses for
// every other wire payload. Ack, a single boolean, is hand-encoded as a
// one-field protobuf message with protowire's low-level append/consume
// API: a message this small doesn't need generated descriptors to gain
// protobuf's wire format.
type deliveryCodec struct{}

func (deliveryCodec) Name() string { return "archivecluster" }

func (deliveryCodec) Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *Envelope:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
			return nil, fmt.Errorf("rpc: marshal envelope: %w", err)
		}
		return buf.Bytes(), nil
	case *Ack:
		var buf []byte
		buf = protowire.AppendTag(buf, ackFieldOK, protowire.VarintType)
		var b uint64
		if msg.OK {
			b = 1
		}
		buf = protowire.AppendVarint(buf, b)
		return buf, nil
	default:
		return nil, fmt.Errorf("rpc: marshal: unsupported type %T", v)
	}
}

func (deliveryCodec) Unmarshal(data []byte, v any) error {
	switch msg := v.(type) {
	case *Envelope:
		if len(data) == 0 {
			return fmt.Errorf("rpc: unmarshal envelope: empty payload")
		}
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(msg); err != nil {
			return fmt.Errorf("rpc: unmarshal envelope: %w", err)
		}
		return nil
	case *Ack:
		for len(data) > 0 {
			num, typ, n := protowire.ConsumeTag(data)
			if n < 0 {
				return fmt.Errorf("rpc: unmarshal ack: invalid tag: %w", protowire.ParseError(n))
			}
			data = data[n:]

			if num == ackFieldOK && typ == protowire.VarintType {
				val, n := protowire.ConsumeVarint(data)
				if n < 0 {
					return fmt.Errorf("rpc: unmarshal ack: invalid varint: %w", protowire.ParseError(n))
				}
				msg.OK = val != 0
				data = data[n:]
				continue
			}

			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("rpc: unmarshal ack: invalid field: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
		return nil
	default:
		return fmt.Errorf("rpc: unmarshal: unsupported type %T", v)
	}
}
