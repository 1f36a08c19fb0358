package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/WebFirstLanguage/lanchat/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
)

// Codec converts messages to transport units and back
type Codec interface {
	Name() string
	Encode(m Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// envelope is the serialized form shared by all codecs. Pointer fields
// distinguish a missing key from a zero value.
type envelope struct {
	Type  *int    `json:"type" cbor:"type"`
	Field *string `json:"field" cbor:"field"`
	UUID  *string `json:"uuid" cbor:"uuid"`
}

func toEnvelope(m Message) (envelope, error) {
	if m == nil {
		return envelope{}, fmt.Errorf("cannot encode nil message")
	}
	kind := m.Kind()
	field := m.Payload()
	from := string(m.Sender())
	if !utf8.ValidString(field) || !utf8.ValidString(from) {
		return envelope{}, ErrInvalidUTF8
	}
	return envelope{Type: &kind, Field: &field, UUID: &from}, nil
}

func (e envelope) message() (Message, error) {
	switch {
	case e.Type == nil:
		return nil, messageError("missing key \"type\"", nil)
	case e.Field == nil:
		return nil, messageError("missing key \"field\"", nil)
	case e.UUID == nil:
		return nil, messageError("missing key \"uuid\"", nil)
	case *e.UUID == "":
		return nil, messageError("empty sender id", nil)
	}
	return NewMessage(*e.Type, identity.PeerID(*e.UUID), *e.Field), nil
}

// JSONCodec encodes envelopes as JSON objects, the default text encoding
type JSONCodec struct{}

// Name returns "json"
func (JSONCodec) Name() string { return "json" }

// Encode marshals the message envelope to JSON
func (JSONCodec) Encode(m Message) ([]byte, error) {
	env, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Decode accepts either encoding, see Decode
func (JSONCodec) Decode(data []byte) (Message, error) { return Decode(data) }

// CBORCodec encodes envelopes as canonical CBOR maps
type CBORCodec struct{}

// Name returns "cbor"
func (CBORCodec) Name() string { return "cbor" }

// Encode marshals the message envelope to canonical CBOR
func (CBORCodec) Encode(m Message) ([]byte, error) {
	env, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	data, err := cborcanon.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// Decode accepts either encoding, see Decode
func (CBORCodec) Decode(data []byte) (Message, error) { return Decode(data) }

// NewCodec returns the codec registered under name
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Decode parses one transport unit. JSON objects are recognized by their
// leading '{'; anything else is read as CBOR. All failures are *DecodeError.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, messageError("empty input", nil)
	}

	var env envelope
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, messageError("invalid json", err)
		}
	} else {
		if err := cborcanon.Unmarshal(data, &env); err != nil {
			return nil, messageError("invalid cbor", err)
		}
	}

	return env.message()
}
