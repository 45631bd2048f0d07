package messaging

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type envelope struct {
	Headers map[string]string `cbor:"1,keyasint,omitempty"`
	Key     []byte            `cbor:"2,keyasint,omitempty"`
	Body    []byte            `cbor:"3,keyasint"`
}

func encodeEnvelope(msg Message) ([]byte, error) {
	b, err := cbor.Marshal(envelope{Headers: msg.Headers, Key: msg.Key, Body: msg.Body})
	if err != nil {
		return nil, fmt.Errorf("messaging: encode envelope: %w", err)
	}
	return b, nil
}

func decodeEnvelope(frame []byte) (Message, error) {
	var env envelope
	if err := cbor.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("messaging: decode envelope: %w", err)
	}
	return Message{Headers: env.Headers, Key: env.Key, Body: env.Body}, nil
}
