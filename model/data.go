// Package model contains the value types that flow through the mailbus pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEnvelope is returned when a broker payload cannot be decoded.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the JSON payload carried by the broker.
// The routing key travels out of band and is not part of the payload.
type Envelope struct {
	Address       string `json:"address"`
	EncryptedBody string `json:"encryptedBody"`
}

// NewEnvelope builds the broker payload for a message.
func NewEnvelope(msg Message) Envelope {
	return Envelope{
		Address:       msg.Address,
		EncryptedBody: msg.TransformedBody,
	}
}

// DecodeEnvelope parses a broker payload. Unknown fields are ignored so that
// producers may add metadata without breaking consumers.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(env.Address) == "" {
		return env, fmt.Errorf("%w: address is required", ErrMalformedEnvelope)
	}
	return env, nil
}

// Encode serializes the envelope for publishing.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Message converts the envelope into a pipeline message. A non-empty routing
// key is used as the domain so that the stored domain equals the delivered one.
func (e Envelope) Message(routingKey string) Message {
	return NewMessageForDomain(e.Address, e.EncryptedBody, routingKey)
}
