package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is a transformed email travelling from a publisher to a domain consumer.
// Messages are immutable once created.
//
// Domain is derived from Address exactly once, in NewMessage, and is used as the
// routing key for delivery and as the domain recorded on persistence. Downstream
// components never recompute it.
type Message struct {
	ID              string    `json:"id"`              // Unique message ID (UUID)
	Address         string    `json:"address"`         // Recipient address
	TransformedBody string    `json:"transformedBody"` // Body after the transform step
	Domain          string    `json:"domain"`          // Routing key, derived from Address
	ReceivedAt      time.Time `json:"receivedAt"`      // When the front end accepted the message
}

// NewMessage creates a message for the given address and already-transformed body.
func NewMessage(address, transformedBody string) Message {
	return newMessage(address, transformedBody, ExtractDomain(address))
}

// NewMessageForDomain creates a message whose domain was supplied out of band,
// typically the routing key of a broker delivery. An empty domain falls back to
// extraction from the address.
func NewMessageForDomain(address, transformedBody, domain string) Message {
	if domain == "" {
		domain = ExtractDomain(address)
	}
	return newMessage(address, transformedBody, domain)
}

func newMessage(address, transformedBody, domain string) Message {
	return Message{
		ID:              uuid.NewString(),
		Address:         address,
		TransformedBody: transformedBody,
		Domain:          domain,
		ReceivedAt:      time.Now(),
	}
}
