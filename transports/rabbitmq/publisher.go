package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/model"
)

// Publisher sends messages to the topic exchange. Implements mailbus.Publisher.
type Publisher struct {
	ch       Channel
	exchange string
	logger   mailbus.Logger
}

var _ mailbus.Publisher = (*Publisher)(nil)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// WithPublisherExchange overrides DefaultExchange.
func WithPublisherExchange(exchange string) PublisherOption {
	return func(p *Publisher) error {
		if exchange == "" {
			return fmt.Errorf("exchange cannot be empty")
		}
		p.exchange = exchange
		return nil
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger mailbus.Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// NewPublisher declares the exchange and returns a publisher on ch.
func NewPublisher(ch Channel, opts ...PublisherOption) (*Publisher, error) {
	if ch == nil {
		return nil, mailbus.NewError(mailbus.ErrCodeConfiguration, "channel is required")
	}
	p := &Publisher{ch: ch, exchange: DefaultExchange, logger: &mailbus.NoopLogger{}}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, mailbus.NewErrorWithCause(mailbus.ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}
	if err := DeclareExchange(ch, p.exchange); err != nil {
		return nil, err
	}
	return p, nil
}

// Publish sends msg as a persistent JSON envelope with routing key domain.
func (p *Publisher) Publish(ctx context.Context, domain string, msg model.Message) error {
	if domain == "" {
		return mailbus.NewError(mailbus.ErrCodeValidation, "routing domain is required")
	}
	if domain != msg.Domain {
		return mailbus.NewError(mailbus.ErrCodeValidation,
			fmt.Sprintf("routing domain %q does not match message domain %q", domain, msg.Domain))
	}
	body, err := model.NewEnvelope(msg).Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, domain, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.ReceivedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s with key %s: %w", p.exchange, domain, err)
	}

	p.logger.Debugf("Published message %s to %s (routingKey=%s)", msg.ID, p.exchange, domain)
	return nil
}
