package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/metrics"
	"github.com/coregx/mailbus/model"
)

// ErrDeliveriesClosed is returned by Forward when the server cancels the
// consumer or the channel closes.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Subscriber moves deliveries from a RabbitMQ queue into a partition queue.
type Subscriber struct {
	ch       Channel
	exchange string
	prefetch int
	logger   mailbus.Logger
	metrics  *metrics.Metrics
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber) error

// WithSubscriberExchange overrides DefaultExchange.
func WithSubscriberExchange(exchange string) SubscriberOption {
	return func(s *Subscriber) error {
		if exchange == "" {
			return fmt.Errorf("exchange cannot be empty")
		}
		s.exchange = exchange
		return nil
	}
}

// WithPrefetch sets the channel prefetch count. Default 10.
func WithPrefetch(n int) SubscriberOption {
	return func(s *Subscriber) error {
		if n <= 0 {
			return fmt.Errorf("prefetch must be > 0, got %d", n)
		}
		s.prefetch = n
		return nil
	}
}

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(logger mailbus.Logger) SubscriberOption {
	return func(s *Subscriber) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithSubscriberMetrics counts malformed deliveries.
func WithSubscriberMetrics(m *metrics.Metrics) SubscriberOption {
	return func(s *Subscriber) error {
		s.metrics = m
		return nil
	}
}

// NewSubscriber returns a subscriber on ch.
func NewSubscriber(ch Channel, opts ...SubscriberOption) (*Subscriber, error) {
	if ch == nil {
		return nil, mailbus.NewError(mailbus.ErrCodeConfiguration, "channel is required")
	}
	s := &Subscriber{ch: ch, exchange: DefaultExchange, prefetch: 10, logger: &mailbus.NoopLogger{}}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, mailbus.NewErrorWithCause(mailbus.ErrCodeConfiguration, "failed to apply subscriber option", err)
		}
	}
	return s, nil
}

// Bind declares the exchange and the durable queue for consumer name, and
// binds the queue with the key derived from filter. Returns the queue name.
func (s *Subscriber) Bind(name, filter string) (string, error) {
	if name == "" {
		return "", mailbus.NewError(mailbus.ErrCodeValidation, "consumer name is required")
	}
	key := BindingKey(filter)
	if key == "" {
		return "", mailbus.NewError(mailbus.ErrCodeValidation, "domain filter is required")
	}

	if err := DeclareExchange(s.ch, s.exchange); err != nil {
		return "", err
	}
	q, err := s.ch.QueueDeclare(QueueName(name), true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", QueueName(name), err)
	}
	if err := s.ch.QueueBind(q.Name, key, s.exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind queue %s to %s with %s: %w", q.Name, s.exchange, key, err)
	}

	s.logger.Infof("Queue %s bound to exchange %s with key %s", q.Name, s.exchange, key)
	return q.Name, nil
}

// Forward consumes queue and enqueues every delivery on target until ctx is
// done. A delivery is acked only once the consumer draining target is done
// with it, so deliveries not yet persisted are redelivered after a crash.
// Malformed payloads are logged, counted and acked so they are not
// redelivered forever.
func (s *Subscriber) Forward(ctx context.Context, queue string, target *mailbus.PartitionQueue) error {
	if err := s.ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	deliveries, err := s.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	s.logger.Infof("Forwarding %s to partition queue %s", queue, target.ID())

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			if err := s.forward(d, target); err != nil {
				return err
			}
		}
	}
}

func (s *Subscriber) forward(d amqp.Delivery, target *mailbus.PartitionQueue) error {
	env, err := model.DecodeEnvelope(d.Body)
	if err != nil {
		malformed := mailbus.NewErrorWithCause(mailbus.ErrCodeMalformedInput, "undecodable delivery", err)
		s.logger.Warnf("Dropping delivery %s (routingKey=%s): %v", d.MessageId, d.RoutingKey, malformed)
		s.metrics.Dropped("malformed")
		if ackErr := d.Ack(false); ackErr != nil {
			s.logger.Errorf("Ack of malformed delivery %s failed: %v", d.MessageId, ackErr)
		}
		return nil
	}

	msg := env.Message(d.RoutingKey)
	if err := target.EnqueueWithSettle(msg, s.settler(d)); err != nil {
		if nackErr := d.Nack(false, true); nackErr != nil {
			s.logger.Errorf("Nack of delivery %s failed: %v", d.MessageId, nackErr)
		}
		return fmt.Errorf("enqueue delivery %s: %w", d.MessageId, err)
	}
	return nil
}

// settler acks d once the consumer is done with it. Write failures were
// already retried, logged and alerted by the consumer, so they are acked too.
func (s *Subscriber) settler(d amqp.Delivery) func(error) {
	return func(writeErr error) {
		if writeErr != nil {
			s.logger.Warnf("Acking delivery %s after failed write: %v", d.MessageId, writeErr)
		}
		if err := d.Ack(false); err != nil {
			s.logger.Errorf("Ack of delivery %s failed: %v", d.MessageId, err)
		}
	}
}
