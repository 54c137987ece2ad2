// Package rabbitmq carries mailbus messages over a RabbitMQ topic exchange.
//
// Producers publish a JSON envelope with the domain as routing key.
// Consumers declare a durable "<name>-queue", bind it with "#" (everything)
// or an exact domain, and forward deliveries into a mailbus.PartitionQueue
// where a mailbus.Consumer persists them.
package rabbitmq

import (
	"context"
	"fmt"
	"net/url"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coregx/mailbus"
)

// DefaultExchange is the topic exchange messages are published to.
const DefaultExchange = "emails"

// Channel is the subset of *amqp.Channel used by this package.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

var _ Channel = (*amqp.Channel)(nil)

// Connect dials url and opens one channel.
// The caller closes the connection, which also closes the channel.
func Connect(rawURL string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", SanitizeURL(rawURL), err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// DeclareExchange declares the durable topic exchange.
func DeclareExchange(ch Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// QueueName returns the queue a consumer called name reads from.
func QueueName(name string) string {
	return name + "-queue"
}

// BindingKey converts a domain filter into an AMQP binding key: the
// catch-all pattern (and its "*" alias) becomes "#", anything else is an
// exact domain.
func BindingKey(filter string) string {
	return mailbus.NormalizePattern(filter)
}

// SanitizeURL removes the password from an AMQP URL so it can be logged.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
