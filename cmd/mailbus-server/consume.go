package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/transports/rabbitmq"
)

func newConsumeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume one RabbitMQ queue and persist its messages",
		Long: `consume binds <consumer-name>-queue to the topic exchange with the domain
filter as binding key, forwards deliveries into a partition queue and
persists them through the configured storage driver.

With --domain-filter "*" the consumer receives every domain but skips the
dedicated ones, which have consumers of their own.`,
		Example: `  mailbus-server consume --consumer-name gmail --domain-filter gmail.com
  mailbus-server consume --consumer-name other --domain-filter '*'`,
		RunE: runE(a.consume),
	}
}

func (a *app) consume(ctx context.Context) error {
	cfg := a.cfg

	_, m := newRegistry()

	store, closeDriver, err := a.newStore(m)
	defer func() {
		if closeErr := closeDriver(); closeErr != nil {
			a.logger.Warnf("Failed to close storage driver: %v", closeErr)
		}
	}()
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	resolver, err := a.newResolver()
	if err != nil {
		return err
	}

	ch, closeAMQP, err := a.dialAMQP()
	if err != nil {
		return err
	}
	defer func() { _ = closeAMQP() }()

	sub, err := rabbitmq.NewSubscriber(ch,
		rabbitmq.WithSubscriberExchange(cfg.AMQP.Exchange),
		rabbitmq.WithSubscriberLogger(a.logger),
		rabbitmq.WithSubscriberMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}

	queueName, err := sub.Bind(cfg.AMQP.ConsumerName, cfg.AMQP.DomainFilter)
	if err != nil {
		return err
	}

	queue := mailbus.NewPartitionQueue(queueName)
	consumer, err := mailbus.NewConsumer(
		mailbus.WithConsumerQueue(queue, cfg.AMQP.DomainFilter),
		mailbus.WithConsumerBackend(store, resolver),
		mailbus.WithConsumerLogger(a.logger),
		mailbus.WithConsumerMetrics(m),
		mailbus.WithConsumerAlerts(mailbus.NewLoggingAlertService(a.logger)),
	)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// closing the queue lets the consumer drain what was already acked
		defer queue.Close()
		return sub.Forward(gctx, queueName, queue)
	})

	g.Go(func() error {
		stopTimer := context.AfterFunc(gctx, func() {
			time.AfterFunc(cfg.Server.ShutdownTimeout, consumer.Stop)
		})
		defer stopTimer()
		return consumer.Run(context.Background())
	})

	a.logger.Infof("Consumer %s running (queue=%s, filter=%s)",
		cfg.AMQP.ConsumerName, queueName, cfg.AMQP.DomainFilter)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Consumer stopped")
	return nil
}
