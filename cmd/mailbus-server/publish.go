package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregx/mailbus/model"
	"github.com/coregx/mailbus/transform"
	"github.com/coregx/mailbus/transports/rabbitmq"
)

func newPublishCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "publish <address> <body>",
		Short:   "Publish one email to RabbitMQ",
		Example: `  mailbus-server publish bob@gmail.com "Hello"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(func(ctx context.Context) error {
				return a.publish(ctx, args[0], args[1])
			})(cmd, args)
		},
	}
}

func (a *app) publish(ctx context.Context, address, body string) error {
	transformer, err := transform.ByName(a.cfg.Routing.Transform)
	if err != nil {
		return err
	}

	ch, closeAMQP, err := a.dialAMQP()
	if err != nil {
		return err
	}
	defer func() { _ = closeAMQP() }()

	pub, err := rabbitmq.NewPublisher(ch,
		rabbitmq.WithPublisherExchange(a.cfg.AMQP.Exchange),
		rabbitmq.WithPublisherLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	msg := model.NewMessage(address, transformer.Transform(body))
	if err := pub.Publish(ctx, msg.Domain, msg); err != nil {
		return err
	}

	a.logger.Infof("Published %s to %s (routingKey=%s)", msg.ID, a.cfg.AMQP.Exchange, msg.Domain)
	return nil
}
