package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/adapters/jsonfile"
	"github.com/coregx/mailbus/adapters/redisstore"
	"github.com/coregx/mailbus/adapters/relica"
	"github.com/coregx/mailbus/cmd/mailbus-server/internal/config"
	"github.com/coregx/mailbus/metrics"
	"github.com/coregx/mailbus/transports/rabbitmq"
)

// newRegistry returns a registry with the Go and process collectors and the
// pipeline metrics registered on it.
func newRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// newDriver builds the storage driver selected by cfg. The returned close
// function releases driver-wide resources and is never nil.
func newDriver(cfg config.StorageConfig) (mailbus.Driver, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.StorageFile:
		d, err := jsonfile.NewDriver(cfg.Dir)
		return d, noop, err
	case config.StorageSQL:
		d, err := relica.NewDriver(cfg.SQLDriver, cfg.DSN)
		return d, noop, err
	case config.StorageRedis:
		d, err := redisstore.NewDriverFromURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return d, d.Close, nil
	default:
		return nil, noop, mailbus.NewError(mailbus.ErrCodeConfiguration, fmt.Sprintf("unknown storage driver %q", cfg.Driver))
	}
}

// newStore wires the configured driver behind a Store.
func (a *app) newStore(m *metrics.Metrics) (*mailbus.Store, func() error, error) {
	driver, closeDriver, err := newDriver(a.cfg.Storage)
	if err != nil {
		return nil, closeDriver, err
	}

	store, err := mailbus.NewStore(
		mailbus.WithDriver(driver),
		mailbus.WithConnectStrategy(a.cfg.Storage.ConnectStrategy()),
		mailbus.WithStoreLogger(a.logger),
		mailbus.WithStoreMetrics(m),
	)
	if err != nil {
		return nil, closeDriver, err
	}

	a.logger.Infof("Storage: %s (connect schedule: %s)",
		driver.Name(), a.cfg.Storage.ConnectStrategy().GetRetrySchedule())
	return store, closeDriver, nil
}

func (a *app) newResolver() (*mailbus.Resolver, error) {
	return mailbus.NewResolver(a.cfg.Routing.DedicatedDomains...)
}

// dialAMQP connects to RabbitMQ. The returned function closes the
// connection and its channel.
func (a *app) dialAMQP() (rabbitmq.Channel, func() error, error) {
	conn, ch, err := rabbitmq.Connect(a.cfg.AMQP.URL)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Infof("Connected to RabbitMQ at %s", rabbitmq.SanitizeURL(a.cfg.AMQP.URL))
	return ch, conn.Close, nil
}
