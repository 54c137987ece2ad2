package mailbus

import (
	"fmt"

	"github.com/coregx/mailbus/metrics"
)

// Option configures a Broker.
//
// Example:
//
//	broker, err := mailbus.NewBroker(
//	    mailbus.WithStore(store),
//	    mailbus.WithResolver(resolver),
//	    mailbus.WithLogger(logger),
//	    mailbus.WithAutoPartition(false), // optional
//	)
type Option func(*Broker) error

// WithStore sets the persistence backend. Required.
//
// Usually a *Store; anything implementing Backend works.
func WithStore(backend Backend) Option {
	return func(b *Broker) error {
		if backend == nil {
			return fmt.Errorf("backend cannot be nil")
		}
		b.backend = backend
		return nil
	}
}

// WithResolver sets the domain-to-bucket mapping.
// Optional - defaults to a resolver over DefaultDedicatedDomains.
//
// The same resolver must back the write path and every listing, so pass the
// instance you also use elsewhere rather than building a second one.
func WithResolver(resolver *Resolver) Option {
	return func(b *Broker) error {
		if resolver == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		b.resolver = resolver
		return nil
	}
}

// WithLogger sets the logger for the broker, its router and its consumers.
func WithLogger(logger Logger) Option {
	return func(b *Broker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) error {
		if m == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		b.metrics = m
		return nil
	}
}

// WithAlerts sets the alert service notified when a bucket stays
// unreachable for the whole connect budget.
// Optional - defaults to NoOpAlertService.
func WithAlerts(service AlertService) Option {
	return func(b *Broker) error {
		if service == nil {
			return fmt.Errorf("alert service cannot be nil")
		}
		b.alerts = service
		return nil
	}
}

// WithAutoPartition controls whether Publish creates a partition and
// consumer for every new domain. Default true.
//
// Disable it when consumers are bound explicitly with ConsumeLoopFor, e.g. a
// catch-all consumer next to one consumer per dedicated domain.
func WithAutoPartition(enabled bool) Option {
	return func(b *Broker) error {
		b.autoPartition = enabled
		return nil
	}
}
