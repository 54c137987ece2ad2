package mailbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/coregx/mailbus/metrics"
	"github.com/coregx/mailbus/model"
)

// Publisher accepts messages for delivery under a domain routing key.
// Implemented by *Broker and by transports/rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, domain string, msg model.Message) error
}

// Broker is the in-process pipeline: a Router feeding partition queues, one
// Consumer per queue, all writing through a single Backend.
//
// With auto-partitioning enabled (the default) the first message for a
// domain that no queue is bound to exactly creates a queue for that domain
// and starts its consumer, so every domain is consumed in its own partition.
// Bind a catch-all with ConsumeLoopFor if non-dedicated domains without a
// partition yet should share one consumer instead.
//
// Thread safety: Safe for concurrent use.
type Broker struct {
	router        *Router
	backend       Backend
	resolver      *Resolver
	logger        Logger
	metrics       *metrics.Metrics
	alerts        AlertService
	autoPartition bool

	mu        sync.Mutex
	consumers map[string]*Consumer // by queue ID
	wg        sync.WaitGroup
	runCtx    context.Context
	stopRun   context.CancelFunc
	closed    bool
}

var _ Publisher = (*Broker)(nil)

// NewBroker creates a Broker with the provided options.
//
// Required options:
//   - WithStore: backend for persistence
//
// Optional options:
//   - WithResolver: dedicated domains (default: DefaultDedicatedDomains)
//   - WithLogger: logger (default: NoopLogger)
//   - WithMetrics: Prometheus metrics
//   - WithAlerts: alert service (default: NoOpAlertService)
//   - WithAutoPartition: per-domain partitions on publish (default: true)
//
// Example:
//
//	broker, err := mailbus.NewBroker(
//	    mailbus.WithStore(store),
//	    mailbus.WithLogger(logger),
//	)
func NewBroker(opts ...Option) (*Broker, error) {
	b := &Broker{
		logger:        &NoopLogger{},
		alerts:        &NoOpAlertService{},
		autoPartition: true,
		consumers:     make(map[string]*Consumer),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if b.backend == nil {
		return nil, NewError(ErrCodeConfiguration, "Backend is required (use WithStore)")
	}
	if b.resolver == nil {
		r, err := NewResolver(DefaultDedicatedDomains...)
		if err != nil {
			return nil, err
		}
		b.resolver = r
	}

	router, err := NewRouter(WithRouterLogger(b.logger), WithRouterMetrics(b.metrics))
	if err != nil {
		return nil, err
	}
	b.router = router
	b.runCtx, b.stopRun = context.WithCancel(context.Background())

	return b, nil
}

// Resolver returns the domain-to-bucket mapping used by writes and listings.
func (b *Broker) Resolver() *Resolver {
	return b.resolver
}

// Router returns the underlying router.
func (b *Broker) Router() *Router {
	return b.router
}

// Publish routes msg with routing key domain. The key must equal
// msg.Domain, the domain the record is stored under.
func (b *Broker) Publish(ctx context.Context, domain string, msg model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if domain == "" {
		return NewError(ErrCodeValidation, "routing domain is required")
	}
	if domain != msg.Domain {
		return NewError(ErrCodeValidation,
			fmt.Sprintf("routing domain %q does not match message domain %q", domain, msg.Domain))
	}

	if b.autoPartition {
		if err := b.ensurePartition(domain); err != nil {
			return err
		}
	}

	n, err := b.router.Route(domain, msg)
	if err != nil {
		return err
	}
	b.logger.Debugf("Published message %s (domain=%s, queues=%d)", msg.ID, domain, n)
	return nil
}

// ensurePartition makes sure a running consumer will see a message for
// domain. A domain with its own queue keeps it; a non-dedicated domain
// goes to an existing catch-all; anything else gets a new partition.
// Consumers that were stopped are replaced so their queues keep draining.
func (b *Broker) ensurePartition(domain string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	if b.router.HasBinding(domain) {
		return b.reviveLocked(queueIDFor(domain))
	}
	if b.router.HasBinding(CatchAll) && !b.resolver.IsDedicated(domain) {
		return b.reviveLocked(queueIDFor(CatchAll))
	}

	_, _, err := b.startConsumerLocked(domain, queueIDFor(domain))
	return err
}

// reviveLocked replaces the consumer of queueID if it has finished.
// Caller holds b.mu.
func (b *Broker) reviveLocked(queueID string) error {
	prev, ok := b.consumers[queueID]
	if !ok || !prev.finished() {
		return nil
	}
	_, err := b.runConsumerLocked(prev.Pattern(), prev.Queue(), prev)
	return err
}

// ConsumeLoopFor binds a queue for pattern (an exact domain or CatchAll) and
// runs a consumer on it until ctx is done or the broker shuts down.
// Returns ErrQueueClaimed if a running consumer already owns the queue.
//
// A catch-all consumer skips the dedicated domains and any domain that has
// its own partition. After ctx is done the binding stays: queued and later
// messages wait for the next consumer, which auto-partitioning starts on
// the next publish.
func (b *Broker) ConsumeLoopFor(ctx context.Context, pattern string) error {
	c, err := b.StartConsumer(pattern)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.Stop()
		<-c.Done()
	case <-c.Done():
		return nil
	}

	if b.autoPartition && c.Queue().Len() > 0 {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.closed {
			return b.reviveLocked(c.Queue().ID())
		}
	}
	return nil
}

// StartConsumer binds a queue for pattern and starts a consumer on it in the
// background. The binding is in place when it returns, so messages
// published afterwards reach the queue. The consumer runs until it is
// stopped or the broker shuts down.
// Returns ErrQueueClaimed if a running consumer already owns the queue.
func (b *Broker) StartConsumer(pattern string) (*Consumer, error) {
	pattern = NormalizePattern(pattern)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	c, created, err := b.startConsumerLocked(pattern, queueIDFor(pattern))
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("consume %s: %w", pattern, ErrQueueClaimed)
	}
	return c, nil
}

// startConsumerLocked binds queueID to pattern and starts a consumer on it
// unless a running one already owns the queue, which is returned with
// created false. Caller holds b.mu.
func (b *Broker) startConsumerLocked(pattern, queueID string) (*Consumer, bool, error) {
	q, err := b.router.Bind(pattern, queueID)
	if err != nil {
		return nil, false, err
	}
	prev, ok := b.consumers[queueID]
	if ok && !prev.finished() {
		return prev, false, nil
	}

	c, err := b.runConsumerLocked(pattern, q, prev)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// runConsumerLocked starts a consumer on q once prev, if any, has released
// it. Caller holds b.mu.
func (b *Broker) runConsumerLocked(pattern string, q *PartitionQueue, prev *Consumer) (*Consumer, error) {
	c, err := NewConsumer(
		WithConsumerQueue(q, pattern),
		WithConsumerBackend(b.backend, b.resolver),
		WithConsumerLogger(b.logger),
		WithConsumerMetrics(b.metrics),
		WithConsumerAlerts(b.alerts),
	)
	if err != nil {
		return nil, err
	}
	b.consumers[q.ID()] = c

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if prev != nil {
			<-prev.Done()
		}
		if err := c.Run(b.runCtx); err != nil {
			b.logger.Errorf("Consumer for queue %s failed to start: %v", q.ID(), err)
		}
	}()

	b.logger.Infof("Started consumer for pattern %s (queue=%s)", pattern, q.ID())
	return c, nil
}

// Consumers returns the running consumers keyed by queue ID.
func (b *Broker) Consumers() map[string]*Consumer {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]*Consumer, len(b.consumers))
	for id, c := range b.consumers {
		out[id] = c
	}
	return out
}

// ReadAll lists the records of one bucket, newest first.
// Unknown bucket names return ErrNoData.
func (b *Broker) ReadAll(ctx context.Context, bucketName string) ([]model.StoredRecord, error) {
	bucket, ok := b.resolver.Lookup(bucketName)
	if !ok {
		return nil, NewErrorWithCause(ErrCodeNoData, fmt.Sprintf("unknown bucket %q", bucketName), ErrNoData)
	}
	return b.backend.ReadAll(ctx, bucket)
}

// ReadEverything lists every bucket, keyed by bucket name.
func (b *Broker) ReadEverything(ctx context.Context) (map[string][]model.StoredRecord, error) {
	out := make(map[string][]model.StoredRecord)
	for _, bucket := range b.resolver.Buckets() {
		records, err := b.backend.ReadAll(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to read bucket %s: %w", bucket.Name(), err)
		}
		out[bucket.Name()] = records
	}
	return out, nil
}

// Clear deletes every record in one bucket and returns the count removed.
func (b *Broker) Clear(ctx context.Context, bucketName string) (int, error) {
	bucket, ok := b.resolver.Lookup(bucketName)
	if !ok {
		return 0, NewErrorWithCause(ErrCodeNoData, fmt.Sprintf("unknown bucket %q", bucketName), ErrNoData)
	}
	return b.backend.Clear(ctx, bucket)
}

// ClearAll clears every bucket and returns the per-bucket counts.
// It stops at the first failing bucket.
func (b *Broker) ClearAll(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, bucket := range b.resolver.Buckets() {
		n, err := b.backend.Clear(ctx, bucket)
		if err != nil {
			return out, fmt.Errorf("failed to clear bucket %s: %w", bucket.Name(), err)
		}
		out[bucket.Name()] = n
	}
	return out, nil
}

// Shutdown stops accepting messages, lets consumers drain their queues and
// waits for them, bounded by ctx. Safe to call more than once.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.router.Close()
		// queues left behind by stopped consumers still drain
		for _, c := range b.consumers {
			if c.finished() && c.Queue().Len() > 0 {
				if _, err := b.runConsumerLocked(c.Pattern(), c.Queue(), c); err != nil {
					b.logger.Errorf("Failed to drain queue %s: %v", c.Queue().ID(), err)
				}
			}
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Broker shut down")
		return nil
	case <-ctx.Done():
		// abandon queued messages; writes already in flight still finish
		for _, c := range b.Consumers() {
			c.Stop()
		}
		b.stopRun()
		return fmt.Errorf("broker shutdown: %w", ctx.Err())
	}
}

func queueIDFor(pattern string) string {
	if pattern == CatchAll {
		return "all-queue"
	}
	return pattern + "-queue"
}
