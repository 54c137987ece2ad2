package mailbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coregx/mailbus/metrics"
	"github.com/coregx/mailbus/model"
)

// ConsumerState is the lifecycle state of a Consumer.
type ConsumerState int32

// Consumer states. A consumer moves Idle → Running → Stopping → Stopped and
// never goes back.
const (
	StateIdle ConsumerState = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name.
func (s ConsumerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("ConsumerState(%d)", int32(s))
	}
}

// Consumer drains one partition queue into the backend.
//
// Messages are persisted one at a time in dequeue order. A failed write is
// logged (and alerted when the bucket is unavailable) and the loop moves on
// to the next message; nothing a single message does can stop the consumer.
//
// When bound to CatchAll the consumer drops messages for excluded domains,
// which by default are the resolver's dedicated domains, and copies the
// router marked as shadowed by an exact binding: those have their own
// consumers and must not be stored twice.
//
// Messages enqueued with EnqueueWithSettle are settled after the backend
// returns, or with nil when skipped.
type Consumer struct {
	queue      *PartitionQueue
	pattern    string
	backend    Backend
	resolver   *Resolver
	exclusions map[string]struct{}
	logger     Logger
	metrics    *metrics.Metrics
	alerts     AlertService

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer) error

// NewConsumer creates a consumer.
//
// Required options:
//   - WithConsumerQueue: the queue and the pattern it is bound to
//   - WithConsumerBackend: backend and resolver
//
// Example:
//
//	c, err := mailbus.NewConsumer(
//	    mailbus.WithConsumerQueue(queue, mailbus.CatchAll),
//	    mailbus.WithConsumerBackend(store, resolver),
//	    mailbus.WithConsumerLogger(logger),
//	)
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	c := &Consumer{
		logger: &NoopLogger{},
		alerts: &NoOpAlertService{},
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply consumer option", err)
		}
	}

	if c.queue == nil {
		return nil, NewError(ErrCodeConfiguration, "PartitionQueue is required (use WithConsumerQueue)")
	}
	if c.backend == nil || c.resolver == nil {
		return nil, NewError(ErrCodeConfiguration, "Backend and Resolver are required (use WithConsumerBackend)")
	}

	if c.pattern != CatchAll {
		c.exclusions = nil
	} else if c.exclusions == nil {
		c.exclusions = make(map[string]struct{})
		for _, d := range c.resolver.Dedicated() {
			c.exclusions[d] = struct{}{}
		}
	}

	return c, nil
}

// WithConsumerQueue sets the queue to drain and the pattern it is bound to.
func WithConsumerQueue(queue *PartitionQueue, pattern string) ConsumerOption {
	return func(c *Consumer) error {
		if queue == nil {
			return fmt.Errorf("queue cannot be nil")
		}
		pattern = NormalizePattern(pattern)
		if pattern == "" {
			return fmt.Errorf("pattern cannot be empty")
		}
		c.queue = queue
		c.pattern = pattern
		return nil
	}
}

// WithConsumerBackend sets where records go and how domains map to buckets.
func WithConsumerBackend(backend Backend, resolver *Resolver) ConsumerOption {
	return func(c *Consumer) error {
		if backend == nil {
			return fmt.Errorf("backend cannot be nil")
		}
		if resolver == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		c.backend = backend
		c.resolver = resolver
		return nil
	}
}

// WithExclusions replaces the catch-all exclusion list. Ignored for
// consumers bound to an exact domain.
func WithExclusions(domains ...string) ConsumerOption {
	return func(c *Consumer) error {
		c.exclusions = make(map[string]struct{}, len(domains))
		for _, d := range domains {
			c.exclusions[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
		return nil
	}
}

// WithConsumerLogger sets the consumer's logger.
func WithConsumerLogger(logger Logger) ConsumerOption {
	return func(c *Consumer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithConsumerMetrics records drops and persist outcomes.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) error {
		c.metrics = m
		return nil
	}
}

// WithConsumerAlerts sets the alert service notified on unavailable buckets.
func WithConsumerAlerts(service AlertService) ConsumerOption {
	return func(c *Consumer) error {
		if service == nil {
			return fmt.Errorf("alert service cannot be nil")
		}
		c.alerts = service
		return nil
	}
}

// State returns the current lifecycle state.
func (c *Consumer) State() ConsumerState {
	return ConsumerState(c.state.Load())
}

// finished reports whether the consumer has stopped or is on its way out.
func (c *Consumer) finished() bool {
	s := c.State()
	return s == StateStopping || s == StateStopped
}

// Pattern returns the binding pattern.
func (c *Consumer) Pattern() string {
	return c.pattern
}

// Queue returns the queue being drained.
func (c *Consumer) Queue() *PartitionQueue {
	return c.queue
}

// Done is closed when Run returns.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Run consumes until Stop is called, ctx is done or the queue is closed and
// drained. It returns nil in all of those cases; the only error is a failure
// to start (the queue already has a consumer, or Run was called twice).
// On return the queue is released for a replacement consumer.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return NewError(ErrCodeValidation, fmt.Sprintf("consumer for %s already started", c.queue.ID()))
	}
	if err := c.queue.claim(); err != nil {
		c.state.Store(int32(StateStopped))
		close(c.done)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.queue.release()
		c.state.Store(int32(StateStopped))
		close(c.done)
		c.logger.Infof("Consumer for queue %s stopped", c.queue.ID())
	}()

	c.logger.Infof("Consumer for queue %s started (pattern=%s, exclusions=%d)",
		c.queue.ID(), c.pattern, len(c.exclusions))

	// writes must survive the stop signal so in-flight work completes
	writeCtx := context.WithoutCancel(ctx)

	for c.State() == StateRunning {
		it, err := c.queue.next(runCtx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || runCtx.Err() != nil {
				return nil
			}
			c.logger.Errorf("Dequeue from %s failed: %v", c.queue.ID(), err)
			continue
		}
		c.metrics.SetQueueDepth(c.queue.ID(), c.queue.Len())

		it.done(c.handle(writeCtx, it))
	}

	return nil
}

// Stop asks the consumer to finish. A write in progress completes first.
func (c *Consumer) Stop() {
	if c.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(c.done)
		return
	}
	c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// handle persists one message. Skipped messages return nil.
func (c *Consumer) handle(ctx context.Context, it queued) error {
	msg := it.msg
	if c.pattern == CatchAll && it.shadowed {
		c.logger.Debugf("Skipping message %s for domain %s on catch-all queue %s: domain has its own partition",
			msg.ID, msg.Domain, c.queue.ID())
		c.metrics.Dropped("shadowed")
		return nil
	}
	if _, excluded := c.exclusions[msg.Domain]; excluded {
		c.logger.Debugf("Skipping message %s for dedicated domain %s on catch-all queue %s",
			msg.ID, msg.Domain, c.queue.ID())
		c.metrics.Dropped("excluded")
		return nil
	}

	bucket := c.resolver.Resolve(msg.Domain)
	err := c.backend.Write(ctx, bucket, model.NewStoredRecord(msg))
	if err != nil {
		c.logger.Errorf("Failed to persist message %s (domain=%s, bucket=%s, attempts=%d): %v",
			msg.ID, msg.Domain, bucket.Name(), AttemptsOf(err), err)

		if IsUnavailable(err) {
			if alertErr := c.alerts.NotifyBucketUnavailable(ctx, bucket.Name(), AttemptsOf(err), err); alertErr != nil {
				c.logger.Warnf("Failed to send unavailable alert: %v", alertErr)
			}
		}
		if alertErr := c.alerts.NotifyMessageDropped(ctx, msg, CodeOf(err)); alertErr != nil {
			c.logger.Warnf("Failed to send dropped-message alert: %v", alertErr)
		}
		return err
	}

	c.logger.Debugf("Persisted message %s (domain=%s, bucket=%s)", msg.ID, msg.Domain, bucket.Name())
	return nil
}
