package mailbus

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coregx/mailbus/metrics"
	"github.com/coregx/mailbus/model"
)

// Binding patterns.
const (
	// CatchAll matches every routing key.
	CatchAll = "#"

	// catchAllAlias is accepted by Bind and normalized to CatchAll.
	catchAllAlias = "*"
)

// Router delivers messages to partition queues by routing key, the way a
// topic exchange does. A queue receives a message once per Route call no
// matter how many of its bindings match.
//
// Thread safety: Safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	queues   map[string]*PartitionQueue
	bindings map[string]map[string]struct{} // pattern -> queue IDs
	closed   bool

	logger  Logger
	metrics *metrics.Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router) error

// NewRouter creates an empty Router.
func NewRouter(opts ...RouterOption) (*Router, error) {
	r := &Router{
		queues:   make(map[string]*PartitionQueue),
		bindings: make(map[string]map[string]struct{}),
		logger:   &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply router option", err)
		}
	}

	return r, nil
}

// WithRouterLogger sets the router's logger.
func WithRouterLogger(logger Logger) RouterOption {
	return func(r *Router) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithRouterMetrics records routed messages and queue depth.
func WithRouterMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) error {
		r.metrics = m
		return nil
	}
}

// NormalizePattern trims pattern, lower-cases exact domains and maps the
// "*" alias to CatchAll.
func NormalizePattern(pattern string) string {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == catchAllAlias {
		return CatchAll
	}
	return p
}

// Bind routes messages matching pattern to the queue queueID, creating the
// queue on first use. Binding the same pair twice is a no-op.
func (r *Router) Bind(pattern, queueID string) (*PartitionQueue, error) {
	pattern = NormalizePattern(pattern)
	if pattern == "" {
		return nil, NewError(ErrCodeValidation, "binding pattern is required")
	}
	if queueID == "" {
		return nil, NewError(ErrCodeValidation, "queue ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrBrokerClosed
	}

	q, ok := r.queues[queueID]
	if !ok {
		q = NewPartitionQueue(queueID)
		r.queues[queueID] = q
	}

	ids, ok := r.bindings[pattern]
	if !ok {
		ids = make(map[string]struct{})
		r.bindings[pattern] = ids
	}
	if _, bound := ids[queueID]; !bound {
		ids[queueID] = struct{}{}
		r.logger.Debugf("Bound queue %s to pattern %s", queueID, pattern)
	}

	return q, nil
}

// HasBinding reports whether any queue is bound to exactly pattern.
func (r *Router) HasBinding(pattern string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings[NormalizePattern(pattern)]) > 0
}

// Route enqueues msg on every queue bound to routingKey or to CatchAll and
// returns how many queues received it. An unroutable message is not an error.
//
// Copies that reach a queue only through CatchAll while routingKey has an
// exact binding are marked so catch-all consumers skip them.
func (r *Router) Route(routingKey string, msg model.Message) (int, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0, ErrBrokerClosed
	}

	type target struct {
		q  *PartitionQueue
		it queued
	}
	exact := routingKey != CatchAll && len(r.bindings[routingKey]) > 0
	targets := make(map[string]target)
	for id := range r.bindings[routingKey] {
		targets[id] = target{q: r.queues[id], it: queued{msg: msg}}
	}
	for id := range r.bindings[CatchAll] {
		if _, ok := targets[id]; !ok {
			targets[id] = target{q: r.queues[id], it: queued{msg: msg, shadowed: exact}}
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		r.logger.Warnf("Unroutable message dropped: id=%s, routingKey=%s", msg.ID, routingKey)
		r.metrics.Dropped("unroutable")
		return 0, nil
	}

	delivered := 0
	for id, t := range targets {
		if err := t.q.push(t.it); err != nil {
			r.logger.Warnf("Queue %s rejected message %s: %v", id, msg.ID, err)
			continue
		}
		delivered++
		r.metrics.SetQueueDepth(id, t.q.Len())
	}
	r.metrics.Routed(routingKey)

	return delivered, nil
}

// Queue returns the queue with the given ID.
func (r *Router) Queue(queueID string) (*PartitionQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[queueID]
	return q, ok
}

// Queues returns a snapshot of all queues sorted by ID.
func (r *Router) Queues() []*PartitionQueue {
	r.mu.RLock()
	out := make([]*PartitionQueue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close closes every queue and rejects further binds and routes.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, q := range r.queues {
		q.Close()
	}
}
