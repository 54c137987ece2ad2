package mailbus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coregx/mailbus/model"
)

var errConnRefused = errors.New("connection refused")

// memDriver is an in-memory Driver with injectable failures.
type memDriver struct {
	mu        sync.Mutex
	buckets   map[string][]model.StoredRecord
	openCalls atomic.Int32
	initCalls atomic.Int32

	// failOpens makes the first n Open calls fail.
	failOpens atomic.Int32
	// failInits makes the first n Init calls fail.
	failInits atomic.Int32
	insertErr error
	serialize bool
	// initHook runs inside Init before it succeeds.
	initHook func()
}

func newMemDriver() *memDriver {
	return &memDriver{buckets: make(map[string][]model.StoredRecord)}
}

func (d *memDriver) Name() string { return "mem" }

func (d *memDriver) SerializedWrites() bool { return d.serialize }

func (d *memDriver) Open(_ context.Context, bucket string) (Conn, error) {
	d.openCalls.Add(1)
	if d.failOpens.Load() > 0 {
		d.failOpens.Add(-1)
		return nil, errConnRefused
	}
	return &memConn{d: d, bucket: bucket}, nil
}

func (d *memDriver) records(bucket string) []model.StoredRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.StoredRecord, len(d.buckets[bucket]))
	copy(out, d.buckets[bucket])
	return out
}

type memConn struct {
	d      *memDriver
	bucket string
}

func (c *memConn) Init(_ context.Context) error {
	c.d.initCalls.Add(1)
	if c.d.initHook != nil {
		c.d.initHook()
	}
	if c.d.failInits.Load() > 0 {
		c.d.failInits.Add(-1)
		return errors.New("create table: permission denied")
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if _, ok := c.d.buckets[c.bucket]; !ok {
		c.d.buckets[c.bucket] = nil
	}
	return nil
}

func (c *memConn) Insert(_ context.Context, rec model.StoredRecord) error {
	if c.d.insertErr != nil {
		return c.d.insertErr
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	rec.ID = int64(len(c.d.buckets[c.bucket]) + 1)
	c.d.buckets[c.bucket] = append(c.d.buckets[c.bucket], rec)
	return nil
}

func (c *memConn) List(_ context.Context) ([]model.StoredRecord, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	out := make([]model.StoredRecord, len(c.d.buckets[c.bucket]))
	copy(out, c.d.buckets[c.bucket])
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (c *memConn) DeleteAll(_ context.Context) (int, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	n := len(c.d.buckets[c.bucket])
	c.d.buckets[c.bucket] = nil
	return n, nil
}

func (c *memConn) Close() error { return nil }

// recordingAlerts captures alert calls.
type recordingAlerts struct {
	mu          sync.Mutex
	unavailable []string
	dropped     []string
}

func (r *recordingAlerts) NotifyBucketUnavailable(_ context.Context, bucket string, _ int, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = append(r.unavailable, bucket)
	return nil
}

func (r *recordingAlerts) NotifyMessageDropped(_ context.Context, msg model.Message, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, msg.ID)
	return nil
}

func (r *recordingAlerts) unavailableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unavailable)
}
