// Package redisstore keeps each bucket as a Redis list of JSON records.
//
// Keys, for a bucket named b:
//
//	mailbus:bucket:b          list of JSON records, oldest first
//	mailbus:bucket:b:schema   marker set once by initialization
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/model"
)

const (
	keyPrefix     = "mailbus:bucket:"
	schemaVersion = "1"
)

// Driver is a Redis-backed mailbus.Driver. It shares one go-redis client
// (and its connection pool) across buckets; Open only checks reachability.
type Driver struct {
	client *redis.Client
}

var _ mailbus.Driver = (*Driver)(nil)

// NewDriver wraps an existing client.
func NewDriver(client *redis.Client) (*Driver, error) {
	if client == nil {
		return nil, mailbus.NewError(mailbus.ErrCodeConfiguration, "redis client is required")
	}
	return &Driver{client: client}, nil
}

// NewDriverFromURL creates a client from a redis:// URL. Connectivity is
// not checked here; the store's connect loop does that.
func NewDriverFromURL(url string) (*Driver, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, mailbus.NewErrorWithCause(mailbus.ErrCodeConfiguration, "parse redis URL", err)
	}
	return NewDriver(redis.NewClient(opts))
}

// Name implements mailbus.Driver.
func (d *Driver) Name() string {
	return "redis"
}

// SerializedWrites implements mailbus.Driver. RPUSH is atomic.
func (d *Driver) SerializedWrites() bool {
	return false
}

// Client returns the underlying client.
func (d *Driver) Client() *redis.Client {
	return d.client
}

// Close closes the client.
func (d *Driver) Close() error {
	return d.client.Close()
}

// ListKey returns the key of bucket's record list.
func ListKey(bucket string) string {
	return keyPrefix + bucket
}

// SchemaKey returns the key of bucket's initialization marker.
func SchemaKey(bucket string) string {
	return keyPrefix + bucket + ":schema"
}

// Open pings the server.
func (d *Driver) Open(ctx context.Context, bucket string) (mailbus.Conn, error) {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &conn{client: d.client, bucket: bucket}, nil
}

type conn struct {
	client *redis.Client
	bucket string
}

// Init sets the schema marker unless it already exists.
func (c *conn) Init(ctx context.Context) error {
	if err := c.client.SetNX(ctx, SchemaKey(c.bucket), schemaVersion, 0).Err(); err != nil {
		return fmt.Errorf("set schema marker: %w", err)
	}
	return nil
}

func (c *conn) Insert(ctx context.Context, rec model.StoredRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := c.client.RPush(ctx, ListKey(c.bucket), data).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", ListKey(c.bucket), err)
	}
	return nil
}

// List returns records newest first.
func (c *conn) List(ctx context.Context) ([]model.StoredRecord, error) {
	raw, err := c.client.LRange(ctx, ListKey(c.bucket), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", ListKey(c.bucket), err)
	}

	records := make([]model.StoredRecord, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var rec model.StoredRecord
		if err := json.Unmarshal([]byte(raw[i]), &rec); err != nil {
			return nil, fmt.Errorf("decode record %d of %s: %w", i, ListKey(c.bucket), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteAll counts and deletes the list in one transaction.
func (c *conn) DeleteAll(ctx context.Context) (int, error) {
	var llen *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		llen = pipe.LLen(ctx, ListKey(c.bucket))
		pipe.Del(ctx, ListKey(c.bucket))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", ListKey(c.bucket), err)
	}
	return int(llen.Val()), nil
}

// Close is a no-op; the client outlives the operation.
func (c *conn) Close() error {
	return nil
}
