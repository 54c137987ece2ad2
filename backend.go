package mailbus

import (
	"context"

	"github.com/coregx/mailbus/model"
)

// Backend is the persistence contract consumers and listing paths depend on.
// *Store is the implementation; tests may substitute their own.
type Backend interface {
	// Write persists one record into the bucket.
	// Connection and initialization failures are retried within the connect
	// budget; a rejected write is returned immediately.
	Write(ctx context.Context, bucket *Bucket, rec model.StoredRecord) error

	// ReadAll returns every record in the bucket, newest first.
	ReadAll(ctx context.Context, bucket *Bucket) ([]model.StoredRecord, error)

	// Clear deletes every record in the bucket and returns how many were removed.
	Clear(ctx context.Context, bucket *Bucket) (int, error)
}

// Driver is the storage-specific half of a Store. It knows how to reach a
// bucket; Store owns retries, readiness and locking.
//
// Implementations: adapters/jsonfile, adapters/relica, adapters/redisstore.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string

	// Open acquires a connection or handle to the bucket. Errors here are
	// treated as transient and retried.
	Open(ctx context.Context, bucket string) (Conn, error)

	// SerializedWrites reports whether inserts must be serialized per bucket
	// because the driver rewrites the whole collection.
	SerializedWrites() bool
}

// Conn is a short-lived handle to one bucket, closed after each operation.
type Conn interface {
	// Init creates the bucket's container if it does not exist.
	// Must be idempotent: running it against an existing container is a no-op.
	Init(ctx context.Context) error

	// Insert appends one record.
	Insert(ctx context.Context, rec model.StoredRecord) error

	// List returns all records, ordered by persistence time descending.
	List(ctx context.Context) ([]model.StoredRecord, error)

	// DeleteAll removes every record and returns the count removed.
	DeleteAll(ctx context.Context) (int, error)

	// Close releases the handle.
	Close() error
}
