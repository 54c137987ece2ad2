package mailbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/coregx/mailbus/metrics"
	"github.com/coregx/mailbus/model"
	"github.com/coregx/mailbus/retry"
)

// Store is the Backend implementation shared by every storage variant.
//
// Each operation opens a fresh connection through the Driver, retrying within
// the connect budget, makes sure the bucket is initialized, runs the
// operation and closes the connection. Drivers never see retries or locks.
type Store struct {
	driver   Driver
	strategy retry.Strategy
	logger   Logger
	metrics  *metrics.Metrics
}

var _ Backend = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store) error

// NewStore creates a Store.
//
// Required options:
//   - WithDriver: storage driver
//
// Optional: WithConnectStrategy (default retry.DefaultConnectStrategy()),
// WithStoreLogger (default NoopLogger), WithStoreMetrics.
//
// Example:
//
//	driver, _ := jsonfile.NewDriver("./data")
//	store, err := mailbus.NewStore(
//	    mailbus.WithDriver(driver),
//	    mailbus.WithConnectStrategy(retry.FixedDelay(15, 2*time.Second)),
//	    mailbus.WithStoreLogger(logger),
//	)
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		strategy: retry.DefaultConnectStrategy(),
		logger:   &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply store option", err)
		}
	}

	if s.driver == nil {
		return nil, NewError(ErrCodeConfiguration, "Driver is required (use WithDriver)")
	}

	return s, nil
}

// WithDriver sets the storage driver.
func WithDriver(driver Driver) StoreOption {
	return func(s *Store) error {
		if driver == nil {
			return fmt.Errorf("driver cannot be nil")
		}
		s.driver = driver
		return nil
	}
}

// WithConnectStrategy overrides the connect-with-retry budget.
func WithConnectStrategy(strategy retry.Strategy) StoreOption {
	return func(s *Store) error {
		if err := strategy.Validate(); err != nil {
			return err
		}
		s.strategy = strategy
		return nil
	}
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *Store) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithStoreMetrics records connect attempts and persist outcomes.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) error {
		s.metrics = m
		return nil
	}
}

// Driver returns the configured driver.
func (s *Store) Driver() Driver {
	return s.driver
}

// Write persists rec into bucket.
func (s *Store) Write(ctx context.Context, bucket *Bucket, rec model.StoredRecord) error {
	err := s.withConn(ctx, bucket, "write", func(ctx context.Context, conn Conn) error {
		if s.driver.SerializedWrites() {
			bucket.writeMu.Lock()
			defer bucket.writeMu.Unlock()
		}
		if err := conn.Insert(ctx, rec); err != nil {
			return NewErrorWithCause(ErrCodeWriteRejected,
				fmt.Sprintf("bucket %s rejected write", bucket.Name()), err)
		}
		return nil
	})
	if err != nil {
		s.metrics.Failed(bucket.Name(), CodeOf(err))
		return err
	}

	s.metrics.Persisted(bucket.Name())
	return nil
}

// ReadAll returns every record in bucket, newest first.
func (s *Store) ReadAll(ctx context.Context, bucket *Bucket) ([]model.StoredRecord, error) {
	var records []model.StoredRecord
	err := s.withConn(ctx, bucket, "read", func(ctx context.Context, conn Conn) error {
		list, err := conn.List(ctx)
		if err != nil {
			return NewErrorWithCause(ErrCodeDatabase,
				fmt.Sprintf("failed to list bucket %s", bucket.Name()), err)
		}
		records = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.StoredRecord{}
	}
	return records, nil
}

// Clear deletes every record in bucket and returns the number removed.
func (s *Store) Clear(ctx context.Context, bucket *Bucket) (int, error) {
	var removed int
	err := s.withConn(ctx, bucket, "clear", func(ctx context.Context, conn Conn) error {
		if s.driver.SerializedWrites() {
			bucket.writeMu.Lock()
			defer bucket.writeMu.Unlock()
		}
		n, err := conn.DeleteAll(ctx)
		if err != nil {
			return NewErrorWithCause(ErrCodeDatabase,
				fmt.Sprintf("failed to clear bucket %s", bucket.Name()), err)
		}
		removed = n
		return nil
	})
	return removed, err
}

// withConn runs fn on a connection to bucket that is known to be initialized.
// Open and Init failures consume the connect budget; errors from fn end the
// operation immediately.
func (s *Store) withConn(ctx context.Context, bucket *Bucket, op string, fn func(context.Context, Conn) error) error {
	var reached bool
	attempts, err := retry.Do(ctx, s.strategy, func(ctx context.Context, attempt int) error {
		conn, err := s.driver.Open(ctx, bucket.Name())
		if err != nil {
			s.logger.Warnf("Connect to bucket %s failed (attempt %d/%d, driver=%s): %v",
				bucket.Name(), attempt, s.strategy.MaxAttempts, s.driver.Name(), err)
			return err
		}
		defer func() {
			if cerr := conn.Close(); cerr != nil {
				s.logger.Debugf("Close bucket %s connection: %v", bucket.Name(), cerr)
			}
		}()

		if err := s.ensureReady(ctx, bucket, conn); err != nil {
			s.logger.Warnf("Bucket %s not ready (attempt %d/%d): %v",
				bucket.Name(), attempt, s.strategy.MaxAttempts, err)
			return err
		}

		reached = true
		return retry.Permanent(fn(ctx, conn))
	})
	s.metrics.ConnectAttempted(bucket.Name(), attempts)

	if err == nil || reached {
		return err
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return &Error{
			Code:     ErrCodeUnavailable,
			Message:  fmt.Sprintf("bucket %s unreachable during %s", bucket.Name(), op),
			Attempts: exhausted.Attempts,
			Err:      exhausted.Last,
		}
	}
	// ctx ended while waiting between attempts
	return &Error{
		Code:     ErrCodeUnavailable,
		Message:  fmt.Sprintf("gave up on bucket %s during %s", bucket.Name(), op),
		Attempts: attempts,
		Err:      err,
	}
}

// ensureReady initializes bucket at most once at a time. A failed
// initialization leaves the bucket not ready so the next caller retries it.
func (s *Store) ensureReady(ctx context.Context, bucket *Bucket, conn Conn) error {
	if bucket.ready.Load() {
		return nil
	}

	bucket.initMu.Lock()
	defer bucket.initMu.Unlock()

	if bucket.ready.Load() {
		return nil
	}

	if err := conn.Init(ctx); err != nil {
		return NewErrorWithCause(ErrCodeInitialization,
			fmt.Sprintf("failed to initialize bucket %s", bucket.Name()), err)
	}

	bucket.ready.Store(true)
	s.logger.Infof("Bucket %s initialized (driver=%s)", bucket.Name(), s.driver.Name())
	return nil
}
