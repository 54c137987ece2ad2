package relica

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/coregx/mailbus"
	"github.com/coregx/relica"
)

// DSN template placeholders.
const (
	// PlaceholderBucket expands to the bucket name with every character
	// outside [a-z0-9] replaced by '_' ("gmail.com" → "gmail_com").
	PlaceholderBucket = "{bucket}"

	// PlaceholderService expands to the first label of the bucket name
	// ("gmail.com" → "gmail", "other" → "other").
	PlaceholderService = "{service}"
)

// Driver opens one database per bucket.
type Driver struct {
	driverName  string
	dialect     string
	dsnTemplate string
	pingTimeout time.Duration
}

var _ mailbus.Driver = (*Driver)(nil)

// DriverOption configures a Driver.
type DriverOption func(*Driver) error

// NewDriver creates a relational driver.
//
// driverName is a database/sql driver name ("postgres", "pgx", "mysql",
// "sqlite3"). dsnTemplate may contain PlaceholderBucket and
// PlaceholderService; a template without placeholders points every bucket
// at the same database.
func NewDriver(driverName, dsnTemplate string, opts ...DriverOption) (*Driver, error) {
	dialect, err := mailbus.SchemaDialect(driverName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsnTemplate) == "" {
		return nil, mailbus.NewError(mailbus.ErrCodeConfiguration, "DSN template is required")
	}

	d := &Driver{
		driverName:  driverName,
		dialect:     dialect,
		dsnTemplate: dsnTemplate,
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, mailbus.NewErrorWithCause(mailbus.ErrCodeConfiguration, "failed to apply driver option", err)
		}
	}
	return d, nil
}

// WithPingTimeout bounds the connectivity check done by Open.
func WithPingTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) error {
		if timeout <= 0 {
			return fmt.Errorf("ping timeout must be > 0, got %v", timeout)
		}
		d.pingTimeout = timeout
		return nil
	}
}

// Name implements mailbus.Driver.
func (d *Driver) Name() string {
	return "sql/" + d.driverName
}

// SerializedWrites implements mailbus.Driver. Inserts are atomic in SQL.
func (d *Driver) SerializedWrites() bool {
	return false
}

// DSN returns the data source name for bucket.
func (d *Driver) DSN(bucket string) string {
	return strings.NewReplacer(
		PlaceholderBucket, bucketSlug(bucket),
		PlaceholderService, serviceLabel(bucket),
	).Replace(d.dsnTemplate)
}

// Open connects to the bucket's database and verifies it answers.
func (d *Driver) Open(ctx context.Context, bucket string) (mailbus.Conn, error) {
	sqlDB, err := sql.Open(d.driverName, d.DSN(bucket))
	if err != nil {
		return nil, fmt.Errorf("open %s database for bucket %s: %w", d.driverName, bucket, err)
	}
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, d.pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database for bucket %s: %w", d.driverName, bucket, err)
	}

	return &conn{
		sqlDB:      sqlDB,
		db:         relica.WrapDB(sqlDB, d.dialect),
		driverName: d.driverName,
	}, nil
}

func bucketSlug(bucket string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(bucket) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func serviceLabel(bucket string) string {
	label, _, _ := strings.Cut(strings.ToLower(bucket), ".")
	return label
}
