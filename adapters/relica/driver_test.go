package relica

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/model"
	"github.com/coregx/mailbus/retry"
)

func newSQLiteStore(t *testing.T) (*mailbus.Store, *Driver) {
	t.Helper()
	dir := t.TempDir()
	driver, err := NewDriver("sqlite3", "file:"+filepath.Join(dir, "{bucket}.db")+"?_busy_timeout=5000")
	require.NoError(t, err)

	store, err := mailbus.NewStore(
		mailbus.WithDriver(driver),
		mailbus.WithConnectStrategy(retry.FixedDelay(3, 10*time.Millisecond)),
	)
	require.NoError(t, err)
	return store, driver
}

func TestNewDriver_Validation(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		template string
		wantErr  bool
	}{
		{name: "postgres", driver: "postgres", template: "postgres://localhost/{bucket}"},
		{name: "pgx", driver: "pgx", template: "postgres://localhost/{bucket}"},
		{name: "mysql", driver: "mysql", template: "u:p@tcp(localhost:3306)/{bucket}?parseTime=true"},
		{name: "sqlite3", driver: "sqlite3", template: "file:{bucket}.db"},
		{name: "unsupported driver", driver: "oracle", template: "x", wantErr: true},
		{name: "empty template", driver: "postgres", template: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDriver(tt.driver, tt.template)
			if tt.wantErr {
				assert.True(t, mailbus.HasCode(err, mailbus.ErrCodeConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sql/"+tt.driver, d.Name())
			assert.False(t, d.SerializedWrites())
		})
	}

	_, err := NewDriver("sqlite3", "file:x.db", WithPingTimeout(0))
	assert.Error(t, err)
}

func TestDriver_DSN(t *testing.T) {
	d, err := NewDriver("postgres", "postgres://app@{service}-db:5432/{bucket}?sslmode=disable")
	require.NoError(t, err)

	tests := []struct {
		bucket string
		want   string
	}{
		{"gmail.com", "postgres://app@gmail-db:5432/gmail_com?sslmode=disable"},
		{"wp.com", "postgres://app@wp-db:5432/wp_com?sslmode=disable"},
		{"other", "postgres://app@other-db:5432/other?sslmode=disable"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.DSN(tt.bucket))
	}
}

func TestDriver_OpenUnreachable(t *testing.T) {
	d, err := NewDriver("sqlite3", "file:"+filepath.Join(t.TempDir(), "missing", "{bucket}.db")+"?mode=ro")
	require.NoError(t, err)

	_, err = d.Open(context.Background(), "other")
	assert.Error(t, err)
}

func TestStore_SQLite_WriteAndList(t *testing.T) {
	store, _ := newSQLiteStore(t)
	resolver := mailbus.MustResolver(mailbus.DefaultDedicatedDomains...)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		msg := model.NewMessage(fmt.Sprintf("u%d@x.com", i), fmt.Sprintf("body-%d", i))
		require.NoError(t, store.Write(ctx, resolver.Resolve(msg.Domain), model.NewStoredRecord(msg)))
	}
	msg := model.NewMessage("a@gmail.com", "g")
	require.NoError(t, store.Write(ctx, resolver.Resolve(msg.Domain), model.NewStoredRecord(msg)))

	others, err := store.ReadAll(ctx, resolver.Resolve("x.com"))
	require.NoError(t, err)
	require.Len(t, others, n)
	for i, rec := range others {
		assert.Equal(t, fmt.Sprintf("u%d@x.com", n-1-i), rec.Address)
		assert.Equal(t, "x.com", rec.Domain)
		assert.NotZero(t, rec.ID)
		assert.False(t, rec.PersistedAt.IsZero())
	}

	gmail, err := store.ReadAll(ctx, resolver.Resolve("gmail.com"))
	require.NoError(t, err)
	require.Len(t, gmail, 1)
	assert.Equal(t, "g", gmail[0].TransformedBody)
}

func TestStore_SQLite_InitIsIdempotent(t *testing.T) {
	store, driver := newSQLiteStore(t)
	ctx := context.Background()

	c, err := driver.Open(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Close())

	// a fresh resolver forgets readiness, so Init runs again on existing tables
	bucket := mailbus.MustResolver().Resolve("x.com")
	require.NoError(t, store.Write(ctx, bucket, model.NewStoredRecord(model.NewMessage("a@x.com", "b"))))
	assert.True(t, bucket.Ready())
}

func TestStore_SQLite_Clear(t *testing.T) {
	store, _ := newSQLiteStore(t)
	bucket := mailbus.MustResolver().Resolve("x.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Write(ctx, bucket, model.NewStoredRecord(model.NewMessage("a@x.com", "b"))))
	}

	n, err := store.Clear(ctx, bucket)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := store.ReadAll(ctx, bucket)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_SQLite_ConcurrentFirstWrites(t *testing.T) {
	store, _ := newSQLiteStore(t)
	bucket := mailbus.MustResolver().Resolve("y.com")
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := model.NewMessage(fmt.Sprintf("u%d@y.com", i), "b")
			errs <- store.Write(ctx, bucket, model.NewStoredRecord(msg))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	records, err := store.ReadAll(ctx, bucket)
	require.NoError(t, err)
	assert.Len(t, records, writers)
}
