package jsonfile

import (
	"context"
	"fmt"
	"os"
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

func newFileStore(t *testing.T, dir string) *mailbus.Store {
	t.Helper()
	driver, err := NewDriver(dir)
	require.NoError(t, err)
	store, err := mailbus.NewStore(
		mailbus.WithDriver(driver),
		mailbus.WithConnectStrategy(retry.FixedDelay(3, time.Millisecond)),
	)
	require.NoError(t, err)
	return store
}

func TestNewDriver(t *testing.T) {
	_, err := NewDriver("")
	assert.True(t, mailbus.HasCode(err, mailbus.ErrCodeConfiguration))

	d, err := NewDriver("/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "gmail.com.json"), d.Path("gmail.com"))
	assert.True(t, d.SerializedWrites())
	assert.Equal(t, "file", d.Name())
}

func TestStore_File_InitCreatesEmptyArray(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store := newFileStore(t, dir)
	bucket := mailbus.MustResolver().Resolve("x.com")

	records, err := store.ReadAll(context.Background(), bucket)
	require.NoError(t, err)
	assert.Empty(t, records)

	data, err := os.ReadFile(filepath.Join(dir, "other.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStore_File_InitKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	existing := `[{"address":"old@x.com","encryptedBody":"b","timestamp":"2024-01-02T03:04:05Z"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(existing), 0o644))

	store := newFileStore(t, dir)
	records, err := store.ReadAll(context.Background(), mailbus.MustResolver().Resolve("x.com"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "old@x.com", records[0].Address)
	assert.Equal(t, "", records[0].Domain)
}

func TestStore_File_EmptyFileIsEmptyCollection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), nil, 0o644))

	store := newFileStore(t, dir)
	bucket := mailbus.MustResolver().Resolve("x.com")
	require.NoError(t, store.Write(context.Background(), bucket, model.NewStoredRecord(model.NewMessage("a@x.com", "b"))))

	records, err := store.ReadAll(context.Background(), bucket)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_File_OnDiskFormat(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)
	bucket := mailbus.MustResolver(mailbus.DefaultDedicatedDomains...).Resolve("gmail.com")

	msg := model.NewMessage("a@gmail.com", "Ifmmp")
	require.NoError(t, store.Write(context.Background(), bucket, model.NewStoredRecord(msg)))

	data, err := os.ReadFile(filepath.Join(dir, "gmail.com.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"address": "a@gmail.com"`)
	assert.Contains(t, string(data), `"encryptedBody": "Ifmmp"`)
	assert.Contains(t, string(data), `"domain": "gmail.com"`)
	assert.Contains(t, string(data), `"timestamp"`)
	assert.NotContains(t, string(data), `"id"`)
}

func TestStore_File_ConcurrentWritesLoseNothing(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	bucket := mailbus.MustResolver().Resolve("x.com")

	const writers = 30
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := model.NewMessage(fmt.Sprintf("u%d@x.com", i), "b")
			assert.NoError(t, store.Write(context.Background(), bucket, model.NewStoredRecord(msg)))
		}(i)
	}
	wg.Wait()

	records, err := store.ReadAll(context.Background(), bucket)
	require.NoError(t, err)
	assert.Len(t, records, writers)
}

func TestStore_File_OrderAndClear(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	bucket := mailbus.MustResolver().Resolve("x.com")
	ctx := context.Background()

	const n = 6
	for i := 0; i < n; i++ {
		msg := model.NewMessage(fmt.Sprintf("u%d@x.com", i), "b")
		require.NoError(t, store.Write(ctx, bucket, model.NewStoredRecord(msg)))
	}

	records, err := store.ReadAll(ctx, bucket)
	require.NoError(t, err)
	require.Len(t, records, n)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("u%d@x.com", n-1-i), rec.Address)
	}

	removed, err := store.Clear(ctx, bucket)
	require.NoError(t, err)
	assert.Equal(t, n, removed)

	records, err = store.ReadAll(ctx, bucket)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_File_CorruptFileRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{not json"), 0o644))

	store := newFileStore(t, dir)
	err := store.Write(context.Background(), mailbus.MustResolver().Resolve("x.com"),
		model.NewStoredRecord(model.NewMessage("a@x.com", "b")))
	assert.True(t, mailbus.HasCode(err, mailbus.ErrCodeWriteRejected))
}
