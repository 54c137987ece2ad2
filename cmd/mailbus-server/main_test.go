package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/adapters/jsonfile"
	"github.com/coregx/mailbus/cmd/mailbus-server/internal/config"
	"github.com/coregx/mailbus/model"
	"github.com/coregx/mailbus/retry"
)

func TestNewDriver(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      config.StorageConfig
		wantName string
		wantErr  bool
	}{
		{"file", config.StorageConfig{Driver: config.StorageFile, Dir: dir}, "file", false},
		{"sqlite", config.StorageConfig{
			Driver:    config.StorageSQL,
			SQLDriver: "sqlite3",
			DSN:       "file:" + filepath.Join(dir, "{bucket}.db"),
		}, "sql/sqlite3", false},
		{"redis", config.StorageConfig{Driver: config.StorageRedis, RedisURL: "redis://127.0.0.1:1/0"}, "redis", false},
		{"redis bad url", config.StorageConfig{Driver: config.StorageRedis, RedisURL: "http://nope"}, "", true},
		{"unknown", config.StorageConfig{Driver: "mongo"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, closeFn, err := newDriver(tt.cfg)
			require.NotNil(t, closeFn)
			defer func() { _ = closeFn() }()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, d.Name())
		})
	}
}

func TestNewDriver_UnknownIsConfigurationError(t *testing.T) {
	_, _, err := newDriver(config.StorageConfig{Driver: "mongo"})
	assert.True(t, mailbus.HasCode(err, mailbus.ErrCodeConfiguration))
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["consume"])
	assert.True(t, names["publish"])

	for _, flag := range []string{"config", "storage", "dsn", "domain-filter", "transport", "toggles-file"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_InvalidConfigFails(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"publish", "--storage", "mongo", "a@x.com", "hi"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, mailbus.HasCode(err, mailbus.ErrCodeConfiguration))
}

func TestStartStaticConsumers_BindsBeforeReturning(t *testing.T) {
	driver, err := jsonfile.NewDriver(t.TempDir())
	require.NoError(t, err)
	store, err := mailbus.NewStore(
		mailbus.WithDriver(driver),
		mailbus.WithConnectStrategy(retry.FixedDelay(3, time.Millisecond)),
	)
	require.NoError(t, err)

	resolver := mailbus.MustResolver(mailbus.DefaultDedicatedDomains...)
	broker, err := mailbus.NewBroker(
		mailbus.WithStore(store),
		mailbus.WithResolver(resolver),
		mailbus.WithAutoPartition(false),
	)
	require.NoError(t, err)

	require.NoError(t, startStaticConsumers(broker, resolver))
	for _, pattern := range []string{"gmail.com", "wp.com", mailbus.CatchAll} {
		assert.True(t, broker.Router().HasBinding(pattern), pattern)
	}

	ctx := context.Background()
	for _, addr := range []string{"a@gmail.com", "b@x.com"} {
		msg := model.NewMessage(addr, "body")
		require.NoError(t, broker.Publish(ctx, msg.Domain, msg))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, broker.Shutdown(shutdownCtx))

	all, err := broker.ReadEverything(ctx)
	require.NoError(t, err)
	assert.Len(t, all["gmail.com"], 1)
	assert.Len(t, all[model.BucketOther], 1)

	assert.ErrorIs(t, startStaticConsumers(broker, resolver), mailbus.ErrBrokerClosed)
}
