package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/config"
	"github.com/sagarc03/vaultbox/jobs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.DSN = filepath.Join(dir, "vaultbox.db")
	cfg.Storage.Path = filepath.Join(dir, "data")
	return cfg
}

func TestOpenComponents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	c, err := openComponents(ctx, cfg)
	require.NoError(t, err)
	defer c.close()

	assert.IsType(t, &jobs.MemoryQueue{}, c.queue)
	assert.Len(t, c.pingers, 1)
	require.NoError(t, pingAll(c.pingers).Ping(ctx))

	meta, err := c.service.Upload(ctx, vaultbox.UploadRequest{Filename: "a.txt"}, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)

	require.NoError(t, c.service.Delete(ctx, meta.ID))

	q, ok := c.queue.(*jobs.MemoryQueue)
	require.True(t, ok)
	assert.Equal(t, 1, q.Pending(), "delete enqueues a purge job")
}

func TestOpenComponents_Errors(t *testing.T) {
	tests := map[string]func(cfg *config.Config){
		"unknown storage": func(cfg *config.Config) { cfg.Storage.Type = "gcs" },
		"unknown queue":   func(cfg *config.Config) { cfg.Queue.Type = "kafka" },
		"bad bucket":      func(cfg *config.Config) { cfg.Service.Bucket = "../escape" },
		"unreachable redis": func(cfg *config.Config) {
			cfg.Queue.Type = "redis"
			cfg.Queue.Addr = "127.0.0.1:1"
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)

			c, err := openComponents(context.Background(), cfg)
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestPingAll(t *testing.T) {
	boom := errors.New("boom")

	assert.NoError(t, pingAll{}.Ping(context.Background()))
	assert.NoError(t, pingAll{stubPinger{}, stubPinger{}}.Ping(context.Background()))
	assert.ErrorIs(t, pingAll{stubPinger{}, stubPinger{err: boom}}.Ping(context.Background()), boom)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}
