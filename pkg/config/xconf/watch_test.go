package xconf

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_Reloads(t *testing.T) {
	path := writeFile(t, "rules.yaml", "v: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	events := make(chan error, 8)
	w, err := Watch(cfg, func(_ Config, err error) { events <- err }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("v: 2\n"), 0o600))

	select {
	case err := <-events:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload callback")
	}
	assert.Equal(t, 2, cfg.Client().Int("v"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatch_ParseErrorKeepsOld(t *testing.T) {
	path := writeFile(t, "rules.json", `{"v":1}`)
	cfg, err := New(path)
	require.NoError(t, err)

	events := make(chan error, 8)
	w, err := Watch(cfg, func(_ Config, err error) { events <- err }, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte(`{"v":`), 0o600))
	select {
	case err := <-events:
		assert.ErrorIs(t, err, ErrParseFailed)
	case <-time.After(3 * time.Second):
		t.Fatal("no error callback")
	}
	assert.Equal(t, 1, cfg.Client().Int("v"))
}

func TestWatch_Invalid(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{}`), FormatJSON)
	require.NoError(t, err)
	_, err = Watch(cfg, func(Config, error) {})
	assert.ErrorIs(t, err, ErrNotWatchable)

	fileCfg, err := New(writeFile(t, "c.yaml", "v: 1\n"))
	require.NoError(t, err)
	_, err = Watch(fileCfg, nil)
	assert.Error(t, err)
}
