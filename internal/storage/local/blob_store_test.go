package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-content-feed/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "archive", "raw")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		require.DirExists(t, dir)
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "})
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	path := "raw/googlenews/2024-09-10/abc.json"
	uri, err := store.PutObject(ctx, path, "application/json", strings.NewReader(`[{"title":"a"}]`))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, path), uri)

	// #nosec G304 -- reads from the test's temp directory.
	got, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	require.JSONEq(t, `[{"title":"a"}]`, string(got))

	_, err = store.PutObject(ctx, path, "", strings.NewReader(`[]`))
	require.NoError(t, err, "overwrites are allowed")

	_, err = store.PutObject(ctx, "", "", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(ctx, "../escape.json", "", strings.NewReader("x"))
	require.Error(t, err)
}
