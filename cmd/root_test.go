package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/app"
	"github.com/JakeFAU/realtime-content-feed/internal/config"
	"github.com/JakeFAU/realtime-content-feed/internal/engine"
)

const quietConfig = `
adapters:
  googlenews:
    enabled: false
  youtube:
    enabled: false
  nitter:
    enabled: false
`

func TestKeysCreatePrintsKey(t *testing.T) {
	useNopLogger(t)
	path := writeConfig(t, quietConfig)

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "keys", "create", "newsroom"}, &out, &out)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), strings.TrimSpace(out.String()))
}

func TestKeysCreateRequiresOwner(t *testing.T) {
	useNopLogger(t)
	path := writeConfig(t, quietConfig)

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "keys", "create"}, &out, &out)
	require.Error(t, err)
}

func TestKeysDeactivateUnknownKey(t *testing.T) {
	useNopLogger(t)
	path := writeConfig(t, quietConfig)

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "keys", "deactivate", "nope"}, &out, &out)
	require.Error(t, err)
}

func TestScrapePrintsReport(t *testing.T) {
	useNopLogger(t)
	path := writeConfig(t, quietConfig)

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "scrape"}, &out, &out)
	require.NoError(t, err)

	var report engine.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Equal(t, engine.StateSucceeded, report.State)
	require.Zero(t, report.Ingested)
}

func TestBadConfigFails(t *testing.T) {
	useNopLogger(t)
	path := writeConfig(t, "engine:\n  concurrency: 0\n")

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "scrape"}, &out, &out)
	require.ErrorContains(t, err, "load config")
}

// --- helpers/fakes ---

func useNopLogger(t *testing.T) {
	t.Helper()
	prev := buildApp
	buildApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		return app.BuildWithLogger(ctx, cfg, zap.NewNop())
	}
	t.Cleanup(func() { buildApp = prev })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
