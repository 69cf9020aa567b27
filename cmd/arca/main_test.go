package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/arca/internal/config"
	"github.com/yourorg/arca/internal/storage"
	"github.com/yourorg/arca/internal/tracker"
)

const findingsJSON = `{"results":[{"policy_id":"P1","severity":"high","divergence_summary":"s","conflicting_policy_excerpt":"c","new_rule_excerpt":"n"}]}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func workspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("ARCA_PATHS__ROOT", root)
	path := filepath.Join(root, "AuditorAgent", "outputs", "auditor_output.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(findingsJSON), 0o644))
	return root
}

func TestGenerateCommand(t *testing.T) {
	root := workspace(t)

	out, err := execute(t, "generate", "--env-file", filepath.Join(root, "missing.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "1 risks")

	_, err = os.Stat(filepath.Join(root, "GeneratorAgent", "outputs", "final_report.json"))
	assert.NoError(t, err)
}

func TestNotifyCommandDryRun(t *testing.T) {
	root := workspace(t)

	out, err := execute(t, "notify", "--state-backend", "memory", "--env-file", filepath.Join(root, "missing.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "Auditor detected HIGH risks: 1.")
	assert.Contains(t, out, "Immediate attention required for HIGH risk items.")

	entries, err := os.ReadDir(filepath.Join(root, "NotificationsAgent", "outputs", "newsletters"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("error").Enabled(ctx, slog.LevelWarn))
	assert.True(t, newLogger("bogus").Enabled(ctx, slog.LevelInfo))
}

func TestOpenStateStore(t *testing.T) {
	c := config.Defaults()
	st := storage.NewInMemoryStorage()

	c.State.Backend = config.BackendMemory
	store, closeFn, err := openStateStore(&c, st, slog.Default())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &tracker.MemoryStore{}, store)

	c.State.Backend = config.BackendFile
	store, _, err = openStateStore(&c, st, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &tracker.FileStore{}, store)

	c.State.Backend = config.BackendRedis
	c.State.RedisURL = "not a url"
	_, _, err = openStateStore(&c, st, slog.Default())
	assert.Error(t, err)
}

func TestReportRenderer(t *testing.T) {
	c := config.Defaults()
	assert.Nil(t, reportRenderer(&c, false))
	assert.NotNil(t, reportRenderer(&c, true), "attach_pdf alone must enable the renderer")

	c.PDF.Enabled = true
	assert.NotNil(t, reportRenderer(&c, false))
}
