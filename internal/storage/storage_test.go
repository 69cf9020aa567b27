package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutCreatesParentsAndOverwrites(t *testing.T) {
	ctx := context.Background()
	st := NewLocalStorage(t.TempDir())

	require.NoError(t, st.PutObject(ctx, "a/b/c.json", []byte(`{"first":true,"padding":"xxxxxxxx"}`), "application/json"))
	require.NoError(t, st.PutObject(ctx, "a/b/c.json", []byte(`{}`), "application/json"))

	body, err := st.GetObject(ctx, "a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	entries, err := os.ReadDir(filepath.Join(st.Root, "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocalStorage_MissingKey(t *testing.T) {
	ctx := context.Background()
	st := NewLocalStorage(t.TempDir())

	_, err := st.GetObject(ctx, "nope.json")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Head(ctx, "nope.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_HeadReportsSizeAndMtime(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := NewLocalStorage(dir)
	require.NoError(t, st.PutObject(ctx, "f.txt", []byte("hello"), "text/plain"))

	mtime := time.Unix(1700000000, 0)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "f.txt"), mtime, mtime))

	meta, err := st.Head(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, mtime.Unix(), meta.UpdatedAt.Unix())
}

func TestLocalStorage_HeadOnDirectoryIsNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	_, err := NewLocalStorage(dir).Head(context.Background(), "sub")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryStorage()
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return fixed })

	body := []byte("abc")
	require.NoError(t, st.PutObject(ctx, "k", body, "text/plain"))
	body[0] = 'z'

	got, err := st.GetObject(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	meta, err := st.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), meta.Size)
	assert.Equal(t, fixed, meta.UpdatedAt)

	st.Delete("k")
	_, err = st.Head(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
