package schedule

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cronnotify/errors"
)

func TestFileRecordStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cron-notify")
	store := NewFileRecordStore(dir)

	_, ok, err := store.Get("abc")
	require.NoError(t, err)
	assert.False(t, ok, "absent record")

	at := time.Date(2026, 10, 19, 9, 0, 0, 999, time.Local)
	require.NoError(t, store.Set("abc", at))

	got, ok, err := store.Get("abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at.Unix(), got.Unix())

	data, err := os.ReadFile(filepath.Join(dir, "abc"))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(at.Unix(), 10), string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFileRecordStore_EmptyFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc"), []byte("  \n"), 0o644))

	_, ok, err := NewFileRecordStore(dir).Get("abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileRecordStore_CorruptRecordIsStorageError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc"), []byte("yesterday"), 0o644))

	_, _, err := NewFileRecordStore(dir).Get("abc")
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))
}

func TestFileRecordStore_ReadsBoundedPrefix(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc"), []byte("1792400400\n"+string(make([]byte, 4096))), 0o644))

	_, _, err := NewFileRecordStore(dir).Get("abc")
	assert.True(t, errors.IsStorageError(err), "trailing garbage within the first bytes is corrupt")
}

func TestFileRecordStore_Delete(t *testing.T) {
	store := NewFileRecordStore(t.TempDir())
	require.NoError(t, store.Delete("abc"), "deleting a missing record")

	require.NoError(t, store.Set("abc", time.Now()))
	require.NoError(t, store.Delete("abc"))
	_, ok, err := store.Get("abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileRecordStore_RejectsPathTraversal(t *testing.T) {
	store := NewFileRecordStore(t.TempDir())

	err := store.Set("../escape", time.Now())
	assert.True(t, errors.IsConfigurationError(err))
}

func TestDefaultRecordDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/cache-home")

	dir, err := DefaultRecordDir("borg-notify")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cache-home/borg-notify", dir)

	_, err = DefaultRecordDir("a/b")
	assert.True(t, errors.IsConfigurationError(err))
}
