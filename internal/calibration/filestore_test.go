package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calibration.json")
	store := NewFileStore(path)

	want := model.Calibration{ScaleFactor: 1234.5, Offset: -42}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	_, err := store.Load()
	assert.Error(t, err)
}

func TestFileStoreGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte("{scale:"), 0o644))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestFileStoreSaveFailsWhenFlushFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(model.Calibration{ScaleFactor: 10, Offset: 1}))

	prev := syncFile
	syncFile = func(*os.File) error { return errors.New("no space left on device") }
	t.Cleanup(func() { syncFile = prev })

	assert.Error(t, store.Save(model.Calibration{ScaleFactor: 99, Offset: 99}))

	// The previous calibration must survive a failed flush untouched.
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, model.Calibration{ScaleFactor: 10, Offset: 1}, got)
}

func TestFileStoreNoPartialFileOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(model.Calibration{ScaleFactor: 10, Offset: 1}))

	// The tmp file from the atomic write must not survive.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "calibration.json", entries[0].Name())
}
