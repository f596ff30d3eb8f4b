package diskStore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/storage"
	"dataroom-service/internal/storage/diskStore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), f.after)
	f.after -= n
	return n, nil
}

func TestDiskStore_PutOpenDelete(t *testing.T) {
	root := t.TempDir()
	store, err := diskStore.New(root, 16)
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, store.Put(ctx, "users/u1/f1.txt", bytes.NewReader(content), int64(len(content)), "text/plain"))

	rc, err := store.Open(ctx, "users/u1/f1.txt", nil)
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, content, got)

	rc, err = store.Open(ctx, "users/u1/f1.txt", &storage.ByteRange{Start: 10, End: 15})
	require.NoError(t, err)
	got, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, []byte("abcdef"), got)

	require.NoError(t, store.Delete(ctx, "users/u1/f1.txt"))
	require.NoError(t, store.Delete(ctx, "users/u1/f1.txt"))

	_, err = store.Open(ctx, "users/u1/f1.txt", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDiskStore_FailedPutLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := diskStore.New(root, 8)
	require.NoError(t, err)

	err = store.Put(context.Background(), "users/u1/f2.bin", &failingReader{after: 20}, 100, "")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "users", "u1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskStore_CanceledContext(t *testing.T) {
	store, err := diskStore.New(t.TempDir(), 8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Put(ctx, "k", bytes.NewReader([]byte("data")), 4, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	store, err := diskStore.New(t.TempDir(), 0)
	require.NoError(t, err)

	for _, key := range []string{"", "../outside", "/etc/passwd"} {
		err := store.Put(context.Background(), key, bytes.NewReader([]byte("x")), 1, "")
		assert.ErrorIs(t, err, apperr.ErrValidation, key)
	}
}
