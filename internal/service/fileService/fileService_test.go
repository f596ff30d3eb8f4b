package fileService_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/auditLog"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/repository/sqliteRepo"
	"dataroom-service/internal/service/auditService"
	"dataroom-service/internal/service/fileService"
	"dataroom-service/internal/storage/diskStore"
	"dataroom-service/internal/storage/writer"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *fileService.FileService
	store    *sqliteRepo.Store
	blobs    *diskStore.DiskStore
	recorder *auditService.Recorder
	owner    uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := sqliteRepo.New(context.Background(), sqliteRepo.Config{Path: filepath.Join(t.TempDir(), "files.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := diskStore.New(t.TempDir(), 0)
	require.NoError(t, err)

	rec := auditService.New(store.Logs(), nil)
	return &fixture{
		svc:      fileService.New(store.Files(), blobs, rec),
		store:    store,
		blobs:    blobs,
		recorder: rec,
		owner:    uuid.New(),
	}
}

// seed stores data as a ready file of the fixture owner.
func (f *fixture) seed(t *testing.T, data []byte) *fileInfo.File {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	d := fileInfo.Draft{
		ID:           id,
		OwnerID:      f.owner,
		StorageKey:   fileInfo.StorageKey(f.owner, id, "txt"),
		OriginalName: "notes.txt",
		Extension:    "txt",
		MimeType:     "text/plain",
		SizeBytes:    int64(len(data)),
	}
	created, err := f.store.Files().Create(ctx, d)
	require.NoError(t, err)

	res, err := writer.New(f.blobs, 0).Write(ctx, bytes.NewReader(data), created.StorageKey, d.SizeBytes, d.MimeType)
	require.NoError(t, err)
	ready, err := f.store.Files().MarkReady(ctx, created.ID, res.ChecksumHex, res.SizeBytes)
	require.NoError(t, err)
	return ready
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestOpen_FullAndRange(t *testing.T) {
	f := setup(t)
	file := f.seed(t, []byte("0123456789"))
	ctx := context.Background()
	ac := auditService.AccessContext{IP: "127.0.0.1", UserAgent: "test"}

	full, err := f.svc.Open(ctx, f.owner, file.ID, "", auditLog.AccessView, ac)
	require.NoError(t, err)
	assert.Nil(t, full.Range)
	assert.Equal(t, "0123456789", readAll(t, full.Body))

	part, err := f.svc.Open(ctx, f.owner, file.ID, "bytes=2-4", auditLog.AccessDownload, ac)
	require.NoError(t, err)
	require.NotNil(t, part.Range)
	assert.Equal(t, "bytes 2-4/10", part.Range.ContentRange(file.SizeBytes))
	assert.Equal(t, "234", readAll(t, part.Body))

	malformed, err := f.svc.Open(ctx, f.owner, file.ID, "bytes=abc", auditLog.AccessView, ac)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", readAll(t, malformed.Body))

	_, err = f.svc.Open(ctx, f.owner, file.ID, "bytes=50-60", auditLog.AccessView, ac)
	assert.ErrorIs(t, err, apperr.ErrRangeNotSatisfiable)

	f.recorder.Close()
	entries, err := f.store.Logs().ListAccessForFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestOpen_OtherUserSeesNotFound(t *testing.T) {
	f := setup(t)
	file := f.seed(t, []byte("secret"))

	_, err := f.svc.Open(context.Background(), uuid.New(), file.ID, "", auditLog.AccessView, auditService.AccessContext{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = f.svc.Delete(context.Background(), uuid.New(), file.ID, auditService.AccessContext{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOpen_NotReady(t *testing.T) {
	f := setup(t)
	id := uuid.New()
	_, err := f.store.Files().Create(context.Background(), fileInfo.Draft{
		ID:           id,
		OwnerID:      f.owner,
		StorageKey:   fileInfo.StorageKey(f.owner, id, ""),
		OriginalName: "pending",
		SizeBytes:    5,
	})
	require.NoError(t, err)

	_, err = f.svc.Open(context.Background(), f.owner, id, "", auditLog.AccessView, auditService.AccessContext{})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDelete_SoftDeleteKeepsAccessLog(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	file := f.seed(t, []byte("to be deleted"))

	c, err := f.svc.Open(ctx, f.owner, file.ID, "", auditLog.AccessView, auditService.AccessContext{})
	require.NoError(t, err)
	readAll(t, c.Body)

	require.NoError(t, f.svc.Delete(ctx, f.owner, file.ID, auditService.AccessContext{IP: "10.1.1.1"}))

	list, err := f.svc.ListForUser(ctx, f.owner, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.blobs.Open(ctx, file.StorageKey, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = f.svc.Delete(ctx, f.owner, file.ID, auditService.AccessContext{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.recorder.Close()
	entries, err := f.store.Logs().ListAccessForFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, auditLog.AccessView, entries[0].Event)
	assert.Equal(t, auditLog.AccessDelete, entries[1].Event)
}

func TestVerify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	file := f.seed(t, []byte("integrity"))

	v, err := f.svc.Verify(ctx, f.owner, file.ID)
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, *file.Checksum, v.Actual)

	require.NoError(t, f.blobs.Put(ctx, file.StorageKey, bytes.NewReader([]byte("tampered!")), 9, "text/plain"))
	v, err = f.svc.Verify(ctx, f.owner, file.ID)
	require.NoError(t, err)
	assert.False(t, v.Match)
	assert.Equal(t, *file.Checksum, v.Expected)
}
