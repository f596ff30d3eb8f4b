package importService_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/drive"
	"dataroom-service/internal/model/fileInfo"
	"dataroom-service/internal/repository"
	"dataroom-service/internal/repository/sqliteRepo"
	"dataroom-service/internal/service/importService"
	"dataroom-service/internal/storage/diskStore"
	"dataroom-service/internal/storage/writer"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type remoteObject struct {
	entry   drive.Entry
	content []byte
	getErr  error
	// openDelay holds Open back so concurrent batches overlap.
	openDelay time.Duration
	blockGet  bool
}

type fakeRemote struct {
	mu      sync.Mutex
	objects map[string]*remoteObject
	opens   map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: map[string]*remoteObject{}, opens: map[string]int{}}
}

func (f *fakeRemote) add(o *remoteObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[o.entry.ID] = o
}

func (f *fakeRemote) addFile(id, name, mimeType string, content []byte) {
	size := int64(len(content))
	f.add(&remoteObject{
		entry:   drive.Entry{ID: id, Name: name, MimeType: mimeType, SizeBytes: &size, WebViewLink: "https://drive/" + id},
		content: content,
	})
}

func (f *fakeRemote) object(id string) (*remoteObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[id]
	return o, ok
}

func (f *fakeRemote) Get(ctx context.Context, _ oauth2.TokenSource, id string) (*drive.Entry, error) {
	o, ok := f.object(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}
	if o.blockGet {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if o.getErr != nil {
		return nil, o.getErr
	}
	e := o.entry
	return &e, nil
}

func (f *fakeRemote) Open(ctx context.Context, _ oauth2.TokenSource, id string) (io.ReadCloser, error) {
	o, ok := f.object(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	f.mu.Lock()
	f.opens[id]++
	f.mu.Unlock()
	if o.openDelay > 0 {
		select {
		case <-time.After(o.openDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return io.NopCloser(bytes.NewReader(o.content)), nil
}

func (f *fakeRemote) openCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[id]
}

type env struct {
	remote *fakeRemote
	files  repository.FileRepository
	blobs  *diskStore.DiskStore
	root   string
	rec    *importService.Reconciler
	user   importService.Principal
}

func newEnv(t *testing.T, cfg importService.Config) *env {
	t.Helper()
	store, err := sqliteRepo.New(context.Background(), sqliteRepo.Config{Path: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	root := t.TempDir()
	blobs, err := diskStore.New(root, 0)
	require.NoError(t, err)

	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = 10 * time.Second
	}
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = 20
	}

	remote := newFakeRemote()
	return &env{
		remote: remote,
		files:  store.Files(),
		blobs:  blobs,
		root:   root,
		rec:    importService.New(remote, store.Files(), writer.New(blobs, 512), blobs, cfg),
		user: importService.Principal{
			UserID: uuid.New(),
			Drive:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}),
		},
	}
}

func (e *env) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func sha(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func addNativeDoc(r *fakeRemote, id string) {
	r.add(&remoteObject{entry: drive.Entry{ID: id, Name: "Notes", MimeType: "application/vnd.google-apps.document"}})
}

func TestReconcile_ReportsScenario(t *testing.T) {
	e := newEnv(t, importService.Config{})
	ctx := context.Background()
	e.remote.addFile("R1", "A.pdf", "application/pdf", content(2048))
	addNativeDoc(e.remote, "R2")

	res, err := e.rec.Reconcile(ctx, e.user, []string{"R1", "R2"})
	require.NoError(t, err)

	require.Len(t, res.Imported, 1)
	f := res.Imported[0]
	assert.NotEqual(t, uuid.Nil, f.ID)
	require.NotNil(t, f.RemoteObjectID)
	assert.Equal(t, "R1", *f.RemoteObjectID)
	assert.EqualValues(t, 2048, f.SizeBytes)
	assert.Equal(t, fileInfo.StatusReady, f.Status)
	assert.Equal(t, "pdf", f.Extension)
	assert.Equal(t, "google_drive", f.ScanReport["source"])
	assert.Equal(t, "https://drive/R1", f.WebViewLink())
	assert.NotContains(t, f.StorageKey, "R1")
	assert.Equal(t, []importService.SkippedItem{{RemoteID: "R2", Reason: importService.ReasonUnsupportedType}}, res.Skipped)
	assert.Empty(t, res.Failed)

	again, err := e.rec.Reconcile(ctx, e.user, []string{"R1", "R2"})
	require.NoError(t, err)
	assert.Empty(t, again.Imported)
	assert.Empty(t, again.Failed)
	assert.ElementsMatch(t, []importService.SkippedItem{
		{RemoteID: "R1", Reason: importService.ReasonAlreadyImported},
		{RemoteID: "R2", Reason: importService.ReasonUnsupportedType},
	}, again.Skipped)

	assert.Equal(t, 1, e.remote.openCount("R1"), "re-import must not fetch content again")
	assert.Equal(t, 1, e.blobCount(t))
}

func TestReconcile_PartialFailureIsolation(t *testing.T) {
	e := newEnv(t, importService.Config{})
	e.remote.addFile("R1", "one.txt", "text/plain", []byte("first"))
	e.remote.addFile("R3", "three.txt", "text/plain", []byte("third"))

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1", "MISSING", "R3"})
	require.NoError(t, err)

	require.Len(t, res.Imported, 2)
	assert.Equal(t, "R1", *res.Imported[0].RemoteObjectID)
	assert.Equal(t, "R3", *res.Imported[1].RemoteObjectID)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "MISSING", res.Failed[0].RemoteID)
	assert.Equal(t, importService.CodeMetadataUnavailable, res.Failed[0].Code)
	assert.NotEmpty(t, res.Failed[0].Error)
	assert.Empty(t, res.Skipped)
	assert.False(t, res.ReauthRequired)
}

func TestReconcile_ChecksumStability(t *testing.T) {
	e := newEnv(t, importService.Config{})
	data := content(10_000)
	e.remote.addFile("R1", "blob.bin", "application/octet-stream", data)

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)

	f := res.Imported[0]
	require.NotNil(t, f.Checksum)
	assert.Equal(t, sha(data), *f.Checksum)

	rc, err := e.blobs.Open(context.Background(), f.StorageKey, nil)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, *f.Checksum, sha(stored))
}

func TestReconcile_DuplicateRace(t *testing.T) {
	e := newEnv(t, importService.Config{})
	size := int64(4096)
	e.remote.add(&remoteObject{
		entry:     drive.Entry{ID: "R1", Name: "race.bin", MimeType: "application/octet-stream", SizeBytes: &size},
		content:   content(4096),
		openDelay: 100 * time.Millisecond,
	})

	const callers = 4
	results := make([]*importService.BatchResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	imported := 0
	for _, res := range results {
		require.NotNil(t, res)
		imported += len(res.Imported)
		assert.Equal(t, 1, len(res.Imported)+len(res.Skipped)+len(res.Failed))
		for _, s := range res.Skipped {
			assert.Equal(t, importService.ReasonAlreadyImported, s.Reason)
		}
	}
	assert.Equal(t, 1, imported)

	list, err := e.files.ListForUser(context.Background(), e.user.UserID, repository.ListOptions{})
	require.NoError(t, err)
	ready := 0
	for _, f := range list {
		if f.Status == fileInfo.StatusReady {
			ready++
		}
	}
	assert.Equal(t, 1, ready)
}

func TestReconcile_SizeInvariant(t *testing.T) {
	e := newEnv(t, importService.Config{})
	e.remote.addFile("R0", "empty.txt", "text/plain", nil)

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R0"})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "validation_failed", res.Failed[0].Code)
	assert.Zero(t, e.remote.openCount("R0"))
	assert.Zero(t, e.blobCount(t))

	found, err := e.files.FindByRemoteID(context.Background(), "R0")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestReconcile_WriteFailureThenRetry(t *testing.T) {
	e := newEnv(t, importService.Config{})
	size := int64(100)
	e.remote.add(&remoteObject{
		entry:   drive.Entry{ID: "R1", Name: "short.txt", MimeType: "text/plain", SizeBytes: &size},
		content: []byte("only a few bytes"),
	})

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "storage_write_failed", res.Failed[0].Code)
	assert.Zero(t, e.blobCount(t), "partial blob must be removed")

	attempts, err := e.files.CountFailedAttempts(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	e.remote.addFile("R1", "short.txt", "text/plain", []byte("fixed content"))
	res, err = e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, res.Imported, 1, "failed rows do not block a retry")
	assert.Equal(t, sha([]byte("fixed content")), *res.Imported[0].Checksum)
}

func TestReconcile_RetryCap(t *testing.T) {
	e := newEnv(t, importService.Config{MaxAttempts: 2})
	size := int64(50)
	e.remote.add(&remoteObject{
		entry:   drive.Entry{ID: "R1", Name: "broken.txt", MimeType: "text/plain", SizeBytes: &size},
		content: []byte("short"),
	})

	for i := 0; i < 2; i++ {
		res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
		require.NoError(t, err)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "storage_write_failed", res.Failed[0].Code)
	}

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, importService.CodeRetryLimitExceeded, res.Failed[0].Code)
	assert.Equal(t, 2, e.remote.openCount("R1"))
}

func TestReconcile_ItemTimeout(t *testing.T) {
	e := newEnv(t, importService.Config{ItemTimeout: 50 * time.Millisecond})
	e.remote.add(&remoteObject{entry: drive.Entry{ID: "SLOW"}, blockGet: true})
	e.remote.addFile("R1", "ok.txt", "text/plain", []byte("fine"))

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"SLOW", "R1"})
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "SLOW", res.Failed[0].RemoteID)
	assert.Equal(t, "timeout", res.Failed[0].Code)
}

func TestReconcile_CanceledBatch(t *testing.T) {
	e := newEnv(t, importService.Config{})
	e.remote.addFile("R1", "a.txt", "text/plain", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.rec.Reconcile(ctx, e.user, []string{"R1"})
	require.NoError(t, err)
	assert.Empty(t, res.Imported)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Failed)
	assert.Zero(t, e.remote.openCount("R1"))
}

func TestReconcile_CancelMidWriteLeavesNoProcessingRow(t *testing.T) {
	e := newEnv(t, importService.Config{})
	size := int64(64)
	e.remote.add(&remoteObject{
		entry:     drive.Entry{ID: "R1", Name: "a.bin", MimeType: "application/octet-stream", SizeBytes: &size},
		content:   content(64),
		openDelay: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := e.rec.Reconcile(ctx, e.user, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)

	list, err := e.files.ListForUser(context.Background(), e.user.UserID, repository.ListOptions{})
	require.NoError(t, err)
	for _, f := range list {
		assert.NotEqual(t, fileInfo.StatusProcessing, f.Status)
	}
}

func TestReconcile_NotConnected(t *testing.T) {
	e := newEnv(t, importService.Config{})
	e.remote.add(&remoteObject{
		entry:  drive.Entry{ID: "R1"},
		getErr: fmt.Errorf("%w: token revoked", apperr.ErrNotConnected),
	})

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1"})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, importService.CodeMetadataUnavailable, res.Failed[0].Code)
	assert.True(t, res.ReauthRequired)

	_, err = e.rec.Reconcile(context.Background(), importService.Principal{UserID: e.user.UserID}, []string{"R1"})
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
}

func TestReconcile_Preconditions(t *testing.T) {
	e := newEnv(t, importService.Config{MaxBatch: 3})

	_, err := e.rec.Reconcile(context.Background(), e.user, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.rec.Reconcile(context.Background(), e.user, []string{" ", ""})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.rec.Reconcile(context.Background(), e.user, strings.Fields("a b c d"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReconcile_DeduplicatesIDs(t *testing.T) {
	e := newEnv(t, importService.Config{})
	e.remote.addFile("R1", "a.txt", "text/plain", []byte("a"))

	res, err := e.rec.Reconcile(context.Background(), e.user, []string{"R1", " R1 ", "R1"})
	require.NoError(t, err)
	assert.Len(t, res.Imported, 1)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Failed)
}
