package upload_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/filegate/internal/auth"
	"github.com/zots0127/filegate/internal/storage"
	"github.com/zots0127/filegate/internal/upload"
)

// staticKeys is a key lookup with a fixed secret -> id mapping.
type staticKeys map[string]string

func (s staticKeys) Lookup(candidate string) (string, bool) {
	id, ok := s[candidate]
	return id, ok
}

func (s staticKeys) Active(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func newManager(t *testing.T) (*upload.Manager, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	authorizer := auth.New(staticKeys{"secret": "key-1"})
	return upload.NewManager(store, authorizer), store
}

func TestBeginValidation(t *testing.T) {
	tests := []struct {
		name      string
		fileName  string
		totalSize int64
		keyID     string
		wantErr   error
	}{
		{name: "zero size", fileName: "a.txt", totalSize: 0, keyID: "key-1", wantErr: upload.ErrInvalidSize},
		{name: "negative size", fileName: "a.txt", totalSize: -1, keyID: "key-1", wantErr: upload.ErrInvalidSize},
		{name: "above ceiling", fileName: "a.txt", totalSize: upload.MaxUploadSize + 1, keyID: "key-1", wantErr: upload.ErrInvalidSize},
		{name: "at ceiling", fileName: "a.txt", totalSize: upload.MaxUploadSize, keyID: "key-1"},
		{name: "empty file name", fileName: "", totalSize: 10, keyID: "key-1", wantErr: upload.ErrInvalidName},
		{name: "unknown key", fileName: "a.txt", totalSize: 1024, keyID: "bad-key", wantErr: upload.ErrDenied},
		{name: "empty key", fileName: "a.txt", totalSize: 1024, keyID: "", wantErr: upload.ErrDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t)
			sess, err := m.Begin(context.Background(), tt.fileName, tt.totalSize, tt.keyID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, sess.ID)
			assert.Equal(t, upload.StatusPending, sess.Status)
			assert.Equal(t, int64(0), sess.BytesReceived)
		})
	}
}

func TestDeniedKeyCreatesNoSession(t *testing.T) {
	m, _ := newManager(t)
	sess, err := m.Begin(context.Background(), "a.txt", 1024, "bad-key")
	assert.ErrorIs(t, err, upload.ErrDenied)
	assert.Empty(t, sess.ID)
	_, ok := m.Get(sess.ID)
	assert.False(t, ok)
}

func TestStrictAppendUpload(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "report.pdf", 100, "key-1")
	require.NoError(t, err)

	received, err := m.WriteChunk(ctx, sess.ID, 0, make([]byte, 50))
	require.NoError(t, err)
	assert.Equal(t, int64(50), received)

	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, upload.StatusInProgress, got.Status)

	received, err = m.WriteChunk(ctx, sess.ID, 50, make([]byte, 50))
	require.NoError(t, err)
	assert.Equal(t, int64(100), received)

	info, err := m.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, int64(100), info.Size)

	// The object is visible to the store only after completion.
	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.pdf"}, names)
}

func TestWriteChunkOutOfOrder(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "a.txt", 100, "key-1")
	require.NoError(t, err)

	for _, offset := range []int64{1, 50, 99, 100} {
		_, err := m.WriteChunk(ctx, sess.ID, offset, []byte("x"))
		assert.ErrorIs(t, err, upload.ErrOutOfOrder, "offset %d", offset)
	}

	_, err = m.WriteChunk(ctx, sess.ID, 0, make([]byte, 10))
	require.NoError(t, err)

	// Re-sending an acknowledged chunk is rejected the same way.
	_, err = m.WriteChunk(ctx, sess.ID, 0, make([]byte, 10))
	assert.ErrorIs(t, err, upload.ErrOutOfOrder)
}

func TestWriteChunkBeyondDeclaredSize(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "a.txt", 10, "key-1")
	require.NoError(t, err)

	_, err = m.WriteChunk(ctx, sess.ID, 0, make([]byte, 11))
	assert.ErrorIs(t, err, upload.ErrInvalidSize)
}

func TestWriteChunkUnknownOrTerminalSession(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.WriteChunk(ctx, "missing", 0, []byte("x"))
	assert.ErrorIs(t, err, upload.ErrSessionNotFound)

	sess, err := m.Begin(ctx, "a.txt", 1, "key-1")
	require.NoError(t, err)
	require.NoError(t, m.Abort(ctx, sess.ID))

	_, err = m.WriteChunk(ctx, sess.ID, 0, []byte("x"))
	assert.ErrorIs(t, err, upload.ErrSessionNotFound)
}

func TestCompleteIncomplete(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "a.txt", 100, "key-1")
	require.NoError(t, err)

	_, err = m.Complete(ctx, sess.ID)
	assert.ErrorIs(t, err, upload.ErrIncomplete)

	_, err = m.WriteChunk(ctx, sess.ID, 0, make([]byte, 99))
	require.NoError(t, err)

	_, err = m.Complete(ctx, sess.ID)
	assert.ErrorIs(t, err, upload.ErrIncomplete)
}

func TestCompleteIsIdempotent(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "a.txt", 5, "key-1")
	require.NoError(t, err)
	_, err = m.WriteChunk(ctx, sess.ID, 0, []byte("hello"))
	require.NoError(t, err)

	first, err := m.Complete(ctx, sess.ID)
	require.NoError(t, err)
	second, err := m.Complete(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompleteFailureMarksSessionFailed(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	store.CommitErr = map[string]error{"a.txt": errors.New("backend down")}

	sess, err := m.Begin(ctx, "a.txt", 5, "key-1")
	require.NoError(t, err)
	_, err = m.WriteChunk(ctx, sess.ID, 0, []byte("hello"))
	require.NoError(t, err)

	_, err = m.Complete(ctx, sess.ID)
	var storageErr *storage.Error
	require.ErrorAs(t, err, &storageErr)

	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, upload.StatusFailed, got.Status)

	// Failed is terminal; further completes surface SessionNotFound.
	_, err = m.Complete(ctx, sess.ID)
	assert.ErrorIs(t, err, upload.ErrSessionNotFound)
}

func TestAbort(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Abort(ctx, "missing"), upload.ErrSessionNotFound)

	sess, err := m.Begin(ctx, "a.txt", 100, "key-1")
	require.NoError(t, err)
	_, err = m.WriteChunk(ctx, sess.ID, 0, make([]byte, 10))
	require.NoError(t, err)

	require.NoError(t, m.Abort(ctx, sess.ID))
	got, _ := m.Get(sess.ID)
	assert.Equal(t, upload.StatusAborted, got.Status)

	// No partial object was committed.
	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	// No-op when already terminal.
	require.NoError(t, m.Abort(ctx, sess.ID))
	got, _ = m.Get(sess.ID)
	assert.Equal(t, upload.StatusAborted, got.Status)
}

func TestAbortAfterCompleteKeepsCompleted(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "a.txt", 3, "key-1")
	require.NoError(t, err)
	_, err = m.WriteChunk(ctx, sess.ID, 0, []byte("abc"))
	require.NoError(t, err)
	_, err = m.Complete(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, m.Abort(ctx, sess.ID))
	got, _ := m.Get(sess.ID)
	assert.Equal(t, upload.StatusCompleted, got.Status)
}

func TestConcurrentChunksNeverInterleave(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Begin(ctx, "a.txt", 1000, "key-1")
	require.NoError(t, err)

	// All writers race at offset 0; serialization means exactly one wins
	// and the rest fail the strict-offset check.
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.WriteChunk(ctx, sess.ID, 0, make([]byte, 10)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	got, _ := m.Get(sess.ID)
	assert.Equal(t, int64(10), got.BytesReceived)
}

func TestIndependentSessionsProceedInParallel(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess, err := m.Begin(ctx, "file-"+string(rune('a'+n)), 4, "key-1")
			assert.NoError(t, err)
			_, err = m.WriteChunk(ctx, sess.ID, 0, []byte("data"))
			assert.NoError(t, err)
			_, err = m.Complete(ctx, sess.ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
