package upload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zots0127/filegate/internal/auth"
	"github.com/zots0127/filegate/internal/storage"
)

// MaxUploadSize is the upload ceiling: 3 GiB.
const MaxUploadSize int64 = 3 << 30

// Manager owns the lifecycle of in-progress uploads. Sessions are held in
// memory; bytes are staged through the object store's write sink and only
// become listable once Complete commits them.
type Manager struct {
	store      storage.Store
	authorizer *auth.Authorizer
	maxSize    int64

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewManager(store storage.Store, authorizer *auth.Authorizer) *Manager {
	return &Manager{
		store:      store,
		authorizer: authorizer,
		maxSize:    MaxUploadSize,
		sessions:   make(map[string]*session),
	}
}

// Begin creates a new session in Pending. The key id must belong to a
// currently valid API key; a denied key creates no session.
func (m *Manager) Begin(ctx context.Context, fileName string, totalSize int64, keyID string) (Session, error) {
	if fileName == "" {
		return Session{}, ErrInvalidName
	}
	if totalSize <= 0 || totalSize > m.maxSize {
		return Session{}, ErrInvalidSize
	}
	if !m.authorizer.AuthorizeID(keyID).Authorized {
		return Session{}, ErrDenied
	}

	s := &session{
		id:        uuid.New().String(),
		fileName:  fileName,
		totalSize: totalSize,
		status:    StatusPending,
		apiKeyID:  keyID,
		createdAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	return s.snapshot(), nil
}

// WriteChunk appends data at the given offset. Only a strict append is
// accepted: offset must equal the bytes received so far. The write sink is
// opened on the first chunk, which also moves the session to InProgress.
func (m *Manager) WriteChunk(ctx context.Context, sessionID string, offset int64, data []byte) (int64, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return 0, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return 0, ErrSessionNotFound
	}
	if offset != s.bytesReceived {
		return s.bytesReceived, ErrOutOfOrder
	}
	if s.bytesReceived+int64(len(data)) > s.totalSize {
		return s.bytesReceived, ErrInvalidSize
	}

	if s.sink == nil {
		sink, err := m.store.OpenWrite(ctx, s.fileName)
		if err != nil {
			s.status = StatusFailed
			return s.bytesReceived, err
		}
		s.sink = sink
	}
	s.status = StatusInProgress

	n, err := s.sink.Write(data)
	s.bytesReceived += int64(n)
	if err != nil {
		s.status = StatusFailed
		s.sink.Abort()
		return s.bytesReceived, err
	}
	return s.bytesReceived, nil
}

// Complete commits the staged object and returns its metadata. Completing
// an already-completed session returns the same record without
// re-committing.
func (m *Manager) Complete(ctx context.Context, sessionID string) (storage.ObjectInfo, error) {
	s, ok := m.get(sessionID)
	if !ok {
		return storage.ObjectInfo{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusCompleted:
		return s.result, nil
	case StatusAborted, StatusFailed:
		return storage.ObjectInfo{}, ErrSessionNotFound
	}

	if s.bytesReceived != s.totalSize || s.sink == nil {
		return storage.ObjectInfo{}, ErrIncomplete
	}

	info, err := s.sink.Commit(ctx)
	if err != nil {
		s.status = StatusFailed
		s.sink.Abort()
		return storage.ObjectInfo{}, err
	}

	s.status = StatusCompleted
	s.result = info
	return info, nil
}

// Abort cancels the session and releases any staged write state. Aborting
// a session that is already terminal is a no-op.
func (m *Manager) Abort(ctx context.Context, sessionID string) error {
	s, ok := m.get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return nil
	}
	if s.sink != nil {
		s.sink.Abort()
	}
	s.status = StatusAborted
	return nil
}

// Get returns a snapshot of the session, if it exists.
func (m *Manager) Get(sessionID string) (Session, bool) {
	s, ok := m.get(sessionID)
	if !ok {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), true
}

func (m *Manager) get(sessionID string) (*session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	return s, ok
}
