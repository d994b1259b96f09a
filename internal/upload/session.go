package upload

import (
	"errors"
	"sync"
	"time"

	"github.com/zots0127/filegate/internal/storage"
)

// Client protocol violations and lifecycle errors. Storage trouble is
// reported separately as *storage.Error.
var (
	ErrDenied          = errors.New("api key not authorized")
	ErrInvalidName     = errors.New("file name must not be empty")
	ErrInvalidSize     = errors.New("invalid upload size")
	ErrOutOfOrder      = errors.New("chunk offset does not match bytes received")
	ErrIncomplete      = errors.New("upload is not complete")
	ErrSessionNotFound = errors.New("upload session not found")
)

// Status is the lifecycle state of an upload session. Transitions are
// monotonic: a session never returns to Pending, and Completed, Aborted
// and Failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further mutation of the session is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusFailed
}

// Session is a point-in-time snapshot of an upload session, safe to hand
// out to callers.
type Session struct {
	ID            string    `json:"sessionId"`
	FileName      string    `json:"fileName"`
	TotalSize     int64     `json:"totalSize"`
	BytesReceived int64     `json:"bytesReceived"`
	Status        Status    `json:"status"`
	APIKeyID      string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// session is the mutable server-side state. mu serializes every mutating
// call on the session; independent sessions never share a lock.
type session struct {
	mu sync.Mutex

	id            string
	fileName      string
	totalSize     int64
	bytesReceived int64
	status        Status
	apiKeyID      string
	createdAt     time.Time

	sink   storage.WriteSink
	result storage.ObjectInfo // committed metadata, kept for idempotent Complete
}

func (s *session) snapshot() Session {
	return Session{
		ID:            s.id,
		FileName:      s.fileName,
		TotalSize:     s.totalSize,
		BytesReceived: s.bytesReceived,
		Status:        s.status,
		APIKeyID:      s.apiKeyID,
		CreatedAt:     s.createdAt,
	}
}
