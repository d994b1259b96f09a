package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps objects in memory. It is safe for concurrent use and
// intended for development and tests; committed objects become visible to
// List/Stat atomically, staged writes never do.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject

	// StatErr, when set, makes Stat fail for the named objects.
	StatErr map[string]error
	// CommitErr, when set, makes Commit fail for the named objects.
	CommitErr map[string]error
	// ListErr, when set, makes List fail.
	ListErr error
}

type memObject struct {
	data      []byte
	updatedAt time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

// Put commits an object directly, bypassing the staged write path.
func (s *MemoryStore) Put(name string, data []byte, updatedAt time.Time) {
	s.mu.Lock()
	s.objects[name] = memObject{data: append([]byte(nil), data...), updatedAt: updatedAt}
	s.mu.Unlock()
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ListErr != nil {
		return nil, wrapErr("list objects", s.ListErr)
	}
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.StatErr[name]; err != nil {
		return ObjectInfo{}, wrapErr("stat "+name, err)
	}
	obj, ok := s.objects[name]
	if !ok {
		return ObjectInfo{}, wrapErr("stat "+name, fmt.Errorf("no such object"))
	}
	return ObjectInfo{Name: name, Size: int64(len(obj.data)), UpdatedAt: obj.updatedAt}, nil
}

func (s *MemoryStore) OpenWrite(ctx context.Context, name string) (WriteSink, error) {
	return &memorySink{store: s, name: name}, nil
}

func (s *MemoryStore) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[name]
	s.mu.RUnlock()
	if !ok {
		return nil, wrapErr("open "+name, fmt.Errorf("no such object"))
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

type memorySink struct {
	store     *MemoryStore
	name      string
	buf       bytes.Buffer
	committed bool
	aborted   bool
}

func (w *memorySink) Write(p []byte) (int, error) {
	if w.committed || w.aborted {
		return 0, wrapErr("write "+w.name, fmt.Errorf("write on closed sink"))
	}
	return w.buf.Write(p)
}

func (w *memorySink) Commit(ctx context.Context) (ObjectInfo, error) {
	if w.aborted {
		return ObjectInfo{}, wrapErr("commit "+w.name, fmt.Errorf("sink already aborted"))
	}
	if w.committed {
		return ObjectInfo{}, wrapErr("commit "+w.name, fmt.Errorf("sink already committed"))
	}
	if err := w.store.CommitErr[w.name]; err != nil {
		return ObjectInfo{}, wrapErr("commit "+w.name, err)
	}
	w.committed = true
	now := time.Now().UTC()
	w.store.Put(w.name, w.buf.Bytes(), now)
	return ObjectInfo{Name: w.name, Size: int64(w.buf.Len()), UpdatedAt: now}, nil
}

func (w *memorySink) Abort() error {
	if w.aborted || w.committed {
		return nil
	}
	w.aborted = true
	w.buf.Reset()
	return nil
}
