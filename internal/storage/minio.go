package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultOpTimeout = 30 * time.Second

// MinioConfig holds connection settings for a MinIO or S3-compatible bucket.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	StagingDir string
	// OpTimeout bounds metadata operations (list, stat, commit finalize).
	// Bulk byte transfer runs on the caller's context.
	OpTimeout time.Duration
}

// MinioStore implements Store on top of a MinIO-compatible bucket.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	staging   string
	opTimeout time.Duration
}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if err := os.MkdirAll(cfg.StagingDir, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		staging:   cfg.StagingDir,
		opTimeout: timeout,
	}, nil
}

func (s *MinioStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var names []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, wrapErr("list objects", info.Err)
		}
		names = append(names, info.Key)
	}
	return names, nil
}

func (s *MinioStore) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, wrapErr("stat "+name, err)
	}
	return ObjectInfo{
		Name:      name,
		Size:      info.Size,
		UpdatedAt: info.LastModified,
	}, nil
}

func (s *MinioStore) OpenWrite(ctx context.Context, name string) (WriteSink, error) {
	tmp, err := os.CreateTemp(s.staging, "upload-*")
	if err != nil {
		return nil, wrapErr("stage "+name, err)
	}
	return &minioSink{store: s, name: name, tmp: tmp}, nil
}

func (s *MinioStore) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapErr("open "+name, err)
	}
	// GetObject is lazy; surface missing objects here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, wrapErr("open "+name, err)
	}
	return obj, nil
}

// minioSink stages bytes to a local temp file and uploads the whole object
// on Commit. MinIO's client splits large uploads into multipart internally.
type minioSink struct {
	store     *MinioStore
	name      string
	tmp       *os.File
	committed bool
	aborted   bool
}

func (w *minioSink) Write(p []byte) (int, error) {
	if w.committed || w.aborted {
		return 0, wrapErr("write "+w.name, fmt.Errorf("write on closed sink"))
	}
	n, err := w.tmp.Write(p)
	if err != nil {
		return n, wrapErr("write "+w.name, err)
	}
	return n, nil
}

func (w *minioSink) Commit(ctx context.Context) (ObjectInfo, error) {
	if w.aborted {
		return ObjectInfo{}, wrapErr("commit "+w.name, fmt.Errorf("sink already aborted"))
	}
	if w.committed {
		return ObjectInfo{}, wrapErr("commit "+w.name, fmt.Errorf("sink already committed"))
	}

	stat, err := w.tmp.Stat()
	if err != nil {
		return ObjectInfo{}, wrapErr("commit "+w.name, err)
	}
	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		return ObjectInfo{}, wrapErr("commit "+w.name, err)
	}

	_, err = w.store.client.PutObject(ctx, w.store.bucket, w.name, w.tmp, stat.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return ObjectInfo{}, wrapErr("commit "+w.name, err)
	}

	w.committed = true
	w.cleanup()

	return w.store.Stat(ctx, w.name)
}

func (w *minioSink) Abort() error {
	if w.aborted || w.committed {
		return nil
	}
	w.aborted = true
	w.cleanup()
	return nil
}

func (w *minioSink) cleanup() {
	name := w.tmp.Name()
	w.tmp.Close()
	os.Remove(name)
}
