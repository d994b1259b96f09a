package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Config holds connection settings for an AWS S3 bucket.
type S3Config struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
	StagingDir string
	OpTimeout  time.Duration
}

// S3Store implements Store using the AWS SDK. It covers the same contract
// as MinioStore and is selected by the storage.provider config setting.
type S3Store struct {
	svc       *s3.S3
	bucket    string
	staging   string
	opTimeout time.Duration
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	if err := os.MkdirAll(cfg.StagingDir, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	return &S3Store{
		svc:       s3.New(sess),
		bucket:    cfg.Bucket,
		staging:   cfg.StagingDir,
		opTimeout: timeout,
	}, nil
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var names []string
	err := s.svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			names = append(names, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, wrapErr("list objects", err)
	}
	return names, nil
}

func (s *S3Store) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	head, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return ObjectInfo{}, wrapErr("stat "+name, err)
	}
	return ObjectInfo{
		Name:      name,
		Size:      aws.Int64Value(head.ContentLength),
		UpdatedAt: aws.TimeValue(head.LastModified),
	}, nil
}

func (s *S3Store) OpenWrite(ctx context.Context, name string) (WriteSink, error) {
	tmp, err := os.CreateTemp(s.staging, "upload-*")
	if err != nil {
		return nil, wrapErr("stage "+name, err)
	}
	return &s3Sink{store: s, name: name, tmp: tmp}, nil
}

func (s *S3Store) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, wrapErr("open "+name, err)
	}
	return out.Body, nil
}

type s3Sink struct {
	store     *S3Store
	name      string
	tmp       *os.File
	committed bool
	aborted   bool
}

func (w *s3Sink) Write(p []byte) (int, error) {
	if w.committed || w.aborted {
		return 0, wrapErr("write "+w.name, fmt.Errorf("write on closed sink"))
	}
	n, err := w.tmp.Write(p)
	if err != nil {
		return n, wrapErr("write "+w.name, err)
	}
	return n, nil
}

func (w *s3Sink) Commit(ctx context.Context) (ObjectInfo, error) {
	if w.aborted {
		return ObjectInfo{}, wrapErr("commit "+w.name, fmt.Errorf("sink already aborted"))
	}
	if w.committed {
		return ObjectInfo{}, wrapErr("commit "+w.name, fmt.Errorf("sink already committed"))
	}

	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		return ObjectInfo{}, wrapErr("commit "+w.name, err)
	}

	_, err := w.store.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.store.bucket),
		Key:         aws.String(w.name),
		Body:        w.tmp,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return ObjectInfo{}, wrapErr("commit "+w.name, err)
	}

	w.committed = true
	w.cleanup()

	return w.store.Stat(ctx, w.name)
}

func (w *s3Sink) Abort() error {
	if w.aborted || w.committed {
		return nil
	}
	w.aborted = true
	w.cleanup()
	return nil
}

func (w *s3Sink) cleanup() {
	name := w.tmp.Name()
	w.tmp.Close()
	os.Remove(name)
}
