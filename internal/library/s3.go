package library

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrWong99/voxbridge/pkg/playback"
)

var _ Store = (*S3Store)(nil)

// S3Options configures an [S3Store].
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix limits the store to keys below it, e.g. "music/".
	Prefix string
	Secure bool
}

// S3Store serves tracks from an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store creates a MinIO client for opts. No request is made until the
// store is used.
func NewS3Store(opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("library: s3 client: %w", err)
	}
	prefix := strings.TrimPrefix(opts.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: opts.Bucket, prefix: prefix}, nil
}

// Name implements [Store].
func (s *S3Store) Name() string { return "s3:" + s.bucket + "/" + s.prefix }

// List implements [Store].
func (s *S3Store) List(ctx context.Context) ([]playback.Track, error) {
	var tracks []playback.Track
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("library: list %s: %w", s.bucket, obj.Err)
		}
		if t, ok := trackFor(s.location(obj.Key), obj.Size); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// Open implements [Store]. The object is stat'ed first so a missing key is
// reported before playback starts.
func (s *S3Store) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	key := s.key(location)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("library: get %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("library: stat %s: %w", key, err)
	}
	return obj, nil
}

// Ping checks that the bucket exists and is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("library: ping %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("library: bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *S3Store) key(location string) string {
	return s.prefix + strings.TrimPrefix(path.Clean("/"+location), "/")
}

func (s *S3Store) location(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
