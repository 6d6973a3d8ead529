// Package media generates campaign videos and images through vendor HTTP
// APIs and stores the results locally or in S3.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/fetch"
)

// Kind groups stored media into directories
type Kind string

// Media kinds
const (
	KindVideo  Kind = "videos"
	KindPoster Kind = "posters"
	KindImage  Kind = "images"
)

// Store persists generated media and returns a reference to it
type Store interface {
	Save(ctx context.Context, kind Kind, name string, data []byte, contentType string) (string, error)
}

// UniqueName returns "<prefix>_<uuid><ext>" so concurrent runs never collide
func UniqueName(prefix, ext string) string {
	return fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)
}

// LocalStore writes media under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Save writes data to <root>/<kind>/<name> and returns that path
func (s *LocalStore) Save(_ context.Context, kind Kind, name string, data []byte, _ string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid media file name %q", name)
	}
	dir := filepath.Join(s.root, string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return path, nil
}

// ObjectPutter is the subset of the S3 client used by S3Store
type ObjectPutter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Store uploads media to an S3 bucket
type S3Store struct {
	client ObjectPutter
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Store creates a store uploading under prefix in bucket
func NewS3Store(client ObjectPutter, bucket, prefix string, logger zerolog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// Save uploads data and returns its public object URL
func (s *S3Store) Save(ctx context.Context, kind Kind, name string, data []byte, contentType string) (string, error) {
	key := string(kind) + "/" + name
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("bucket", s.bucket).Str("key", key).Msg("failed to upload media to S3")
		return "", fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	s.logger.Debug().Str("url", url).Msg("uploaded media to S3")
	return url, nil
}

// Opener resolves a media reference to its bytes
type Opener struct {
	fetchOptions *fetch.Options
}

// NewOpener creates an opener; nil options use fetch defaults
func NewOpener(opts *fetch.Options) *Opener {
	return &Opener{fetchOptions: opts}
}

// Open reads a local path or downloads an http(s) URL and returns the
// bytes and their content type.
func (o *Opener) Open(ctx context.Context, ref string) ([]byte, string, error) {
	if ref == "" {
		return nil, "", fmt.Errorf("empty media reference")
	}
	if fetch.IsRemote(ref) {
		res, err := fetch.URL(ctx, ref, o.fetchOptions)
		if err != nil {
			return nil, "", err
		}
		contentType := res.ContentType
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mimetype.Detect(res.Body).String()
		}
		return res.Body, contentType, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media %s: %w", ref, err)
	}
	return data, mimetype.Detect(data).String(), nil
}
