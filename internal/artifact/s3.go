package artifact

import (
	"context"
	"errors"

	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
	"github.com/kuitang/notifier-e2e/internal/s3client"
)

// S3Store writes through to a local file and mirrors it to a bucket, so CI jobs on
// other machines can run dependent tests against the artifact one setup job produced.
type S3Store struct {
	local  *FileStore
	client *s3client.Client
	key    string
}

var _ Store = (*S3Store)(nil)

// NewS3Store mirrors the local artifact at path to key in the client's bucket.
func NewS3Store(local *FileStore, client *s3client.Client, key string) *S3Store {
	return &S3Store{local: local, client: client, key: key}
}

func (s *S3Store) Location() string {
	return s.local.Location() + " (" + s.client.ObjectURI(s.key) + ")"
}

// Save writes the local file first, then uploads it. Either failure is an IO error.
func (s *S3Store) Save(ctx context.Context, state []byte) error {
	if err := s.local.Save(ctx, state); err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, s.key, state, "application/json"); err != nil {
		return errs.Wrap(errs.IO, "upload session artifact", err)
	}
	obs.From(ctx).Debug("artifact_uploaded", "pkg", "artifact", "object", s.client.ObjectURI(s.key))
	return nil
}

// LocalPath materializes the bucket copy locally when no local file exists.
func (s *S3Store) LocalPath(ctx context.Context) (string, error) {
	if s.local.Exists() {
		return s.local.LocalPath(ctx)
	}
	data, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if err := s.local.Save(ctx, data); err != nil {
		return "", err
	}
	return s.local.Path(), nil
}

func (s *S3Store) fetch(ctx context.Context) ([]byte, error) {
	data, err := s.client.GetObject(ctx, s.key)
	if err != nil {
		if errors.Is(err, s3client.ErrObjectNotFound) {
			return nil, errs.Wrap(errs.IO, s.client.ObjectURI(s.key), ErrMissing)
		}
		return nil, errs.Wrap(errs.IO, "download session artifact", err)
	}
	obs.From(ctx).Debug("artifact_downloaded", "pkg", "artifact", "object", s.client.ObjectURI(s.key))
	return data, nil
}
