package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore stores objects in Google Cloud Storage at gs://bucket/key
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore builds a GCS client from cfg
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{client: client}, nil
}

// Open streams the object
func (s *GCSStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := splitBucketKey(location, SchemeGCS)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}

		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}

	return r, nil
}

// Put uploads data, replacing any existing object
func (s *GCSStore) Put(ctx context.Context, location string, data []byte) error {
	bucket, key, err := splitBucketKey(location, SchemeGCS)
	if err != nil {
		return err
	}

	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %s: %w", location, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", location, err)
	}

	return nil
}

// Close releases the client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
