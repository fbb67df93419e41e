// Package storage provides location-addressed byte storage over local paths, S3 and GCS
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupportedScheme is returned when a location uses a scheme with no backend
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	// ErrInvalidLocation is returned when a remote location has no bucket or key
	ErrInvalidLocation = errors.New("invalid storage location")
	// ErrNotFound is returned when the object does not exist
	ErrNotFound = errors.New("object not found")
)

const (
	// SchemeFile addresses the local filesystem; plain paths use it too
	SchemeFile = "file"
	// SchemeS3 addresses S3-compatible object storage
	SchemeS3 = "s3"
	// SchemeGCS addresses Google Cloud Storage
	SchemeGCS = "gs"
)

// Store reads and writes whole objects addressed by location
type Store interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Put(ctx context.Context, location string, data []byte) error
}

// Mux dispatches to a backend by the location's scheme. Remote backends are built on first use.
type Mux struct {
	log   logrus.FieldLogger
	cfg   Config
	local *LocalStore

	s3Once sync.Once
	s3     Store
	s3Err  error

	gcsOnce sync.Once
	gcs     Store
	gcsErr  error
}

// NewMux creates a scheme-dispatching store
func NewMux(log logrus.FieldLogger, cfg Config) *Mux {
	return &Mux{
		log:   log.WithField("service", "storage"),
		cfg:   cfg,
		local: NewLocalStore(),
	}
}

// NewMuxWith creates a Mux with explicit remote backends, used by tests and embedders
func NewMuxWith(log logrus.FieldLogger, s3Store, gcsStore Store) *Mux {
	m := NewMux(log, Config{})

	if s3Store != nil {
		m.s3Once.Do(func() { m.s3 = s3Store })
	}

	if gcsStore != nil {
		m.gcsOnce.Do(func() { m.gcs = gcsStore })
	}

	return m
}

// Open opens the object at location for reading
func (m *Mux) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	store, err := m.backend(ctx, location)
	if err != nil {
		return nil, err
	}

	return store.Open(ctx, location)
}

// Put replaces the object at location with data
func (m *Mux) Put(ctx context.Context, location string, data []byte) error {
	store, err := m.backend(ctx, location)
	if err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"location": location,
		"bytes":    len(data),
	}).Debug("Writing object")

	return store.Put(ctx, location, data)
}

func (m *Mux) backend(ctx context.Context, location string) (Store, error) {
	switch Scheme(location) {
	case "", SchemeFile:
		return m.local, nil
	case SchemeS3:
		m.s3Once.Do(func() {
			m.s3, m.s3Err = NewS3Store(ctx, m.cfg.S3)
		})

		if m.s3Err != nil {
			return nil, m.s3Err
		}

		if m.s3 == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, SchemeS3)
		}

		return m.s3, nil
	case SchemeGCS:
		m.gcsOnce.Do(func() {
			m.gcs, m.gcsErr = NewGCSStore(ctx, m.cfg.GCS)
		})

		if m.gcsErr != nil {
			return nil, m.gcsErr
		}

		if m.gcs == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, SchemeGCS)
		}

		return m.gcs, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, Scheme(location))
	}
}

// Close releases remote clients that were built
func (m *Mux) Close() error {
	if closer, ok := m.gcs.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// Scheme returns the lower-cased URI scheme of location, or "" for a plain path
func Scheme(location string) string {
	idx := strings.Index(location, "://")
	if idx <= 0 {
		return ""
	}

	return strings.ToLower(location[:idx])
}

// IsRemote reports whether location addresses an object store
func IsRemote(location string) bool {
	s := Scheme(location)
	return s != "" && s != SchemeFile
}

// Join appends slash-separated elements to a base location, trimming duplicate separators
func Join(base string, elems ...string) string {
	out := strings.TrimRight(base, "/")

	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}

		if out == "" {
			out = e
			continue
		}

		out += "/" + e
	}

	return out
}

// ReadAll opens location on store and reads it fully
func ReadAll(ctx context.Context, store Store, location string) ([]byte, error) {
	rc, err := store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}

	return data, nil
}

// splitBucketKey parses scheme://bucket/key
func splitBucketKey(location, scheme string) (bucket, key string, err error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(strings.ToLower(location), prefix) {
		return "", "", fmt.Errorf("%w: %q is not a %s location", ErrInvalidLocation, location, scheme)
	}

	rest := location[len(prefix):]

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and key", ErrInvalidLocation, location)
	}

	return bucket, key, nil
}
