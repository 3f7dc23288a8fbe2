/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
)

// BlobStore is an in-memory datastore.BlobStore
type BlobStore struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
	ensured    int

	uploadError   error
	downloadError error
	deleteError   error
}

var _ datastore.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty in-memory blob store
func NewBlobStore() *BlobStore {
	return &BlobStore{containers: make(map[string]map[string][]byte)}
}

// WithUploadError makes Upload return err
func (m *BlobStore) WithUploadError(err error) *BlobStore {
	m.uploadError = err
	return m
}

// WithDownloadError makes Download return err
func (m *BlobStore) WithDownloadError(err error) *BlobStore {
	m.downloadError = err
	return m
}

// WithDeleteError makes Delete return err
func (m *BlobStore) WithDeleteError(err error) *BlobStore {
	m.deleteError = err
	return m
}

// EnsureContainer creates the container if needed
func (m *BlobStore) EnsureContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensured++
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string][]byte)
	}
	return nil
}

// Upload stores the content of r under container/name
func (m *BlobStore) Upload(ctx context.Context, container, name string, r io.Reader, overwrite bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.uploadError != nil {
		return "", m.uploadError
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blobs, ok := m.containers[container]
	if !ok {
		return "", errors.NewNotFoundError("container", container, nil)
	}
	if _, exists := blobs[name]; exists && !overwrite {
		return "", errors.NewAlreadyExistsError("blob", container+"/"+name, nil)
	}
	blobs[name] = data
	return BlobURI(container, name), nil
}

// Download returns the content of container/name
func (m *BlobStore) Download(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.downloadError != nil {
		return nil, m.downloadError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.containers[container][name]
	if !ok {
		return nil, errors.NewNotFoundError("blob", container+"/"+name, nil)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete removes container/name and reports whether it existed
func (m *BlobStore) Delete(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.deleteError != nil {
		return false, m.deleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blobs := m.containers[container]
	if _, ok := blobs[name]; !ok {
		return false, nil
	}
	delete(blobs, name)
	return true, nil
}

// DownloadURL returns the blob URI with the expiry and read permission as query
// parameters. The blob does not have to exist.
func (m *BlobStore) DownloadURL(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("sp", "r")
	q.Set("se", time.Now().UTC().Add(expiry).Format(time.RFC3339))
	return BlobURI(container, name) + "?" + q.Encode(), nil
}

// Helper methods for testing

// BlobURI returns the URI the store reports for container/name
func BlobURI(container, name string) string {
	return "memory://" + container + "/" + name
}

// EnsureCount returns how often EnsureContainer was called
func (m *BlobStore) EnsureCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ensured
}

// Exists reports whether container/name is stored
func (m *BlobStore) Exists(container, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.containers[container][name]
	return ok
}
