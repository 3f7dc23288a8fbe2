/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package cloudstore

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/metrics"
)

const blobManagerLabel = "blob"

// DownloadURLExpiry is how long a URL from GetDownloadURL stays valid.
const DownloadURLExpiry = time.Minute

// Blob failure messages.
const (
	FileNotStored     = "File could not be stored in the cloud!"
	FileNotRetrieved  = "File could not be retrieved from the cloud!"
	FileNotDeleted    = "File could not be deleted from the cloud!"
	FileURLNotCreated = "Download URL could not be created!"
	FileNameRequired  = "Filename cannot be empty!"
	ContainerRequired = "Containername cannot be empty!"
)

// StoreOptions configures a store call.
type StoreOptions struct {
	Overwrite bool
}

// StoreOption is a functional option for the Store methods.
type StoreOption func(*StoreOptions)

// WithOverwrite controls whether an existing blob is replaced. By default storing over an
// existing blob fails.
func WithOverwrite(overwrite bool) StoreOption {
	return func(o *StoreOptions) { o.Overwrite = overwrite }
}

// BlobManager stores files as blobs. The container is created when it does not exist.
// Provider failures are returned as an OperationError that unwraps to the cause.
type BlobManager struct {
	store   datastore.BlobStore
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func newBlobManager(store datastore.BlobStore, logger zerolog.Logger, m *metrics.Collector) *BlobManager {
	return &BlobManager{store: store, logger: logger, metrics: m}
}

func (b *BlobManager) observe(op, container, name string, start time.Time, err error) {
	b.metrics.Observe(blobManagerLabel, op, start, err)
	b.logger.Debug().Err(err).
		Str("op", op).
		Str("container", container).
		Str("blob", name).
		Dur("elapsed", time.Since(start)).
		Msg("blob operation")
}

// StoreFile uploads r as container/name and returns the blob URI.
func (b *BlobManager) StoreFile(ctx context.Context, name, container string, r io.Reader, opts ...StoreOption) (uri string, err error) {
	start := time.Now()
	defer func() { b.observe("store", container, name, start, err) }()

	if err := validateBlobTarget(name, container); err != nil {
		return "", err
	}
	var o StoreOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := b.store.EnsureContainer(ctx, container); err != nil {
		return "", errors.NewOperationError("store "+container+"/"+name, FileNotStored, err)
	}
	uri, err = b.store.Upload(ctx, container, name, r, o.Overwrite)
	if err != nil {
		return "", errors.NewOperationError("store "+container+"/"+name, FileNotStored, err)
	}
	return uri, nil
}

// StoreBytes uploads data as container/name.
func (b *BlobManager) StoreBytes(ctx context.Context, name, container string, data []byte, opts ...StoreOption) (string, error) {
	return b.StoreFile(ctx, name, container, bytes.NewReader(data), opts...)
}

// StoreString uploads s as container/name.
func (b *BlobManager) StoreString(ctx context.Context, name, container, s string, opts ...StoreOption) (string, error) {
	return b.StoreFile(ctx, name, container, strings.NewReader(s), opts...)
}

// GetBytes downloads container/name.
func (b *BlobManager) GetBytes(ctx context.Context, name, container string) (data []byte, err error) {
	start := time.Now()
	defer func() { b.observe("get", container, name, start, err) }()

	if err := validateBlobTarget(name, container); err != nil {
		return nil, err
	}
	if err := b.store.EnsureContainer(ctx, container); err != nil {
		return nil, errors.NewOperationError("get "+container+"/"+name, FileNotRetrieved, err)
	}
	data, err = b.store.Download(ctx, container, name)
	if err != nil {
		return nil, errors.NewOperationError("get "+container+"/"+name, FileNotRetrieved, err)
	}
	return data, nil
}

// GetString downloads container/name as UTF-8 text.
func (b *BlobManager) GetString(ctx context.Context, name, container string) (string, error) {
	data, err := b.GetBytes(ctx, name, container)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteFile removes container/name with its snapshots. It reports false when no such
// blob existed.
func (b *BlobManager) DeleteFile(ctx context.Context, name, container string) (deleted bool, err error) {
	start := time.Now()
	defer func() { b.observe("delete", container, name, start, err) }()

	if err := validateBlobTarget(name, container); err != nil {
		return false, err
	}
	if err := b.store.EnsureContainer(ctx, container); err != nil {
		return false, errors.NewOperationError("delete "+container+"/"+name, FileNotDeleted, err)
	}
	deleted, err = b.store.Delete(ctx, container, name)
	if err != nil {
		return false, errors.NewOperationError("delete "+container+"/"+name, FileNotDeleted, err)
	}
	return deleted, nil
}

// GetDownloadURL returns a signed read-only URL for a blob in container that expires
// after DownloadURLExpiry. blob is the blob name or the URI StoreFile returned for it.
// The blob is not required to exist.
func (b *BlobManager) GetDownloadURL(ctx context.Context, blob, container string) (link string, err error) {
	start := time.Now()
	name := blobNameOf(blob, container)
	defer func() { b.observe("download_url", container, name, start, err) }()

	if err := validateBlobTarget(name, container); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	link, err = b.store.DownloadURL(ctx, container, name, DownloadURLExpiry)
	if err != nil {
		return "", errors.NewOperationError("download url "+container+"/"+name, FileURLNotCreated, err)
	}
	return link, nil
}

// blobNameOf strips an absolute blob URI down to the blob name within container.
func blobNameOf(blob, container string) string {
	u, err := url.Parse(blob)
	if err != nil || !u.IsAbs() {
		return blob
	}
	name := strings.TrimPrefix(u.Path, "/")
	if i := strings.Index(name, container+"/"); i >= 0 {
		name = name[i+len(container)+1:]
	}
	return name
}

func validateBlobTarget(name, container string) error {
	if isBlank(name) {
		return errors.NewArgumentError("name", FileNameRequired)
	}
	if isBlank(container) {
		return errors.NewArgumentError("container", ContainerRequired)
	}
	return nil
}
