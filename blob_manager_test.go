/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package cloudstore_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/cloudstore"
	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/datastore/mock"
	storeerrors "github.com/suparena/cloudstore/errors"
)

func newBlobManager(t *testing.T, store *mock.BlobStore) *cloudstore.BlobManager {
	t.Helper()
	f := cloudstore.NewFactory(cloudstore.WithBlobProvider(func(cloudstore.BlobSettings) (datastore.BlobStore, error) {
		return store, nil
	}))
	m, err := f.BlobManagerFromConnectionString(testConnectionString)
	require.NoError(t, err)
	return m
}

func TestBlobRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := mock.NewBlobStore()
	m := newBlobManager(t, store)

	uri, err := m.StoreString(ctx, "report.txt", "docs", "hello")
	require.NoError(t, err)
	assert.Equal(t, mock.BlobURI("docs", "report.txt"), uri)

	text, err := m.GetString(ctx, "report.txt", "docs")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = m.StoreBytes(ctx, "report.txt", "docs", []byte("again"))
	require.Error(t, err)
	assert.True(t, storeerrors.IsOperationFailed(err))
	assert.True(t, storeerrors.IsAlreadyExists(err))
	assert.Contains(t, err.Error(), cloudstore.FileNotStored)

	_, err = m.StoreBytes(ctx, "report.txt", "docs", []byte("again"), cloudstore.WithOverwrite(true))
	require.NoError(t, err)
	data, err := m.GetBytes(ctx, "report.txt", "docs")
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), data)

	deleted, err := m.DeleteFile(ctx, "report.txt", "docs")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, store.Exists("docs", "report.txt"))

	deleted, err = m.DeleteFile(ctx, "report.txt", "docs")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = m.GetBytes(ctx, "report.txt", "docs")
	assert.True(t, storeerrors.IsNotFound(err))
	assert.Contains(t, err.Error(), cloudstore.FileNotRetrieved)
}

func TestBlobContainerCreatedOnEveryCall(t *testing.T) {
	ctx := context.Background()
	store := mock.NewBlobStore()
	m := newBlobManager(t, store)

	_, err := m.StoreString(ctx, "a.txt", "fresh", "a")
	require.NoError(t, err)
	_, err = m.GetString(ctx, "a.txt", "fresh")
	require.NoError(t, err)
	assert.Equal(t, 2, store.EnsureCount())
}

func TestBlobErrorsUnwrapToCause(t *testing.T) {
	ctx := context.Background()
	cause := fmt.Errorf("authorization failure")
	m := newBlobManager(t, mock.NewBlobStore().WithUploadError(cause).WithDeleteError(cause))

	_, err := m.StoreString(ctx, "a.txt", "docs", "a")
	assert.ErrorIs(t, err, cause)

	var opErr *storeerrors.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, cloudstore.FileNotStored, opErr.Message)
	assert.Equal(t, "store docs/a.txt", opErr.Op)

	_, err = m.DeleteFile(ctx, "a.txt", "docs")
	assert.ErrorIs(t, err, cause)
	assert.True(t, storeerrors.IsOperationFailed(err))
}

func TestBlobArguments(t *testing.T) {
	ctx := context.Background()
	store := mock.NewBlobStore()
	m := newBlobManager(t, store)

	_, err := m.StoreString(ctx, "", "docs", "a")
	assert.True(t, storeerrors.IsValidationError(err))
	_, err = m.GetBytes(ctx, "a.txt", " ")
	assert.True(t, storeerrors.IsValidationError(err))
	_, err = m.DeleteFile(ctx, "", "")
	assert.True(t, storeerrors.IsValidationError(err))
	assert.Zero(t, store.EnsureCount())
}

func TestBlobCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBlobManager(t, mock.NewBlobStore()).StoreString(ctx, "a.txt", "docs", "a")
	assert.ErrorIs(t, err, context.Canceled)
}

type unsignedBlobStore struct {
	*mock.BlobStore
	err error
}

func (s unsignedBlobStore) DownloadURL(context.Context, string, string, time.Duration) (string, error) {
	return "", s.err
}

func TestBlobDownloadURL(t *testing.T) {
	ctx := context.Background()
	store := mock.NewBlobStore()
	m := newBlobManager(t, store)

	uri, err := m.StoreString(ctx, "report.txt", "docs", "hello")
	require.NoError(t, err)

	byName, err := m.GetDownloadURL(ctx, "report.txt", "docs")
	require.NoError(t, err)
	byURI, err := m.GetDownloadURL(ctx, uri, "docs")
	require.NoError(t, err)

	for _, link := range []string{byName, byURI} {
		u, err := url.Parse(link)
		require.NoError(t, err)
		assert.Equal(t, "docs", u.Host)
		assert.Equal(t, "/report.txt", u.Path)
		expiry, err := time.Parse(time.RFC3339, u.Query().Get("se"))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(cloudstore.DownloadURLExpiry), expiry, 5*time.Second)
	}

	_, err = m.GetDownloadURL(ctx, "", "docs")
	assert.True(t, storeerrors.IsValidationError(err))

	cause := fmt.Errorf("no account key")
	failing, err := cloudstore.NewFactory().BlobManagerWithStore(unsignedBlobStore{BlobStore: store, err: cause})
	require.NoError(t, err)
	_, err = failing.GetDownloadURL(ctx, "report.txt", "docs")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), cloudstore.FileURLNotCreated)
}
