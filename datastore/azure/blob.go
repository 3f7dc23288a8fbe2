/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package azure

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/suparena/cloudstore/connstr"
	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
)

// BlobAPI is the subset of *azblob.Client used by BlobStore. Used for testing purposes.
type BlobAPI interface {
	URL() string
	CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error)
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

var _ BlobAPI = (*azblob.Client)(nil)

// BlobStore implements datastore.BlobStore on Azure Blob storage.
type BlobStore struct {
	client     BlobAPI
	credential *azblob.SharedKeyCredential
}

var _ datastore.BlobStore = (*BlobStore)(nil)

// NewBlobStore connects to the blob endpoint serviceURL with a shared key.
func NewBlobStore(serviceURL, accountName, accountKey string) (*BlobStore, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid shared key credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return NewBlobStoreWithClient(client).WithSharedKeyCredential(cred), nil
}

// NewBlobStoreFromConnectionString connects using a storage connection string.
func NewBlobStoreFromConnectionString(connectionString string) (*BlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	store := NewBlobStoreWithClient(client)

	// Download URLs are signed with the account key; SAS connection strings have none.
	if cs, err := connstr.Parse(connectionString); err == nil && cs.AccountKey() != "" {
		cred, err := azblob.NewSharedKeyCredential(cs.AccountName(), cs.AccountKey())
		if err != nil {
			return nil, fmt.Errorf("invalid shared key credential: %w", err)
		}
		store.WithSharedKeyCredential(cred)
	}
	return store, nil
}

// NewBlobStoreWithClient wraps an existing blob client.
func NewBlobStoreWithClient(client BlobAPI) *BlobStore {
	return &BlobStore{client: client}
}

// WithSharedKeyCredential sets the credential DownloadURL signs with.
func (s *BlobStore) WithSharedKeyCredential(cred *azblob.SharedKeyCredential) *BlobStore {
	s.credential = cred
	return s
}

// EnsureContainer creates the container, ignoring ContainerAlreadyExists.
func (s *BlobStore) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("CreateContainer failed: %w", err)
	}
	return nil
}

// Upload streams r into container/name. Without overwrite the upload is conditional on
// the blob not existing.
func (s *BlobStore) Upload(ctx context.Context, container, name string, r io.Reader, overwrite bool) (string, error) {
	opts := &azblob.UploadStreamOptions{}
	if !overwrite {
		opts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		}
	}

	if _, err := s.client.UploadStream(ctx, container, name, r, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return "", errors.NewAlreadyExistsError("blob", container+"/"+name, err)
		}
		return "", fmt.Errorf("UploadStream failed: %w", err)
	}
	return s.blobURL(container, name), nil
}

// Download reads the whole content of container/name.
func (s *BlobStore) Download(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, errors.NewNotFoundError("blob", container+"/"+name, err)
		}
		return nil, fmt.Errorf("DownloadStream failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %w", err)
	}
	return data, nil
}

// Delete removes container/name including its snapshots.
func (s *BlobStore) Delete(ctx context.Context, container, name string) (bool, error) {
	_, err := s.client.DeleteBlob(ctx, container, name, &azblob.DeleteBlobOptions{
		DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude),
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("DeleteBlob failed: %w", err)
	}
	return true, nil
}

// DownloadURL signs a read-only SAS for container/name that expires after expiry. The
// blob is served as an attachment under its base name.
func (s *BlobStore) DownloadURL(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	if s.credential == nil {
		return "", errors.NewConfigurationError("accountKey", "Download URLs need a shared key credential!", nil)
	}
	values := sas.BlobSignatureValues{
		Protocol:           sas.ProtocolHTTPSandHTTP,
		ExpiryTime:         time.Now().UTC().Add(expiry),
		Permissions:        (&sas.BlobPermissions{Read: true}).String(),
		ContainerName:      container,
		BlobName:           name,
		ContentDisposition: fmt.Sprintf("attachment;filename=%q", path.Base(name)),
	}
	params, err := values.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("failed to sign download URL: %w", err)
	}
	return s.blobURL(container, name) + "?" + params.Encode(), nil
}

func (s *BlobStore) blobURL(container, name string) string {
	return strings.TrimSuffix(s.client.URL(), "/") + "/" + url.PathEscape(container) + "/" + escapeBlobName(name)
}

// escapeBlobName escapes every path segment of a blob name, keeping the separators.
func escapeBlobName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
