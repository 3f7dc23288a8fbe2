/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package minio implements datastore.BlobStore on S3 compatible object storage. Blob
// containers map to buckets.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
)

// ObjectAPI is the subset of *minio.Client used by BlobStore. Used for testing purposes.
type ObjectAPI interface {
	EndpointURL() *url.URL
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

var _ ObjectAPI = (*minio.Client)(nil)

// Config holds the configuration for MinIO connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// BlobStore implements datastore.BlobStore using MinIO as the backend.
type BlobStore struct {
	client ObjectAPI
}

var _ datastore.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a new MinIO backed blob store.
func NewBlobStore(cfg Config) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return NewBlobStoreWithClient(client), nil
}

// NewBlobStoreWithClient wraps an existing client.
func NewBlobStoreWithClient(client ObjectAPI) *BlobStore {
	return &BlobStore{client: client}
}

// EnsureContainer creates the bucket if it doesn't exist.
func (s *BlobStore) EnsureContainer(ctx context.Context, container string) error {
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload stores the object. Without overwrite an existing object fails the upload; the
// check and the write are not atomic.
func (s *BlobStore) Upload(ctx context.Context, container, name string, r io.Reader, overwrite bool) (string, error) {
	if !overwrite {
		exists, err := s.exists(ctx, container, name)
		if err != nil {
			return "", err
		}
		if exists {
			return "", errors.NewAlreadyExistsError("blob", container+"/"+name, nil)
		}
	}

	_, err := s.client.PutObject(ctx, container, name, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return s.objectURL(container, name), nil
}

// Download reads the whole object.
func (s *BlobStore) Download(ctx context.Context, container, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readError(container, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readError(container, name, err)
	}
	return data, nil
}

// Delete removes the object and reports whether it existed.
func (s *BlobStore) Delete(ctx context.Context, container, name string) (bool, error) {
	exists, err := s.exists(ctx, container, name)
	if err != nil || !exists {
		return false, err
	}
	if err := s.client.RemoveObject(ctx, container, name, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to remove object: %w", err)
	}
	return true, nil
}

func (s *BlobStore) exists(ctx context.Context, container, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, container, name, minio.StatObjectOptions{})
	if err != nil {
		if isMissing(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (s *BlobStore) readError(container, name string, err error) error {
	if isMissing(err) {
		return errors.NewNotFoundError("blob", container+"/"+name, err)
	}
	return fmt.Errorf("failed to get object: %w", err)
}

func (s *BlobStore) objectURL(container, name string) string {
	u := *s.client.EndpointURL()
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + container + "/" + name
	return u.String()
}

func isMissing(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// DownloadURL presigns a GET of container/name that expires after expiry. The object is
// served as an attachment under its base name.
func (s *BlobStore) DownloadURL(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment;filename=%q", path.Base(name)))
	u, err := s.client.PresignedGetObject(ctx, container, name, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign download URL: %w", err)
	}
	return u.String(), nil
}
