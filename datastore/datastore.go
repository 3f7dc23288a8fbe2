/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"io"
	"time"

	"github.com/suparena/cloudstore/storagemodels"
)

// UpdateMode selects how an update applies the entity properties.
type UpdateMode int

const (
	// UpdateModeMerge keeps stored properties the entity does not carry.
	UpdateModeMerge UpdateMode = iota
	// UpdateModeReplace replaces the stored entity as a whole.
	UpdateModeReplace
)

func (m UpdateMode) String() string {
	if m == UpdateModeReplace {
		return "replace"
	}
	return "merge"
}

// MaxBatchSize is the largest number of entities a single batch call accepts.
const MaxBatchSize = 100

// WildcardETag matches any stored version of an entity.
const WildcardETag = "*"

// TableStore is a table of entities of type T addressed by partition key and row key.
type TableStore[T storagemodels.Entity] interface {
	// Name returns the table name.
	Name() string

	// CreateIfNotExists creates the table unless it already exists.
	CreateIfNotExists(ctx context.Context) error

	// Get returns the entity stored under pk/rk, or a NotFoundError.
	Get(ctx context.Context, pk, rk string) (T, error)

	// QueryPage fetches one page of q starting at token. A zero next token means there are
	// no more pages.
	QueryPage(ctx context.Context, q storagemodels.Query, token storagemodels.ContinuationToken) ([]T, storagemodels.ContinuationToken, error)

	// Insert adds entity, failing with an AlreadyExistsError when the key is taken.
	Insert(ctx context.Context, entity T) (storagemodels.Outcome, error)

	// Upsert inserts entity or replaces the stored one.
	Upsert(ctx context.Context, entity T) (storagemodels.Outcome, error)

	// Update applies entity to the stored one when its ETag matches, failing with a
	// ConditionFailedError otherwise. WildcardETag matches any version.
	Update(ctx context.Context, entity T, etag string, mode UpdateMode) (storagemodels.Outcome, error)

	// Delete removes the entity stored under pk/rk. Deleting a missing entity succeeds.
	Delete(ctx context.Context, pk, rk string) error

	// InsertBatch adds all entities in one atomic transaction.
	InsertBatch(ctx context.Context, entities []T) error

	// UpdateBatch merges all entities into the stored ones in one atomic transaction. Each
	// entity's ETag must match the stored version; an empty ETag or WildcardETag matches
	// any version.
	UpdateBatch(ctx context.Context, entities []T) error
}

// BlobStore stores named blobs in containers.
type BlobStore interface {
	// EnsureContainer creates the container unless it already exists.
	EnsureContainer(ctx context.Context, container string) error

	// Upload writes r to container/name and returns the blob URI. Without overwrite an
	// existing blob fails the upload with an AlreadyExistsError.
	Upload(ctx context.Context, container, name string, r io.Reader, overwrite bool) (string, error)

	// Download returns the content of container/name, or a NotFoundError.
	Download(ctx context.Context, container, name string) ([]byte, error)

	// Delete removes container/name with its snapshots and reports whether it existed.
	Delete(ctx context.Context, container, name string) (bool, error)

	// DownloadURL returns a signed read-only URL for container/name valid for expiry.
	DownloadURL(ctx context.Context, container, name string, expiry time.Duration) (string, error)
}

// QueueStore opens message queues.
type QueueStore interface {
	// Open creates the named queue unless it already exists and returns its handle.
	Open(ctx context.Context, name string) (Queue, error)
}

// Queue is a handle on an existing message queue.
type Queue interface {
	Name() string

	// Enqueue adds a message with the given text.
	Enqueue(ctx context.Context, text string, opts ...EnqueueOption) (Message, error)

	// Dequeue receives up to max messages and hides them for visibility.
	Dequeue(ctx context.Context, max int32, visibility time.Duration) ([]Message, error)

	// DeleteMessage removes a received message.
	DeleteMessage(ctx context.Context, id, popReceipt string) error
}

// Message is a queue message.
type Message struct {
	ID           string
	PopReceipt   string
	Text         string
	DequeueCount int64
	InsertedAt   time.Time
}

// EnqueueOptions configures an Enqueue call.
type EnqueueOptions struct {
	VisibilityDelay time.Duration // Delay before the message becomes visible
	TimeToLive      time.Duration // Zero keeps the service default
}

// EnqueueOption is a functional option for Enqueue.
type EnqueueOption func(*EnqueueOptions)

// WithVisibilityDelay hides a new message for d.
func WithVisibilityDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.VisibilityDelay = d }
}

// WithTimeToLive expires a new message after d.
func WithTimeToLive(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.TimeToLive = d }
}

// ApplyEnqueueOptions folds opts into an EnqueueOptions value.
func ApplyEnqueueOptions(opts ...EnqueueOption) EnqueueOptions {
	var o EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
