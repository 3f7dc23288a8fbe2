/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package cloudstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/metrics"
	"github.com/suparena/cloudstore/query"
	"github.com/suparena/cloudstore/storagemodels"
)

const tableManagerLabel = "table"

// streamFinalSendTimeout bounds how long Stream waits to deliver its final error result
// once the context is done.
const streamFinalSendTimeout = time.Second

// TableManager reads and writes entities of type T in one table. It is immutable after
// construction and safe for concurrent use.
type TableManager[T storagemodels.Entity] struct {
	store   datastore.TableStore[T]
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func newTableManager[T storagemodels.Entity](store datastore.TableStore[T], logger zerolog.Logger, m *metrics.Collector) *TableManager[T] {
	return &TableManager[T]{
		store:   store,
		logger:  logger.With().Str("table", store.Name()).Logger(),
		metrics: m,
	}
}

// Name returns the table name.
func (m *TableManager[T]) Name() string { return m.store.Name() }

func (m *TableManager[T]) observe(op string, start time.Time, err error) {
	m.metrics.Observe(tableManagerLabel, op, start, err)
	if err != nil {
		m.logger.Debug().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("table operation failed")
		return
	}
	m.logger.Debug().Str("op", op).Dur("elapsed", time.Since(start)).Msg("table operation")
}

// Query returns every entity matching q. Pages are fetched one after another until the
// store reports no continuation; a failed page fails the whole call.
func (m *TableManager[T]) Query(ctx context.Context, q storagemodels.Query) (result []T, err error) {
	start := time.Now()
	defer func() { m.observe("query", start, err) }()

	all := make([]T, 0)
	var token storagemodels.ContinuationToken
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, next, err := m.store.QueryPage(ctx, q, token)
		if err != nil {
			return nil, fmt.Errorf("query page %d of %s: %w", page, m.store.Name(), err)
		}
		all = append(all, items...)
		if next.IsZero() {
			return all, nil
		}
		token = next
	}
}

// QueryPage fetches the single page of q that continuationToken points at. An empty
// token starts at the first page. A token must be used with the query it came from.
func (m *TableManager[T]) QueryPage(ctx context.Context, q storagemodels.Query, continuationToken string) (page storagemodels.Page[T], err error) {
	start := time.Now()
	defer func() { m.observe("query_page", start, err) }()

	token, err := storagemodels.DecodeContinuationToken(continuationToken)
	if err != nil {
		return page, err
	}
	if err := ctx.Err(); err != nil {
		return page, err
	}

	items, next, err := m.store.QueryPage(ctx, q, token)
	if err != nil {
		return page, fmt.Errorf("query page of %s: %w", m.store.Name(), err)
	}
	return storagemodels.Page[T]{Items: items, ContinuationToken: next.Encode()}, nil
}

// Stream walks the pages of q on a separate goroutine and delivers every entity on the
// returned channel. The channel is closed when the walk ends. A failed page is delivered
// as a final result carrying the error; pages are never retried. When ctx is done the
// final result carries ctx.Err(), provided the consumer keeps receiving.
func (m *TableManager[T]) Stream(ctx context.Context, q storagemodels.Query, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult[T] {
	o := storagemodels.DefaultStreamOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BufferSize < 0 {
		o.BufferSize = 0
	}

	out := make(chan storagemodels.StreamResult[T], o.BufferSize)
	go func() {
		defer close(out)

		start := time.Now()
		var (
			index int64
			token storagemodels.ContinuationToken
			err   error
		)
		defer func() { m.observe("stream", start, err) }()

		send := func(r storagemodels.StreamResult[T]) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(page int) {
			r := storagemodels.StreamResult[T]{Error: err, Meta: storagemodels.StreamMeta{Index: index, PageNumber: page, Timestamp: time.Now()}}
			if send(r) {
				return
			}
			timer := time.NewTimer(streamFinalSendTimeout)
			defer timer.Stop()
			select {
			case out <- r:
			case <-timer.C:
			}
		}

		for page := 1; ; page++ {
			if err = ctx.Err(); err != nil {
				fail(page)
				return
			}

			var items []T
			var next storagemodels.ContinuationToken
			items, next, err = m.store.QueryPage(ctx, q, token)
			if err != nil {
				err = fmt.Errorf("query page %d of %s: %w", page, m.store.Name(), err)
				fail(page)
				return
			}

			for _, item := range items {
				if o.MaxItems > 0 && index >= o.MaxItems {
					return
				}
				r := storagemodels.StreamResult[T]{
					Item: item,
					Meta: storagemodels.StreamMeta{Index: index, PageNumber: page, Timestamp: time.Now()},
				}
				if !send(r) {
					err = ctx.Err()
					fail(page)
					return
				}
				index++
			}

			if o.ProgressHandler != nil {
				elapsed := time.Since(start).Seconds()
				rate := 0.0
				if elapsed > 0 {
					rate = float64(index) / elapsed
				}
				o.ProgressHandler(storagemodels.StreamProgress{
					ItemsProcessed:    index,
					PagesProcessed:    page,
					ContinuationToken: next.Encode(),
					StartTime:         start,
					CurrentRate:       rate,
				})
			}

			if next.IsZero() || (o.MaxItems > 0 && index >= o.MaxItems) {
				return
			}
			token = next
		}
	}()
	return out
}

// GetSingleWhere returns the first entity matching pred. Only one page of size one is
// fetched; found is false when that page is empty.
func (m *TableManager[T]) GetSingleWhere(ctx context.Context, pred query.Predicate) (entity T, found bool, err error) {
	start := time.Now()
	defer func() { m.observe("get_single_where", start, err) }()

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	items, _, err := m.store.QueryPage(ctx, storagemodels.Where(pred, storagemodels.WithPageSize(1)), storagemodels.ContinuationToken{})
	if err != nil {
		return zero, false, fmt.Errorf("query %s: %w", m.store.Name(), err)
	}
	if len(items) == 0 {
		return zero, false, nil
	}
	return items[0], true, nil
}

// GetSingle looks up the entity stored under partitionKey and rowKey. A missing entity
// is reported with found false and a nil error.
func (m *TableManager[T]) GetSingle(ctx context.Context, partitionKey, rowKey string) (entity T, found bool, err error) {
	start := time.Now()
	defer func() { m.observe("get_single", start, err) }()

	var zero T
	if strings.TrimSpace(partitionKey) == "" {
		return zero, false, errors.NewArgumentError("partitionKey", storagemodels.PartitionKeyRequired)
	}
	if strings.TrimSpace(rowKey) == "" {
		return zero, false, errors.NewArgumentError("rowKey", storagemodels.RowKeyRequired)
	}

	entity, err = m.store.Get(ctx, partitionKey, rowKey)
	if err != nil {
		if errors.IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return entity, true, nil
}

// Insert adds entity. An entity with the same keys fails with an AlreadyExistsError.
func (m *TableManager[T]) Insert(ctx context.Context, entity T) (out storagemodels.Outcome, err error) {
	start := time.Now()
	defer func() { m.observe("insert", start, err) }()

	if err := storagemodels.ValidateKeys(entity); err != nil {
		return out, err
	}
	return m.store.Insert(ctx, entity)
}

// InsertOrReplace adds entity or replaces the stored entity with the same keys.
func (m *TableManager[T]) InsertOrReplace(ctx context.Context, entity T) (out storagemodels.Outcome, err error) {
	start := time.Now()
	defer func() { m.observe("insert_or_replace", start, err) }()

	if err := storagemodels.ValidateKeys(entity); err != nil {
		return out, err
	}
	return m.store.Upsert(ctx, entity)
}

// Update merges entity into the stored one. The entity's ETag must match the stored
// version; an empty ETag matches any version.
func (m *TableManager[T]) Update(ctx context.Context, entity T) (out storagemodels.Outcome, err error) {
	start := time.Now()
	defer func() { m.observe("update", start, err) }()

	return m.update(ctx, entity, datastore.UpdateModeMerge)
}

// Replace replaces the stored entity as a whole under the same ETag rule as Update.
func (m *TableManager[T]) Replace(ctx context.Context, entity T) (out storagemodels.Outcome, err error) {
	start := time.Now()
	defer func() { m.observe("replace", start, err) }()

	return m.update(ctx, entity, datastore.UpdateModeReplace)
}

func (m *TableManager[T]) update(ctx context.Context, entity T, mode datastore.UpdateMode) (storagemodels.Outcome, error) {
	if err := storagemodels.ValidateKeys(entity); err != nil {
		return storagemodels.Outcome{}, err
	}
	etag := entity.GetETag()
	if strings.TrimSpace(etag) == "" {
		etag = datastore.WildcardETag
	}
	return m.store.Update(ctx, entity, etag, mode)
}

// Delete removes the entity stored under partitionKey and rowKey regardless of its
// version. Deleting a missing entity succeeds.
func (m *TableManager[T]) Delete(ctx context.Context, partitionKey, rowKey string) (err error) {
	start := time.Now()
	defer func() { m.observe("delete", start, err) }()

	if strings.TrimSpace(partitionKey) == "" {
		return errors.NewArgumentError("partitionKey", storagemodels.PartitionKeyRequired)
	}
	if strings.TrimSpace(rowKey) == "" {
		return errors.NewArgumentError("rowKey", storagemodels.RowKeyRequired)
	}
	return m.store.Delete(ctx, partitionKey, rowKey)
}

// InsertBatch adds all entities in one atomic transaction. Every entity must have valid
// keys and at most datastore.MaxBatchSize entities are accepted.
func (m *TableManager[T]) InsertBatch(ctx context.Context, entities []T) (err error) {
	start := time.Now()
	defer func() { m.observe("insert_batch", start, err) }()

	if len(entities) == 0 {
		return nil
	}
	if err := validateBatch(entities); err != nil {
		return err
	}
	return m.store.InsertBatch(ctx, entities)
}

// UpdateBatch merges all entities into the stored ones in one atomic transaction. Every
// entity's ETag must match its stored version; an empty ETag matches any version. A
// missing entity or a stale ETag fails the whole batch.
func (m *TableManager[T]) UpdateBatch(ctx context.Context, entities []T) (err error) {
	start := time.Now()
	defer func() { m.observe("update_batch", start, err) }()

	if len(entities) == 0 {
		return nil
	}
	if err := validateBatch(entities); err != nil {
		return err
	}
	return m.store.UpdateBatch(ctx, entities)
}

func validateBatch[T storagemodels.Entity](entities []T) error {
	if len(entities) > datastore.MaxBatchSize {
		return errors.NewArgumentError("entities", fmt.Sprintf("A batch can hold at most %d entities!", datastore.MaxBatchSize))
	}
	for _, e := range entities {
		if err := storagemodels.ValidateKeys(e); err != nil {
			return err
		}
	}
	return nil
}
