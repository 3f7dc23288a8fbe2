/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides in-memory implementations of the datastore interfaces for testing
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/storagemodels"
)

type entityKey struct {
	pk, rk string
}

func (k entityKey) less(o entityKey) bool {
	if k.pk != o.pk {
		return k.pk < o.pk
	}
	return k.rk < o.rk
}

// TableStore is an in-memory datastore.TableStore[T]. Entities are kept as records and
// returned in partition key, row key order like Azure Table storage.
type TableStore[T storagemodels.Entity] struct {
	mu          sync.RWMutex
	name        string
	created     bool
	createCount int
	queryCalls  int
	data        map[entityKey]storagemodels.Record

	createError  error
	getError     error
	queryError   error
	failAfter    int
	insertError  error
	updateError  error
	deleteError  error
	pageObserver func(call int)
}

var _ datastore.TableStore[storagemodels.EntityBase] = (*TableStore[storagemodels.EntityBase])(nil)

// NewTableStore creates an empty in-memory table. The table itself does not exist until
// CreateIfNotExists is called.
func NewTableStore[T storagemodels.Entity](name string) *TableStore[T] {
	return &TableStore[T]{
		name: name,
		data: make(map[entityKey]storagemodels.Record),
	}
}

// WithCreateError makes CreateIfNotExists return err
func (m *TableStore[T]) WithCreateError(err error) *TableStore[T] {
	m.createError = err
	return m
}

// WithGetError makes Get return err
func (m *TableStore[T]) WithGetError(err error) *TableStore[T] {
	m.getError = err
	return m
}

// WithQueryError makes every QueryPage call after the first pages calls return err.
// Use pages = 0 to fail immediately.
func (m *TableStore[T]) WithQueryError(pages int, err error) *TableStore[T] {
	m.failAfter = pages
	m.queryError = err
	return m
}

// WithInsertError makes Insert, Upsert and InsertBatch return err
func (m *TableStore[T]) WithInsertError(err error) *TableStore[T] {
	m.insertError = err
	return m
}

// WithUpdateError makes Update and UpdateBatch return err
func (m *TableStore[T]) WithUpdateError(err error) *TableStore[T] {
	m.updateError = err
	return m
}

// WithDeleteError makes Delete return err
func (m *TableStore[T]) WithDeleteError(err error) *TableStore[T] {
	m.deleteError = err
	return m
}

// WithPageObserver registers f to be called with the 1-based call number of every
// QueryPage call before it is served.
func (m *TableStore[T]) WithPageObserver(f func(call int)) *TableStore[T] {
	m.pageObserver = f
	return m
}

// Name returns the table name
func (m *TableStore[T]) Name() string { return m.name }

// CreateIfNotExists marks the table as created
func (m *TableStore[T]) CreateIfNotExists(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCount++
	if m.createError != nil {
		return m.createError
	}
	m.created = true
	return nil
}

// Get retrieves an entity by partition key and row key
func (m *TableStore[T]) Get(ctx context.Context, pk, rk string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if m.getError != nil {
		return zero, m.getError
	}

	m.mu.RLock()
	rec, exists := m.data[entityKey{pk, rk}]
	m.mu.RUnlock()
	if !exists {
		return zero, errors.NewNotFoundError(m.name, storagemodels.EntityKey(pk, rk), nil)
	}
	return storagemodels.FromRecord[T](rec)
}

// QueryPage serves one page of q in key order starting at token
func (m *TableStore[T]) QueryPage(ctx context.Context, q storagemodels.Query, token storagemodels.ContinuationToken) ([]T, storagemodels.ContinuationToken, error) {
	var next storagemodels.ContinuationToken
	if err := ctx.Err(); err != nil {
		return nil, next, err
	}

	m.mu.Lock()
	m.queryCalls++
	call := m.queryCalls
	m.mu.Unlock()

	if m.pageObserver != nil {
		m.pageObserver(call)
	}
	if m.queryError != nil && call > m.failAfter {
		return nil, next, m.queryError
	}

	pred, err := q.Resolve()
	if err != nil {
		return nil, next, fmt.Errorf("invalid filter %q: %w", q.RawFilter(), err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.sortedKeys()
	start := entityKey{token.NextPartitionKey, token.NextRowKey}
	limit := int(q.PageSize())
	items := make([]T, 0, limit)
	for _, k := range keys {
		if !token.IsZero() && k.less(start) {
			continue
		}
		rec := m.data[k]
		if !pred.Match(rec) {
			continue
		}
		if len(items) == limit {
			next = storagemodels.ContinuationToken{NextPartitionKey: k.pk, NextRowKey: k.rk}
			break
		}
		item, err := storagemodels.FromRecord[T](rec.Project(q.Select()))
		if err != nil {
			return nil, storagemodels.ContinuationToken{}, err
		}
		items = append(items, item)
	}
	return items, next, nil
}

// Insert adds an entity, failing when the key is taken
func (m *TableStore[T]) Insert(ctx context.Context, entity T) (storagemodels.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return storagemodels.Outcome{}, err
	}
	if m.insertError != nil {
		return storagemodels.Outcome{}, m.insertError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyOf(entity)
	if _, exists := m.data[key]; exists {
		return storagemodels.Outcome{}, errors.NewAlreadyExistsError(m.name, storagemodels.EntityKey(key.pk, key.rk), nil)
	}
	return m.store(key, entity, nil)
}

// Upsert inserts or replaces an entity
func (m *TableStore[T]) Upsert(ctx context.Context, entity T) (storagemodels.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return storagemodels.Outcome{}, err
	}
	if m.insertError != nil {
		return storagemodels.Outcome{}, m.insertError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store(keyOf(entity), entity, nil)
}

// Update merges or replaces a stored entity whose ETag matches etag
func (m *TableStore[T]) Update(ctx context.Context, entity T, etag string, mode datastore.UpdateMode) (storagemodels.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return storagemodels.Outcome{}, err
	}
	if m.updateError != nil {
		return storagemodels.Outcome{}, m.updateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyOf(entity)
	current, exists := m.data[key]
	if !exists {
		return storagemodels.Outcome{}, errors.NewNotFoundError(m.name, storagemodels.EntityKey(key.pk, key.rk), nil)
	}
	if etag != datastore.WildcardETag && current[storagemodels.ETagProperty] != etag {
		return storagemodels.Outcome{}, errors.NewConditionFailedError(mode.String(), fmt.Sprintf("If-Match %q", etag), nil)
	}

	var base storagemodels.Record
	if mode == datastore.UpdateModeMerge {
		base = current
	}
	return m.store(key, entity, base)
}

// Delete removes an entity. Missing entities are ignored.
func (m *TableStore[T]) Delete(ctx context.Context, pk, rk string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.deleteError != nil {
		return m.deleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, entityKey{pk, rk})
	return nil
}

// InsertBatch adds all entities or none of them
func (m *TableStore[T]) InsertBatch(ctx context.Context, entities []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.insertError != nil {
		return m.insertError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[entityKey]bool, len(entities))
	for _, e := range entities {
		key := keyOf(e)
		if key.pk != entities[0].GetPartitionKey() {
			return fmt.Errorf("batch entities must share partition key %q", entities[0].GetPartitionKey())
		}
		if _, exists := m.data[key]; exists || seen[key] {
			return errors.NewAlreadyExistsError(m.name, storagemodels.EntityKey(key.pk, key.rk), nil)
		}
		seen[key] = true
	}
	for _, e := range entities {
		if _, err := m.store(keyOf(e), e, nil); err != nil {
			return err
		}
	}
	return nil
}

// UpdateBatch merges all entities into the stored ones or changes nothing
func (m *TableStore[T]) UpdateBatch(ctx context.Context, entities []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.updateError != nil {
		return m.updateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[entityKey]bool, len(entities))
	for _, e := range entities {
		key := keyOf(e)
		if key.pk != entities[0].GetPartitionKey() {
			return fmt.Errorf("batch entities must share partition key %q", entities[0].GetPartitionKey())
		}
		if seen[key] {
			return fmt.Errorf("batch holds %s more than once", storagemodels.EntityKey(key.pk, key.rk))
		}
		seen[key] = true

		current, exists := m.data[key]
		if !exists {
			return errors.NewNotFoundError(m.name, storagemodels.EntityKey(key.pk, key.rk), nil)
		}
		etag := e.GetETag()
		if etag != "" && etag != datastore.WildcardETag && current[storagemodels.ETagProperty] != etag {
			return errors.NewConditionFailedError("merge", fmt.Sprintf("If-Match %q", etag), nil)
		}
	}
	for _, e := range entities {
		key := keyOf(e)
		if _, err := m.store(key, e, m.data[key]); err != nil {
			return err
		}
	}
	return nil
}

// Helper methods for testing

// CreateCount returns how often CreateIfNotExists was called
func (m *TableStore[T]) CreateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.createCount
}

// Created reports whether the table exists
func (m *TableStore[T]) Created() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.created
}

// QueryCalls returns the number of QueryPage calls served
func (m *TableStore[T]) QueryCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryCalls
}

// Count returns the number of stored entities
func (m *TableStore[T]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Records returns copies of the stored records in key order
func (m *TableStore[T]) Records() []storagemodels.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]storagemodels.Record, 0, len(m.data))
	for _, k := range m.sortedKeys() {
		out = append(out, m.data[k].Clone())
	}
	return out
}

// Clear removes all data
func (m *TableStore[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[entityKey]storagemodels.Record)
}

func (m *TableStore[T]) sortedKeys() []entityKey {
	keys := make([]entityKey, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// store encodes entity over base, assigning a fresh ETag and timestamp. Callers hold the
// write lock.
func (m *TableStore[T]) store(key entityKey, entity T, base storagemodels.Record) (storagemodels.Outcome, error) {
	rec, err := storagemodels.ToRecord(entity)
	if err != nil {
		return storagemodels.Outcome{}, err
	}

	merged := make(storagemodels.Record, len(base)+len(rec))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range rec {
		merged[k] = v
	}

	etag := newETag()
	merged[storagemodels.ETagProperty] = etag
	merged[storagemodels.TimestampProperty] = strfmt.DateTime(time.Now().UTC()).String()
	m.data[key] = merged
	return storagemodels.Outcome{ETag: etag}, nil
}

func keyOf(e storagemodels.Entity) entityKey {
	return entityKey{e.GetPartitionKey(), e.GetRowKey()}
}

func newETag() string {
	return `W/"` + uuid.NewString() + `"`
}
