/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/storagemodels"
)

// TableAPI is the subset of *aztables.Client used by TableStore. Used for testing purposes.
type TableAPI interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, transactionActions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

var _ TableAPI = (*aztables.Client)(nil)

// TableStore implements datastore.TableStore[T] on Azure Table storage.
type TableStore[T storagemodels.Entity] struct {
	client    TableAPI
	tableName string
}

// NewTableStore connects to tableName using a storage connection string. No request is
// made until the first operation.
func NewTableStore[T storagemodels.Entity](connectionString, tableName string) (*TableStore[T], error) {
	service, err := aztables.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create table service client: %w", err)
	}
	return NewTableStoreWithClient[T](service.NewClient(tableName), tableName), nil
}

// NewTableStoreWithClient wraps an existing table client.
func NewTableStoreWithClient[T storagemodels.Entity](client TableAPI, tableName string) *TableStore[T] {
	return &TableStore[T]{client: client, tableName: tableName}
}

// Name returns the table name.
func (s *TableStore[T]) Name() string { return s.tableName }

// CreateIfNotExists creates the table, ignoring TableAlreadyExists.
func (s *TableStore[T]) CreateIfNotExists(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, nil)
	if err != nil && !isConflict(err, codeTableAlreadyExists) {
		return fmt.Errorf("CreateTable failed: %w", err)
	}
	return nil
}

// Get performs a point lookup.
func (s *TableStore[T]) Get(ctx context.Context, pk, rk string) (T, error) {
	var zero T
	resp, err := s.client.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isNotFound(err) {
			return zero, errors.NewNotFoundError(s.tableName, storagemodels.EntityKey(pk, rk), err)
		}
		return zero, fmt.Errorf("GetEntity failed: %w", err)
	}
	return decodeEntity[T](resp.Value, string(resp.ETag))
}

// QueryPage fetches exactly one page of q, resuming at token.
func (s *TableStore[T]) QueryPage(ctx context.Context, q storagemodels.Query, token storagemodels.ContinuationToken) ([]T, storagemodels.ContinuationToken, error) {
	var next storagemodels.ContinuationToken

	opts := &aztables.ListEntitiesOptions{
		Top: to.Ptr(q.PageSize()),
	}
	if filter := q.ODataFilter(); filter != "" {
		opts.Filter = to.Ptr(filter)
	}
	if sel := q.Select(); len(sel) > 0 {
		opts.Select = to.Ptr(strings.Join(withKeys(sel), ","))
	}
	if !token.IsZero() {
		opts.NextPartitionKey = to.Ptr(token.NextPartitionKey)
		if token.NextRowKey != "" {
			opts.NextRowKey = to.Ptr(token.NextRowKey)
		}
	}

	pager := s.client.NewListEntitiesPager(opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, next, fmt.Errorf("ListEntities failed: %w", err)
	}

	items := make([]T, 0, len(resp.Entities))
	for _, raw := range resp.Entities {
		item, err := decodeEntity[T](raw, "")
		if err != nil {
			return nil, next, err
		}
		items = append(items, item)
	}

	if resp.NextPartitionKey != nil && *resp.NextPartitionKey != "" {
		next.NextPartitionKey = *resp.NextPartitionKey
		if resp.NextRowKey != nil {
			next.NextRowKey = *resp.NextRowKey
		}
	}
	return items, next, nil
}

// Insert adds the entity, mapping EntityAlreadyExists to an AlreadyExistsError.
func (s *TableStore[T]) Insert(ctx context.Context, entity T) (storagemodels.Outcome, error) {
	body, err := encodeEntity(entity)
	if err != nil {
		return storagemodels.Outcome{}, err
	}
	resp, err := s.client.AddEntity(ctx, body, nil)
	if err != nil {
		if isConflict(err, codeEntityAlreadyExists) {
			return storagemodels.Outcome{}, errors.NewAlreadyExistsError(s.tableName, entityKeyOf(entity), err)
		}
		return storagemodels.Outcome{}, fmt.Errorf("AddEntity failed: %w", err)
	}
	return storagemodels.Outcome{ETag: string(resp.ETag)}, nil
}

// Upsert inserts or replaces the entity.
func (s *TableStore[T]) Upsert(ctx context.Context, entity T) (storagemodels.Outcome, error) {
	body, err := encodeEntity(entity)
	if err != nil {
		return storagemodels.Outcome{}, err
	}
	resp, err := s.client.UpsertEntity(ctx, body, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		return storagemodels.Outcome{}, fmt.Errorf("UpsertEntity failed: %w", err)
	}
	return storagemodels.Outcome{ETag: string(resp.ETag)}, nil
}

// Update merges or replaces the entity when etag matches.
func (s *TableStore[T]) Update(ctx context.Context, entity T, etag string, mode datastore.UpdateMode) (storagemodels.Outcome, error) {
	body, err := encodeEntity(entity)
	if err != nil {
		return storagemodels.Outcome{}, err
	}

	updateMode := aztables.UpdateModeMerge
	if mode == datastore.UpdateModeReplace {
		updateMode = aztables.UpdateModeReplace
	}
	resp, err := s.client.UpdateEntity(ctx, body, &aztables.UpdateEntityOptions{
		IfMatch:    to.Ptr(azcore.ETag(etag)),
		UpdateMode: updateMode,
	})
	if err != nil {
		switch {
		case isPreconditionFailed(err):
			return storagemodels.Outcome{}, errors.NewConditionFailedError(mode.String(), fmt.Sprintf("If-Match %q", etag), err)
		case isNotFound(err):
			return storagemodels.Outcome{}, errors.NewNotFoundError(s.tableName, entityKeyOf(entity), err)
		}
		return storagemodels.Outcome{}, fmt.Errorf("UpdateEntity failed: %w", err)
	}
	return storagemodels.Outcome{ETag: string(resp.ETag)}, nil
}

// Delete removes the entity regardless of its version. A missing entity is not an error.
func (s *TableStore[T]) Delete(ctx context.Context, pk, rk string) error {
	_, err := s.client.DeleteEntity(ctx, pk, rk, &aztables.DeleteEntityOptions{
		IfMatch: to.Ptr(azcore.ETagAny),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("DeleteEntity failed: %w", err)
	}
	return nil
}

// InsertBatch submits one entity group transaction adding every entity.
func (s *TableStore[T]) InsertBatch(ctx context.Context, entities []T) error {
	actions := make([]aztables.TransactionAction, 0, len(entities))
	for _, e := range entities {
		body, err := encodeEntity(e)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeAdd,
			Entity:     body,
		})
	}

	if _, err := s.client.SubmitTransaction(ctx, actions, nil); err != nil {
		if isConflict(err, codeEntityAlreadyExists) {
			return errors.NewAlreadyExistsError(s.tableName, "batch", err)
		}
		return fmt.Errorf("SubmitTransaction failed: %w", err)
	}
	return nil
}

// UpdateBatch submits one entity group transaction merging every entity under its ETag.
func (s *TableStore[T]) UpdateBatch(ctx context.Context, entities []T) error {
	actions := make([]aztables.TransactionAction, 0, len(entities))
	for _, e := range entities {
		body, err := encodeEntity(e)
		if err != nil {
			return err
		}
		etag := azcore.ETagAny
		if tag := e.GetETag(); tag != "" && tag != datastore.WildcardETag {
			etag = azcore.ETag(tag)
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     body,
			IfMatch:    to.Ptr(etag),
		})
	}

	if _, err := s.client.SubmitTransaction(ctx, actions, nil); err != nil {
		switch {
		case isPreconditionFailed(err):
			return errors.NewConditionFailedError(datastore.UpdateModeMerge.String(), "batch", err)
		case isNotFound(err):
			return errors.NewNotFoundError(s.tableName, "batch", err)
		}
		return fmt.Errorf("SubmitTransaction failed: %w", err)
	}
	return nil
}

// encodeEntity converts an entity to the JSON body of a table request. The read-only
// system properties are dropped.
func encodeEntity(entity any) ([]byte, error) {
	rec, err := storagemodels.ToRecord(entity)
	if err != nil {
		return nil, err
	}
	delete(rec, storagemodels.ETagProperty)
	delete(rec, storagemodels.TimestampProperty)
	return json.Marshal(rec)
}

// decodeEntity converts a returned entity to T. A non-empty etag overrides the one in
// the body.
func decodeEntity[T any](raw []byte, etag string) (T, error) {
	var rec storagemodels.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	if etag != "" {
		rec[storagemodels.ETagProperty] = etag
	}
	return storagemodels.FromRecord[T](rec)
}

func entityKeyOf(e storagemodels.Entity) string {
	return storagemodels.EntityKey(e.GetPartitionKey(), e.GetRowKey())
}

// withKeys adds the key properties to a projection so selected entities stay addressable.
func withKeys(props []string) []string {
	out := []string{storagemodels.PartitionKeyProperty, storagemodels.RowKeyProperty}
	for _, p := range props {
		if p != storagemodels.PartitionKeyProperty && p != storagemodels.RowKeyProperty {
			out = append(out, p)
		}
	}
	return out
}
