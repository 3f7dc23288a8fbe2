/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/cloudstore/datastore"
	storeerrors "github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/query"
	"github.com/suparena/cloudstore/storagemodels"
)

type rating struct {
	storagemodels.EntityBase
	Score float64 `json:"Score"`
}

type fakeAPI struct {
	API

	createErr  error
	getOut     *sdk.GetItemOutput
	putInputs  []*sdk.PutItemInput
	putErr     error
	updateIn   *sdk.UpdateItemInput
	updateErr  error
	queryIn    *sdk.QueryInput
	queryOut   *sdk.QueryOutput
	scanIn     *sdk.ScanInput
	scanOut    *sdk.ScanOutput
	scanCalls  int
	// scanRows and scanMatch make Scan evaluate Limit rows before filtering them.
	scanRows  []map[string]types.AttributeValue
	scanMatch func(map[string]types.AttributeValue) bool
	transactIn *sdk.TransactWriteItemsInput
	transactEr error
}

func (f *fakeAPI) CreateTable(ctx context.Context, in *sdk.CreateTableInput, _ ...func(*sdk.Options)) (*sdk.CreateTableOutput, error) {
	return &sdk.CreateTableOutput{}, f.createErr
}

func (f *fakeAPI) GetItem(ctx context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	return f.getOut, nil
}

func (f *fakeAPI) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &sdk.PutItemOutput{}, f.putErr
}

func (f *fakeAPI) UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	f.updateIn = in
	return &sdk.UpdateItemOutput{}, f.updateErr
}

func (f *fakeAPI) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.queryIn = in
	return f.queryOut, nil
}

func (f *fakeAPI) Scan(ctx context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.scanIn = in
	f.scanCalls++
	if f.scanRows == nil {
		return f.scanOut, nil
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey[rkAttr].(*types.AttributeValueMemberS).Value
		for i, row := range f.scanRows {
			if row[rkAttr].(*types.AttributeValueMemberS).Value == last {
				start = i + 1
			}
		}
	}
	end := start + int(aws.ToInt32(in.Limit))
	if end > len(f.scanRows) {
		end = len(f.scanRows)
	}

	out := &sdk.ScanOutput{}
	for _, row := range f.scanRows[start:end] {
		if f.scanMatch(row) {
			out.Items = append(out.Items, row)
		}
	}
	if end < len(f.scanRows) {
		last := f.scanRows[end-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{pkAttr: last[pkAttr], rkAttr: last[rkAttr]}
	}
	return out, nil
}

func (f *fakeAPI) TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, _ ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.transactIn = in
	return &sdk.TransactWriteItemsOutput{}, f.transactEr
}

func item(pk, rk string, score string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkAttr:   &types.AttributeValueMemberS{Value: pk},
		rkAttr:   &types.AttributeValueMemberS{Value: rk},
		etagAttr: &types.AttributeValueMemberS{Value: `W/"e1"`},
		"Score":  &types.AttributeValueMemberN{Value: score},
	}
}

func TestCreateIfNotExistsIgnoresExistingTable(t *testing.T) {
	fake := &fakeAPI{createErr: &types.ResourceInUseException{Message: aws.String("Table already exists")}}
	store := NewDynamodbDataStoreWithClient[rating](fake, "ratings")
	assert.NoError(t, store.CreateIfNotExists(context.Background()))
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	fake := &fakeAPI{getOut: &sdk.GetItemOutput{Item: item("P1", "R1", "4.5")}}
	got, err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").Get(ctx, "P1", "R1")
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.Score)
	assert.Equal(t, `W/"e1"`, got.ETag)

	fake = &fakeAPI{getOut: &sdk.GetItemOutput{}}
	_, err = NewDynamodbDataStoreWithClient[rating](fake, "ratings").Get(ctx, "P1", "R1")
	assert.True(t, storeerrors.IsNotFound(err))
}

func TestQueryPageUsesKeyCondition(t *testing.T) {
	fake := &fakeAPI{queryOut: &sdk.QueryOutput{
		Items:            []map[string]types.AttributeValue{item("P1", "R1", "1"), item("P1", "R2", "2")},
		LastEvaluatedKey: map[string]types.AttributeValue{pkAttr: &types.AttributeValueMemberS{Value: "P1"}, rkAttr: &types.AttributeValueMemberS{Value: "R2"}},
	}}
	store := NewDynamodbDataStoreWithClient[rating](fake, "ratings")

	q := storagemodels.Where(query.And(query.PartitionKeyEq("P1"), query.Gt("Score", 0)), storagemodels.WithPageSize(2))
	items, next, err := store.QueryPage(context.Background(), q, storagemodels.ContinuationToken{NextPartitionKey: "P1", NextRowKey: "R0"})
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, storagemodels.ContinuationToken{NextPartitionKey: "P1", NextRowKey: "R2"}, next)
	require.NotNil(t, fake.queryIn)
	assert.NotNil(t, fake.queryIn.KeyConditionExpression)
	assert.NotNil(t, fake.queryIn.FilterExpression)
	assert.Equal(t, int32(2), *fake.queryIn.Limit)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "R0"}, fake.queryIn.ExclusiveStartKey[rkAttr])
	assert.Nil(t, fake.scanIn)
}

func TestQueryPageFallsBackToScan(t *testing.T) {
	fake := &fakeAPI{scanOut: &sdk.ScanOutput{Items: []map[string]types.AttributeValue{item("P9", "R1", "3")}}}
	store := NewDynamodbDataStoreWithClient[rating](fake, "ratings")

	items, next, err := store.QueryPage(context.Background(), storagemodels.Filter("Score ge 3", storagemodels.WithSelect("Score")), storagemodels.ContinuationToken{})
	require.NoError(t, err)

	assert.Len(t, items, 1)
	assert.True(t, next.IsZero())
	require.NotNil(t, fake.scanIn)
	assert.NotNil(t, fake.scanIn.FilterExpression)
	assert.NotNil(t, fake.scanIn.ProjectionExpression)
	assert.Nil(t, fake.scanIn.ExclusiveStartKey)
	assert.Equal(t, int32(storagemodels.DefaultPageSize), *fake.scanIn.Limit)
}

func TestQueryPageFillsPageAcrossFilteredRequests(t *testing.T) {
	ctx := context.Background()
	scoreOf := func(row map[string]types.AttributeValue) string {
		return row["Score"].(*types.AttributeValueMemberN).Value
	}
	rows := []map[string]types.AttributeValue{
		item("P1", "R1", "1"), item("P1", "R2", "2"), item("P1", "R3", "9"),
		item("P1", "R4", "3"), item("P1", "R5", "9"), item("P1", "R6", "4"),
	}

	t.Run("match behind filtered rows", func(t *testing.T) {
		fake := &fakeAPI{scanRows: rows, scanMatch: func(row map[string]types.AttributeValue) bool { return scoreOf(row) == "9" }}
		store := NewDynamodbDataStoreWithClient[rating](fake, "ratings")

		items, next, err := store.QueryPage(ctx, storagemodels.Where(query.Eq("Score", 9), storagemodels.WithPageSize(1)), storagemodels.ContinuationToken{})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "R3", items[0].RowKey)
		assert.Equal(t, 3, fake.scanCalls)
		assert.Equal(t, storagemodels.ContinuationToken{NextPartitionKey: "P1", NextRowKey: "R3"}, next)

		items, next, err = store.QueryPage(ctx, storagemodels.Where(query.Eq("Score", 9), storagemodels.WithPageSize(1)), next)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "R5", items[0].RowKey)
		assert.False(t, next.IsZero())
	})

	t.Run("exhausted table ends the walk", func(t *testing.T) {
		fake := &fakeAPI{scanRows: rows, scanMatch: func(row map[string]types.AttributeValue) bool { return scoreOf(row) == "9" }}
		store := NewDynamodbDataStoreWithClient[rating](fake, "ratings")

		items, next, err := store.QueryPage(ctx, storagemodels.Where(query.Eq("Score", 9), storagemodels.WithPageSize(5)), storagemodels.ContinuationToken{})
		require.NoError(t, err)
		assert.Len(t, items, 2)
		assert.True(t, next.IsZero())
	})

	t.Run("no match", func(t *testing.T) {
		fake := &fakeAPI{scanRows: rows, scanMatch: func(map[string]types.AttributeValue) bool { return false }}
		store := NewDynamodbDataStoreWithClient[rating](fake, "ratings")

		items, next, err := store.QueryPage(ctx, storagemodels.Where(query.Eq("Score", 7), storagemodels.WithPageSize(2)), storagemodels.ContinuationToken{})
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.True(t, next.IsZero())
		assert.Equal(t, 3, fake.scanCalls)
	})
}

func TestSplitPartitionKey(t *testing.T) {
	pk, rest, ok := splitPartitionKey(query.PartitionKeyEq("P1"))
	assert.True(t, ok)
	assert.Equal(t, "P1", pk)
	assert.True(t, rest.IsZero())

	pk, rest, ok = splitPartitionKey(query.And(query.RowKeyEq("R1"), query.PartitionKeyEq("P2"), query.Gt("Score", 1)))
	assert.True(t, ok)
	assert.Equal(t, "P2", pk)
	assert.Equal(t, "(RowKey eq 'R1') and (Score gt 1)", query.Render(rest))

	_, _, ok = splitPartitionKey(query.Or(query.PartitionKeyEq("P1"), query.PartitionKeyEq("P2")))
	assert.False(t, ok)
}

func TestWrites(t *testing.T) {
	ctx := context.Background()
	e := rating{EntityBase: storagemodels.EntityBase{PartitionKey: "P1", RowKey: "R1"}, Score: 2}

	t.Run("insert conflict", func(t *testing.T) {
		fake := &fakeAPI{putErr: &types.ConditionalCheckFailedException{Message: aws.String("exists")}}
		_, err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").Insert(ctx, e)
		assert.True(t, storeerrors.IsAlreadyExists(err))
		assert.NotNil(t, fake.putInputs[0].ConditionExpression)
	})

	t.Run("upsert assigns etag", func(t *testing.T) {
		fake := &fakeAPI{}
		out, err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").Upsert(ctx, e)
		require.NoError(t, err)
		assert.NotEmpty(t, out.ETag)
		assert.Equal(t, &types.AttributeValueMemberS{Value: out.ETag}, fake.putInputs[0].Item[etagAttr])
		assert.Nil(t, fake.putInputs[0].ConditionExpression)
	})

	t.Run("replace of missing item", func(t *testing.T) {
		fake := &fakeAPI{putErr: &types.ConditionalCheckFailedException{Message: aws.String("failed")}}
		_, err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").Update(ctx, e, `W/"e1"`, datastore.UpdateModeReplace)
		assert.True(t, storeerrors.IsNotFound(err))
	})

	t.Run("merge with stale etag", func(t *testing.T) {
		fake := &fakeAPI{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("failed"), Item: item("P1", "R1", "1")}}
		_, err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").Update(ctx, e, `W/"stale"`, datastore.UpdateModeMerge)
		assert.True(t, storeerrors.IsConditionFailed(err))
		require.NotNil(t, fake.updateIn)
		assert.NotNil(t, fake.updateIn.UpdateExpression)
	})

	t.Run("batch conflict names the entity", func(t *testing.T) {
		other := e
		other.RowKey = "R2"
		fake := &fakeAPI{transactEr: &types.TransactionCanceledException{
			Message: aws.String("cancelled"),
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		}}
		err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").InsertBatch(ctx, []rating{e, other})
		require.Error(t, err)
		assert.True(t, storeerrors.IsAlreadyExists(err))
		assert.Contains(t, err.Error(), "P1/R2")
		assert.Len(t, fake.transactIn.TransactItems, 2)
	})

	t.Run("update batch", func(t *testing.T) {
		versioned := e
		versioned.RowKey = "R2"
		versioned.ETag = `W/"e1"`
		fake := &fakeAPI{}
		err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").UpdateBatch(ctx, []rating{e, versioned})
		require.NoError(t, err)

		require.Len(t, fake.transactIn.TransactItems, 2)
		for _, it := range fake.transactIn.TransactItems {
			require.NotNil(t, it.Update)
			assert.NotNil(t, it.Update.UpdateExpression)
			assert.NotNil(t, it.Update.ConditionExpression)
		}
		assert.Equal(t, &types.AttributeValueMemberS{Value: "R2"}, fake.transactIn.TransactItems[1].Update.Key[rkAttr])
	})

	t.Run("update batch failures", func(t *testing.T) {
		cancelled := func(old map[string]types.AttributeValue) error {
			return &types.TransactionCanceledException{
				Message:             aws.String("cancelled"),
				CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed"), Item: old}},
			}
		}

		fake := &fakeAPI{transactEr: cancelled(item("P1", "R1", "1"))}
		err := NewDynamodbDataStoreWithClient[rating](fake, "ratings").UpdateBatch(ctx, []rating{e})
		assert.True(t, storeerrors.IsConditionFailed(err))

		fake = &fakeAPI{transactEr: cancelled(nil)}
		err = NewDynamodbDataStoreWithClient[rating](fake, "ratings").UpdateBatch(ctx, []rating{e})
		assert.True(t, storeerrors.IsNotFound(err))
	})
}
