//go:build integration
// +build integration

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package cloudstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/cloudstore"
	"github.com/suparena/cloudstore/datastore/ddb"
	"github.com/suparena/cloudstore/datastore/testmodels"
	storeerrors "github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/query"
	"github.com/suparena/cloudstore/storagemodels"
)

// Run against Azurite with
//
//	AZURE_STORAGE_CONNECTION_STRING=UseDevelopmentStorage=true go test -tags integration
//
// DYNAMODB_ENDPOINT additionally runs the table tests on DynamoDB Local.
func connectionString(t *testing.T) string {
	t.Helper()
	_ = godotenv.Load()
	cs := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	if cs == "" {
		t.Skip("AZURE_STORAGE_CONNECTION_STRING is not set")
	}
	return cs
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func exerciseTable(t *testing.T, m *cloudstore.TableManager[testmodels.RatingSystem]) {
	ctx := context.Background()

	require.NoError(t, m.InsertBatch(ctx, testmodels.RatingSystems("chess", 30)))

	all, err := m.Query(ctx, storagemodels.Where(query.PartitionKeyEq("chess"), storagemodels.WithPageSize(10)))
	require.NoError(t, err)
	assert.Len(t, all, 30)

	page, err := m.QueryPage(ctx, storagemodels.All(storagemodels.WithPageSize(10)), "")
	require.NoError(t, err)
	require.True(t, page.HasMore())
	next, err := m.QueryPage(ctx, storagemodels.All(storagemodels.WithPageSize(10)), page.ContinuationToken)
	require.NoError(t, err)
	assert.NotEqual(t, page.Items[0].RowKey, next.Items[0].RowKey)

	got, found, err := m.GetSingleWhere(ctx, query.Eq("Name", "System 7"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rs007", got.RowKey)

	stale := got
	stale.ETag = `W/"datetime'2000-01-01T00%3A00%3A00Z'"`
	_, err = m.Replace(ctx, stale)
	assert.True(t, storeerrors.IsConditionFailed(err))

	got.Description = "updated"
	_, err = m.Update(ctx, got)
	require.NoError(t, err)

	batch := testmodels.RatingSystems("chess", 3)
	for i := range batch {
		batch[i].Description = "batched"
	}
	require.NoError(t, m.UpdateBatch(ctx, batch))
	first, _, err := m.GetSingle(ctx, "chess", "rs000")
	require.NoError(t, err)
	assert.Equal(t, "batched", first.Description)

	require.NoError(t, m.Delete(ctx, "chess", "rs007"))
	require.NoError(t, m.Delete(ctx, "chess", "rs007"))
	_, found, err = m.GetSingle(ctx, "chess", "rs007")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegrationAzureTable(t *testing.T) {
	cs := connectionString(t)
	m, err := cloudstore.NewTableManager[testmodels.RatingSystem](context.Background(), cloudstore.NewFactory(), cs, uniqueName("ratings"))
	require.NoError(t, err)
	exerciseTable(t, m)
}

func TestIntegrationDynamoDBTable(t *testing.T) {
	_ = godotenv.Load()
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT is not set")
	}
	ctx := context.Background()
	store, err := ddb.NewDynamodbDataStore[testmodels.RatingSystem](ctx, ddb.ClientConfig{
		AccessKey: "local",
		SecretKey: "local",
		Region:    "us-east-1",
		Endpoint:  endpoint,
	}, uniqueName("ratings"))
	require.NoError(t, err)

	m, err := cloudstore.NewTableManagerWithStore[testmodels.RatingSystem](ctx, cloudstore.NewFactory(), store)
	require.NoError(t, err)
	exerciseTable(t, m)
}

func TestIntegrationBlob(t *testing.T) {
	cs := connectionString(t)
	ctx := context.Background()
	m, err := cloudstore.NewFactory().BlobManagerFromConnectionString(cs)
	require.NoError(t, err)

	container := uniqueName("files")
	_, err = m.StoreString(ctx, "a.txt", container, "hello")
	require.NoError(t, err)
	_, err = m.StoreString(ctx, "a.txt", container, "again")
	assert.True(t, storeerrors.IsAlreadyExists(err))

	text, err := m.GetString(ctx, "a.txt", container)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	link, err := m.GetDownloadURL(ctx, "a.txt", container)
	require.NoError(t, err)
	assert.Contains(t, link, "sig=")

	deleted, err := m.DeleteFile(ctx, "a.txt", container)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = m.DeleteFile(ctx, "a.txt", container)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestIntegrationQueue(t *testing.T) {
	cs := connectionString(t)
	ctx := context.Background()
	m, err := cloudstore.NewFactory().QueueManager(cs, uniqueName("orders"))
	require.NoError(t, err)

	q, err := m.Connect(ctx)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "order-1")
	require.NoError(t, err)

	msgs, err := q.Dequeue(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "order-1", msgs[0].Text)
	require.NoError(t, q.DeleteMessage(ctx, msgs[0].ID, msgs[0].PopReceipt))
}
