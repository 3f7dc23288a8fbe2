/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/cloudstore/datastore"
	storeerrors "github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/query"
	"github.com/suparena/cloudstore/storagemodels"
)

type order struct {
	storagemodels.EntityBase
	Total float64 `json:"Total"`
}

func respErr(status int, code string) error {
	u, _ := url.Parse("https://acct.table.core.windows.net/orders")
	return &azcore.ResponseError{
		ErrorCode:  code,
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Header:     http.Header{"X-Ms-Error-Code": []string{code}},
			Body:       http.NoBody,
			Request:    &http.Request{Method: http.MethodGet, URL: u},
		},
	}
}

type fakeTable struct {
	TableAPI

	createErr   error
	getResp     aztables.GetEntityResponse
	getErr      error
	pages       []aztables.ListEntitiesResponse
	listOpts    []aztables.ListEntitiesOptions
	added       [][]byte
	addErr      error
	updateOpts  *aztables.UpdateEntityOptions
	updateErr   error
	deleteOpts  *aztables.DeleteEntityOptions
	deleteErr   error
	transaction []aztables.TransactionAction
	transactErr error
}

func (f *fakeTable) CreateTable(ctx context.Context, _ *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.createErr
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	return f.getResp, f.getErr
}

func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.listOpts = append(f.listOpts, *opts)
	page := f.pages[len(f.listOpts)-1]
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(resp aztables.ListEntitiesResponse) bool { return resp.NextPartitionKey != nil },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			return page, nil
		},
	})
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.added = append(f.added, entity)
	return aztables.AddEntityResponse{ETag: azcore.ETag(`W/"1"`)}, f.addErr
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.updateOpts = opts
	return aztables.UpdateEntityResponse{ETag: azcore.ETag(`W/"2"`)}, f.updateErr
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.deleteOpts = opts
	return aztables.DeleteEntityResponse{}, f.deleteErr
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, _ *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	f.transaction = actions
	return aztables.TransactionResponse{}, f.transactErr
}

func entityJSON(t *testing.T, pk, rk string, total float64) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"odata.etag":   `W/"datetime'2025-01-01T00%3A00%3A00Z'"`,
		"PartitionKey": pk,
		"RowKey":       rk,
		"Timestamp":    "2025-01-01T00:00:00.000Z",
		"Total":        total,
	})
	require.NoError(t, err)
	return data
}

func TestTableStoreCreateIfNotExists(t *testing.T) {
	ctx := context.Background()

	store := NewTableStoreWithClient[order](&fakeTable{createErr: respErr(http.StatusConflict, codeTableAlreadyExists)}, "orders")
	assert.NoError(t, store.CreateIfNotExists(ctx))

	store = NewTableStoreWithClient[order](&fakeTable{createErr: respErr(http.StatusForbidden, "AuthorizationFailure")}, "orders")
	err := store.CreateIfNotExists(ctx)
	require.Error(t, err)
	var re *azcore.ResponseError
	assert.ErrorAs(t, err, &re)
}

func TestTableStoreQueryPage(t *testing.T) {
	ctx := context.Background()
	fake := &fakeTable{
		pages: []aztables.ListEntitiesResponse{
			{
				Entities:         [][]byte{entityJSON(t, "P1", "R1", 1), entityJSON(t, "P1", "R2", 2)},
				NextPartitionKey: to.Ptr("P1"),
				NextRowKey:       to.Ptr("R3"),
			},
			{Entities: [][]byte{entityJSON(t, "P1", "R3", 3)}},
		},
	}
	store := NewTableStoreWithClient[order](fake, "orders")
	q := storagemodels.Where(query.PartitionKeyEq("P1"), storagemodels.WithPageSize(2), storagemodels.WithSelect("Total"))

	items, next, err := store.QueryPage(ctx, q, storagemodels.ContinuationToken{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "R2", items[1].RowKey)
	assert.Equal(t, 2.0, items[1].Total)
	assert.NotEmpty(t, items[0].ETag)
	assert.Equal(t, storagemodels.ContinuationToken{NextPartitionKey: "P1", NextRowKey: "R3"}, next)

	first := fake.listOpts[0]
	assert.Equal(t, "PartitionKey eq 'P1'", *first.Filter)
	assert.Equal(t, "PartitionKey,RowKey,Total", *first.Select)
	assert.Equal(t, int32(2), *first.Top)
	assert.Nil(t, first.NextPartitionKey)

	items, next, err = store.QueryPage(ctx, q, next)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.True(t, next.IsZero())
	assert.Equal(t, "P1", *fake.listOpts[1].NextPartitionKey)
	assert.Equal(t, "R3", *fake.listOpts[1].NextRowKey)
}

func TestTableStoreGet(t *testing.T) {
	ctx := context.Background()

	fake := &fakeTable{getResp: aztables.GetEntityResponse{ETag: azcore.ETag(`W/"9"`), Value: entityJSON(t, "P1", "R1", 4)}}
	got, err := NewTableStoreWithClient[order](fake, "orders").Get(ctx, "P1", "R1")
	require.NoError(t, err)
	assert.Equal(t, `W/"9"`, got.ETag)
	assert.Equal(t, 4.0, got.Total)

	fake = &fakeTable{getErr: respErr(http.StatusNotFound, codeResourceNotFound)}
	_, err = NewTableStoreWithClient[order](fake, "orders").Get(ctx, "P1", "R1")
	assert.True(t, storeerrors.IsNotFound(err))
}

func TestTableStoreWrites(t *testing.T) {
	ctx := context.Background()
	e := order{EntityBase: storagemodels.EntityBase{PartitionKey: "P1", RowKey: "R1", ETag: `W/"old"`}, Total: 5}

	t.Run("insert strips system properties", func(t *testing.T) {
		fake := &fakeTable{}
		out, err := NewTableStoreWithClient[order](fake, "orders").Insert(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, `W/"1"`, out.ETag)

		var body map[string]any
		require.NoError(t, json.Unmarshal(fake.added[0], &body))
		assert.NotContains(t, body, storagemodels.ETagProperty)
		assert.Equal(t, "P1", body["PartitionKey"])
	})

	t.Run("insert conflict", func(t *testing.T) {
		fake := &fakeTable{addErr: respErr(http.StatusConflict, codeEntityAlreadyExists)}
		_, err := NewTableStoreWithClient[order](fake, "orders").Insert(ctx, e)
		assert.True(t, storeerrors.IsAlreadyExists(err))
	})

	t.Run("update sends etag and mode", func(t *testing.T) {
		fake := &fakeTable{}
		_, err := NewTableStoreWithClient[order](fake, "orders").Update(ctx, e, `W/"old"`, datastore.UpdateModeReplace)
		require.NoError(t, err)
		assert.Equal(t, azcore.ETag(`W/"old"`), *fake.updateOpts.IfMatch)
		assert.Equal(t, aztables.UpdateModeReplace, fake.updateOpts.UpdateMode)
	})

	t.Run("update precondition", func(t *testing.T) {
		fake := &fakeTable{updateErr: respErr(http.StatusPreconditionFailed, codeUpdateConditionNotSatisfied)}
		_, err := NewTableStoreWithClient[order](fake, "orders").Update(ctx, e, `W/"old"`, datastore.UpdateModeMerge)
		assert.True(t, storeerrors.IsConditionFailed(err))
	})

	t.Run("delete missing succeeds", func(t *testing.T) {
		fake := &fakeTable{deleteErr: respErr(http.StatusNotFound, codeResourceNotFound)}
		require.NoError(t, NewTableStoreWithClient[order](fake, "orders").Delete(ctx, "P1", "R1"))
		assert.Equal(t, azcore.ETagAny, *fake.deleteOpts.IfMatch)
	})

	t.Run("batch", func(t *testing.T) {
		fake := &fakeTable{}
		err := NewTableStoreWithClient[order](fake, "orders").InsertBatch(ctx, []order{e, e})
		require.NoError(t, err)
		require.Len(t, fake.transaction, 2)
		assert.Equal(t, aztables.TransactionTypeAdd, fake.transaction[0].ActionType)
	})

	t.Run("update batch merges under etags", func(t *testing.T) {
		fake := &fakeTable{}
		unversioned := order{EntityBase: storagemodels.EntityBase{PartitionKey: "P1", RowKey: "R2"}, Total: 1}
		err := NewTableStoreWithClient[order](fake, "orders").UpdateBatch(ctx, []order{e, unversioned})
		require.NoError(t, err)
		require.Len(t, fake.transaction, 2)
		assert.Equal(t, aztables.TransactionTypeUpdateMerge, fake.transaction[0].ActionType)
		assert.Equal(t, azcore.ETag(`W/"old"`), *fake.transaction[0].IfMatch)
		assert.Equal(t, azcore.ETagAny, *fake.transaction[1].IfMatch)
	})

	t.Run("update batch precondition", func(t *testing.T) {
		fake := &fakeTable{transactErr: respErr(http.StatusPreconditionFailed, codeUpdateConditionNotSatisfied)}
		err := NewTableStoreWithClient[order](fake, "orders").UpdateBatch(ctx, []order{e})
		assert.True(t, storeerrors.IsConditionFailed(err))
	})
}

func TestNewTableStore(t *testing.T) {
	store, err := NewTableStore[order]("DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=a2V5;EndpointSuffix=core.windows.net", "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", store.Name())

	_, err = NewTableStore[order]("garbage", "orders")
	assert.Error(t, err)
}

type fakeBlob struct {
	createErr   error
	uploadErr   error
	uploadOpts  *azblob.UploadStreamOptions
	uploaded    []byte
	downloadErr error
	content     string
	deleteErr   error
}

func (f *fakeBlob) URL() string { return "https://acct.blob.core.windows.net/" }

func (f *fakeBlob) CreateContainer(ctx context.Context, name string, _ *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error) {
	return azblob.CreateContainerResponse{}, f.createErr
}

func (f *fakeBlob) UploadStream(ctx context.Context, c, n string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error) {
	f.uploadOpts = o
	f.uploaded, _ = io.ReadAll(body)
	return azblob.UploadStreamResponse{}, f.uploadErr
}

func (f *fakeBlob) DownloadStream(ctx context.Context, c, n string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	var resp azblob.DownloadStreamResponse
	if f.downloadErr != nil {
		return resp, f.downloadErr
	}
	resp.Body = io.NopCloser(bytes.NewBufferString(f.content))
	return resp, nil
}

func (f *fakeBlob) DeleteBlob(ctx context.Context, c, n string, _ *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error) {
	return azblob.DeleteBlobResponse{}, f.deleteErr
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()

	t.Run("existing container is fine", func(t *testing.T) {
		store := NewBlobStoreWithClient(&fakeBlob{createErr: respErr(http.StatusConflict, "ContainerAlreadyExists")})
		assert.NoError(t, store.EnsureContainer(ctx, "docs"))
	})

	t.Run("upload without overwrite is conditional", func(t *testing.T) {
		fake := &fakeBlob{}
		uri, err := NewBlobStoreWithClient(fake).Upload(ctx, "docs", "a b/c.txt", bytes.NewBufferString("hi"), false)
		require.NoError(t, err)
		assert.Equal(t, "https://acct.blob.core.windows.net/docs/a%20b/c.txt", uri)
		assert.Equal(t, azcore.ETagAny, *fake.uploadOpts.AccessConditions.ModifiedAccessConditions.IfNoneMatch)
		assert.Equal(t, "hi", string(fake.uploaded))
	})

	t.Run("upload with overwrite is unconditional", func(t *testing.T) {
		fake := &fakeBlob{}
		_, err := NewBlobStoreWithClient(fake).Upload(ctx, "docs", "a.txt", bytes.NewBufferString("hi"), true)
		require.NoError(t, err)
		assert.Nil(t, fake.uploadOpts.AccessConditions)
	})

	t.Run("existing blob", func(t *testing.T) {
		fake := &fakeBlob{uploadErr: respErr(http.StatusConflict, "BlobAlreadyExists")}
		_, err := NewBlobStoreWithClient(fake).Upload(ctx, "docs", "a.txt", bytes.NewBufferString("hi"), false)
		assert.True(t, storeerrors.IsAlreadyExists(err))
	})

	t.Run("download", func(t *testing.T) {
		data, err := NewBlobStoreWithClient(&fakeBlob{content: "payload"}).Download(ctx, "docs", "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		_, err = NewBlobStoreWithClient(&fakeBlob{downloadErr: respErr(http.StatusNotFound, "BlobNotFound")}).Download(ctx, "docs", "a.txt")
		assert.True(t, storeerrors.IsNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := NewBlobStoreWithClient(&fakeBlob{}).Delete(ctx, "docs", "a.txt")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = NewBlobStoreWithClient(&fakeBlob{deleteErr: respErr(http.StatusNotFound, "BlobNotFound")}).Delete(ctx, "docs", "a.txt")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("download url", func(t *testing.T) {
		cred, err := azblob.NewSharedKeyCredential("acct", "a2V5")
		require.NoError(t, err)
		link, err := NewBlobStoreWithClient(&fakeBlob{}).WithSharedKeyCredential(cred).DownloadURL(ctx, "docs", "reports/q1.pdf", time.Minute)
		require.NoError(t, err)

		u, err := url.Parse(link)
		require.NoError(t, err)
		assert.Equal(t, "/docs/reports/q1.pdf", u.Path)
		assert.Equal(t, "r", u.Query().Get("sp"))
		assert.NotEmpty(t, u.Query().Get("sig"))
		assert.Equal(t, `attachment;filename="q1.pdf"`, u.Query().Get("rscd"))

		expiry, err := time.Parse(time.RFC3339, u.Query().Get("se"))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Minute), expiry, 5*time.Second)
	})

	t.Run("download url without key", func(t *testing.T) {
		_, err := NewBlobStoreWithClient(&fakeBlob{}).DownloadURL(ctx, "docs", "a.txt", time.Minute)
		assert.True(t, storeerrors.IsConfigurationError(err))
	})
}

type fakeQueue struct {
	createErr error
	creates   int
	enqOpts   *azqueue.EnqueueMessageOptions
	deqOpts   *azqueue.DequeueMessagesOptions
	deleteErr error
}

func (f *fakeQueue) Create(ctx context.Context, _ *azqueue.CreateOptions) (azqueue.CreateResponse, error) {
	f.creates++
	return azqueue.CreateResponse{}, f.createErr
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.enqOpts = o
	var resp azqueue.EnqueueMessagesResponse
	resp.Messages = []*azqueue.EnqueuedMessage{{MessageID: to.Ptr("m1"), PopReceipt: to.Ptr("p1")}}
	return resp, nil
}

func (f *fakeQueue) DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error) {
	f.deqOpts = o
	var resp azqueue.DequeueMessagesResponse
	resp.Messages = []*azqueue.DequeuedMessage{{
		MessageID:    to.Ptr("m1"),
		PopReceipt:   to.Ptr("p2"),
		MessageText:  to.Ptr("hello"),
		DequeueCount: to.Ptr(int64(1)),
	}}
	return resp, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, id, pop string, _ *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error) {
	return azqueue.DeleteMessageResponse{}, f.deleteErr
}

func TestQueueStore(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQueue{createErr: respErr(http.StatusConflict, "QueueAlreadyExists")}
	store := NewQueueStoreWithFactory(func(name string) (QueueAPI, error) { return fake, nil })

	q, err := store.Open(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", q.Name())
	assert.Equal(t, 1, fake.creates)

	msg, err := q.Enqueue(ctx, "hello", datastore.WithVisibilityDelay(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, int32(30), *fake.enqOpts.VisibilityTimeout)
	assert.Nil(t, fake.enqOpts.TimeToLive)

	msgs, err := q.Dequeue(ctx, 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, int64(1), msgs[0].DequeueCount)
	assert.Equal(t, int32(5), *fake.deqOpts.NumberOfMessages)
	assert.Equal(t, int32(60), *fake.deqOpts.VisibilityTimeout)

	fake.deleteErr = respErr(http.StatusNotFound, "MessageNotFound")
	assert.True(t, storeerrors.IsNotFound(q.DeleteMessage(ctx, "m1", "p2")))

	failing := NewQueueStoreWithFactory(func(name string) (QueueAPI, error) {
		return &fakeQueue{createErr: respErr(http.StatusForbidden, "AuthorizationFailure")}, nil
	})
	_, err = failing.Open(ctx, "orders")
	assert.Error(t, err)
}
