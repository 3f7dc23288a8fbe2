/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue/queueerror"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
)

// QueueAPI is the subset of *azqueue.QueueClient used by the queue handle. Used for
// testing purposes.
type QueueAPI interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

var _ QueueAPI = (*azqueue.QueueClient)(nil)

// QueueClientFactory returns the client of a named queue.
type QueueClientFactory func(name string) (QueueAPI, error)

// QueueStore implements datastore.QueueStore on Azure Queue storage.
type QueueStore struct {
	newClient QueueClientFactory
}

var _ datastore.QueueStore = (*QueueStore)(nil)

// NewQueueStore builds a queue store from a storage connection string.
func NewQueueStore(connectionString string) (*QueueStore, error) {
	svc, err := azqueue.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue service client: %w", err)
	}
	return NewQueueStoreWithFactory(func(name string) (QueueAPI, error) {
		return svc.NewQueueClient(name), nil
	}), nil
}

// NewQueueStoreWithFactory builds a queue store around a client factory.
func NewQueueStoreWithFactory(f QueueClientFactory) *QueueStore {
	return &QueueStore{newClient: f}
}

// Open creates the queue, ignoring QueueAlreadyExists, and returns its handle.
func (s *QueueStore) Open(ctx context.Context, name string) (datastore.Queue, error) {
	client, err := s.newClient(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}
	if _, err := client.Create(ctx, nil); err != nil && !queueerror.HasCode(err, queueerror.QueueAlreadyExists) {
		return nil, fmt.Errorf("CreateQueue failed: %w", err)
	}
	return &Queue{name: name, client: client}, nil
}

// Queue is a handle on an Azure storage queue.
type Queue struct {
	name   string
	client QueueAPI
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Enqueue adds a message.
func (q *Queue) Enqueue(ctx context.Context, text string, opts ...datastore.EnqueueOption) (datastore.Message, error) {
	o := datastore.ApplyEnqueueOptions(opts...)
	req := &azqueue.EnqueueMessageOptions{}
	if o.VisibilityDelay > 0 {
		req.VisibilityTimeout = to.Ptr(seconds(o.VisibilityDelay))
	}
	if o.TimeToLive > 0 {
		req.TimeToLive = to.Ptr(seconds(o.TimeToLive))
	}

	resp, err := q.client.EnqueueMessage(ctx, text, req)
	if err != nil {
		return datastore.Message{}, fmt.Errorf("EnqueueMessage failed: %w", err)
	}
	msg := datastore.Message{Text: text}
	if len(resp.Messages) > 0 && resp.Messages[0] != nil {
		m := resp.Messages[0]
		msg.ID = deref(m.MessageID)
		msg.PopReceipt = deref(m.PopReceipt)
		if m.InsertionTime != nil {
			msg.InsertedAt = *m.InsertionTime
		}
	}
	return msg, nil
}

// Dequeue receives up to max messages.
func (q *Queue) Dequeue(ctx context.Context, max int32, visibility time.Duration) ([]datastore.Message, error) {
	if max <= 0 {
		max = 1
	}
	req := &azqueue.DequeueMessagesOptions{NumberOfMessages: to.Ptr(max)}
	if visibility > 0 {
		req.VisibilityTimeout = to.Ptr(seconds(visibility))
	}

	resp, err := q.client.DequeueMessages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("DequeueMessages failed: %w", err)
	}
	out := make([]datastore.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil {
			continue
		}
		msg := datastore.Message{
			ID:         deref(m.MessageID),
			PopReceipt: deref(m.PopReceipt),
			Text:       deref(m.MessageText),
		}
		if m.DequeueCount != nil {
			msg.DequeueCount = *m.DequeueCount
		}
		if m.InsertionTime != nil {
			msg.InsertedAt = *m.InsertionTime
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteMessage removes a received message.
func (q *Queue) DeleteMessage(ctx context.Context, id, popReceipt string) error {
	if _, err := q.client.DeleteMessage(ctx, id, popReceipt, nil); err != nil {
		if queueerror.HasCode(err, queueerror.MessageNotFound, queueerror.PopReceiptMismatch) {
			return errors.NewNotFoundError("message", id, err)
		}
		return fmt.Errorf("DeleteMessage failed: %w", err)
	}
	return nil
}

func seconds(d time.Duration) int32 {
	return int32(d / time.Second)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
