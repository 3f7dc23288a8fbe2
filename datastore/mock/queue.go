/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/errors"
)

// QueueStore is an in-memory datastore.QueueStore. Every Open call counts as one
// creation request against the service.
type QueueStore struct {
	mu          sync.Mutex
	queues      map[string]*Queue
	createCount int
	openDelay   time.Duration
	openError   error
}

var _ datastore.QueueStore = (*QueueStore)(nil)

// NewQueueStore creates an empty in-memory queue store
func NewQueueStore() *QueueStore {
	return &QueueStore{queues: make(map[string]*Queue)}
}

// WithOpenDelay makes every Open call take at least d
func (m *QueueStore) WithOpenDelay(d time.Duration) *QueueStore {
	m.openDelay = d
	return m
}

// WithOpenError makes Open return err
func (m *QueueStore) WithOpenError(err error) *QueueStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openError = err
	return m
}

// Open creates the queue if needed and returns its handle
func (m *QueueStore) Open(ctx context.Context, name string) (datastore.Queue, error) {
	m.mu.Lock()
	m.createCount++
	openErr := m.openError
	m.mu.Unlock()

	if m.openDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.openDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if openErr != nil {
		return nil, openErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = &Queue{name: name}
		m.queues[name] = q
	}
	return q, nil
}

// CreateCount returns the number of Open calls
func (m *QueueStore) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCount
}

// Queue is an in-memory datastore.Queue
type Queue struct {
	mu       sync.Mutex
	name     string
	messages []*queuedMessage
}

type queuedMessage struct {
	msg       datastore.Message
	visibleAt time.Time
	expiresAt time.Time
}

// Name returns the queue name
func (q *Queue) Name() string { return q.name }

// Enqueue appends a message
func (q *Queue) Enqueue(ctx context.Context, text string, opts ...datastore.EnqueueOption) (datastore.Message, error) {
	if err := ctx.Err(); err != nil {
		return datastore.Message{}, err
	}
	o := datastore.ApplyEnqueueOptions(opts...)
	now := time.Now()

	qm := &queuedMessage{
		msg: datastore.Message{
			ID:         uuid.NewString(),
			PopReceipt: uuid.NewString(),
			Text:       text,
			InsertedAt: now,
		},
		visibleAt: now.Add(o.VisibilityDelay),
	}
	if o.TimeToLive > 0 {
		qm.expiresAt = now.Add(o.TimeToLive)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, qm)
	return qm.msg, nil
}

// Dequeue receives up to max visible messages and hides them for visibility
func (q *Queue) Dequeue(ctx context.Context, max int32, visibility time.Duration) ([]datastore.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var out []datastore.Message
	kept := q.messages[:0]
	for _, qm := range q.messages {
		if !qm.expiresAt.IsZero() && now.After(qm.expiresAt) {
			continue
		}
		kept = append(kept, qm)
		if int32(len(out)) < max && !now.Before(qm.visibleAt) {
			qm.msg.DequeueCount++
			qm.msg.PopReceipt = uuid.NewString()
			qm.visibleAt = now.Add(visibility)
			out = append(out, qm.msg)
		}
	}
	q.messages = kept
	return out, nil
}

// DeleteMessage removes a message by id and pop receipt
func (q *Queue) DeleteMessage(ctx context.Context, id, popReceipt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, qm := range q.messages {
		if qm.msg.ID == id && qm.msg.PopReceipt == popReceipt {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFoundError("message", id, nil)
}

// Len returns the number of stored messages, visible or not
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
