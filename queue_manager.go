/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package cloudstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/metrics"
)

const queueManagerLabel = "queue"

// QueueManager connects to one named queue.
type QueueManager struct {
	store   datastore.QueueStore
	name    string
	logger  zerolog.Logger
	metrics *metrics.Collector

	group  singleflight.Group
	mu     sync.RWMutex
	handle datastore.Queue
}

func newQueueManager(store datastore.QueueStore, name string, logger zerolog.Logger, m *metrics.Collector) *QueueManager {
	return &QueueManager{
		store:   store,
		name:    name,
		logger:  logger.With().Str("queue", name).Logger(),
		metrics: m,
	}
}

// Name returns the queue name.
func (q *QueueManager) Name() string { return q.name }

// Connect creates the queue if it does not exist and returns its handle. Concurrent
// first calls share one creation request; later calls return the cached handle. A failed
// creation is retried by the next call.
func (q *QueueManager) Connect(ctx context.Context) (queue datastore.Queue, err error) {
	q.mu.RLock()
	h := q.handle
	q.mu.RUnlock()
	if h != nil {
		return h, nil
	}

	start := time.Now()
	defer func() {
		q.metrics.Observe(queueManagerLabel, "connect", start, err)
		q.logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("queue connect")
	}()

	ch := q.group.DoChan(q.name, func() (interface{}, error) {
		q.mu.RLock()
		h := q.handle
		q.mu.RUnlock()
		if h != nil {
			return h, nil
		}

		// Shared by every waiting caller, so no single caller's cancellation applies.
		h, err := q.store.Open(context.WithoutCancel(ctx), q.name)
		if err != nil {
			return nil, fmt.Errorf("failed to open queue %s: %w", q.name, err)
		}
		q.mu.Lock()
		q.handle = h
		q.mu.Unlock()
		return h, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(datastore.Queue), nil
	}
}
