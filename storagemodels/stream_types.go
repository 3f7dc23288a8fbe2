/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"time"
)

// StreamResult represents a single item in a stream with metadata
type StreamResult[T any] struct {
	Item  T          // The decoded entity
	Error error      // Set on the final result when the walk failed
	Meta  StreamMeta // Metadata about this item
}

// StreamMeta contains metadata about a streamed item
type StreamMeta struct {
	Index      int64     // Item index in stream (0-based)
	PageNumber int       // Page number (1-based)
	Timestamp  time.Time // When item was retrieved
}

// StreamOptions configures streaming behavior
type StreamOptions struct {
	BufferSize      int                  // Channel buffer size (default: 100)
	MaxItems        int64                // Stop after this many items, 0 for no limit
	ProgressHandler func(StreamProgress) // Optional progress callback, called after each page
}

// StreamProgress tracks streaming progress
type StreamProgress struct {
	ItemsProcessed    int64     // Total items processed
	PagesProcessed    int       // Total pages processed
	ContinuationToken string    // Token of the next page, empty when done
	StartTime         time.Time // When streaming started
	CurrentRate       float64   // Items per second
}

// StreamOption is a functional option for configuring streaming
type StreamOption func(*StreamOptions)

// DefaultStreamOptions returns default streaming options
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		BufferSize: 100,
	}
}

// WithBufferSize sets the channel buffer size
func WithBufferSize(size int) StreamOption {
	return func(opts *StreamOptions) {
		opts.BufferSize = size
	}
}

// WithMaxItems stops the stream after n items
func WithMaxItems(n int64) StreamOption {
	return func(opts *StreamOptions) {
		opts.MaxItems = n
	}
}

// WithProgressHandler sets a progress callback
func WithProgressHandler(handler func(StreamProgress)) StreamOption {
	return func(opts *StreamOptions) {
		opts.ProgressHandler = handler
	}
}
