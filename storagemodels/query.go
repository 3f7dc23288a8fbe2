/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"github.com/suparena/cloudstore/query"
)

// DefaultPageSize is the number of entities requested per page when a query does not set one.
const DefaultPageSize int32 = 25

// Query describes a table query: a filter, a projection and a page size. It is built with
// Filter or Where and is immutable once built.
//
// A continuation token records a resume position only. Using a token produced by one
// Query with a different Query is undefined.
type Query struct {
	rawFilter string
	predicate query.Predicate
	typed     bool
	selection []string
	pageSize  int32
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithSelect restricts the returned properties. No properties means all of them.
func WithSelect(props ...string) QueryOption {
	return func(q *Query) {
		q.selection = append([]string(nil), props...)
	}
}

// WithPageSize sets the number of entities per page. Non-positive sizes fall back to
// DefaultPageSize.
func WithPageSize(n int32) QueryOption {
	return func(q *Query) {
		q.pageSize = n
	}
}

// Filter builds a Query from a raw OData filter string such as "PartitionKey eq 'p1'".
// The string is not checked here; malformed filters fail when the query runs.
func Filter(raw string, opts ...QueryOption) Query {
	q := Query{rawFilter: raw}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Where builds a Query from a typed predicate.
func Where(pred query.Predicate, opts ...QueryOption) Query {
	q := Query{predicate: pred, typed: true}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// All builds a Query that matches every entity.
func All(opts ...QueryOption) Query {
	return Filter("", opts...)
}

// IsTyped reports whether the query was built from a Predicate.
func (q Query) IsTyped() bool { return q.typed }

// RawFilter returns the raw filter string of a Filter query.
func (q Query) RawFilter() string { return q.rawFilter }

// Predicate returns the predicate of a Where query.
func (q Query) Predicate() query.Predicate { return q.predicate }

// ODataFilter returns the filter in OData syntax, rendering the predicate of typed queries.
func (q Query) ODataFilter() string {
	if q.typed {
		return query.Render(q.predicate)
	}
	return q.rawFilter
}

// Resolve returns the query filter as a Predicate, parsing raw filters.
func (q Query) Resolve() (query.Predicate, error) {
	if q.typed {
		return q.predicate, nil
	}
	return query.Parse(q.rawFilter)
}

// Select returns a copy of the projected property names.
func (q Query) Select() []string {
	return append([]string(nil), q.selection...)
}

// PageSize returns the effective page size.
func (q Query) PageSize() int32 {
	if q.pageSize <= 0 {
		return DefaultPageSize
	}
	return q.pageSize
}

// WithPageSize returns a copy of q using page size n.
func (q Query) WithPageSize(n int32) Query {
	q.selection = q.Select()
	q.pageSize = n
	return q
}

// Page is a single page of query results. ContinuationToken is empty on the last page.
type Page[T any] struct {
	Items             []T
	ContinuationToken string
}

// HasMore reports whether another page can be requested.
func (p Page[T]) HasMore() bool { return p.ContinuationToken != "" }
