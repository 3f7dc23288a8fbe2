/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"

	storeerrors "github.com/suparena/cloudstore/errors"
)

// Names of the system properties every table entity carries.
const (
	PartitionKeyProperty = "PartitionKey"
	RowKeyProperty       = "RowKey"
	ETagProperty         = "odata.etag"
	TimestampProperty    = "Timestamp"
)

// Key validation messages.
const (
	RowKeyRequired       = "RowKey is required!"
	PartitionKeyRequired = "PartitionKey is required!"
)

// Entity is the capability every table entity exposes. Embed EntityBase to satisfy it.
type Entity interface {
	GetPartitionKey() string
	GetRowKey() string
	GetETag() string
}

// EntityBase carries the system properties of a table entity.
type EntityBase struct {
	PartitionKey string           `json:"PartitionKey"`
	RowKey       string           `json:"RowKey"`
	ETag         string           `json:"odata.etag,omitempty"`
	Timestamp    *strfmt.DateTime `json:"Timestamp,omitempty"`
}

func (e EntityBase) GetPartitionKey() string { return e.PartitionKey }
func (e EntityBase) GetRowKey() string       { return e.RowKey }
func (e EntityBase) GetETag() string         { return e.ETag }

// ValidateKeys fails with an argument error when the row key or the partition key of e is
// empty or whitespace. The row key is checked first.
func ValidateKeys(e Entity) error {
	if strings.TrimSpace(e.GetRowKey()) == "" {
		return storeerrors.NewArgumentError("entity", RowKeyRequired)
	}
	if strings.TrimSpace(e.GetPartitionKey()) == "" {
		return storeerrors.NewArgumentError("entity", PartitionKeyRequired)
	}
	return nil
}

// EntityKey formats the composite key used in error messages and logs.
func EntityKey(pk, rk string) string {
	return pk + "/" + rk
}

// Record is the provider-neutral property bag an entity is encoded to.
type Record map[string]any

// ToRecord encodes an entity through its JSON representation.
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to convert entity to record: %w", err)
	}
	return rec, nil
}

// FromRecord decodes a record into a T.
func FromRecord[T any](rec Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return out, nil
}

// Project returns a copy of rec holding only the named properties plus the system
// properties. An empty selection returns rec unchanged.
func (r Record) Project(props []string) Record {
	if len(props) == 0 {
		return r
	}
	out := make(Record, len(props)+4)
	for _, k := range []string{PartitionKeyProperty, RowKeyProperty, ETagProperty, TimestampProperty} {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	for _, k := range props {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Record doubles as a schemaless entity.
var _ Entity = Record(nil)

func (r Record) GetPartitionKey() string { return r.str(PartitionKeyProperty) }
func (r Record) GetRowKey() string       { return r.str(RowKeyProperty) }
func (r Record) GetETag() string         { return r.str(ETagProperty) }

func (r Record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Outcome is the result of a table write.
type Outcome struct {
	// ETag assigned by the store, empty when the provider does not report one.
	ETag string
}
