/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Op identifies the kind of a Predicate node.
type Op int

const (
	OpNone Op = iota
	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
	OpNot
)

var opKeywords = map[Op]string{
	OpEq:  "eq",
	OpNe:  "ne",
	OpGt:  "gt",
	OpGe:  "ge",
	OpLt:  "lt",
	OpLe:  "le",
	OpAnd: "and",
	OpOr:  "or",
	OpNot: "not",
}

// String returns the OData keyword of the operator.
func (o Op) String() string {
	if kw, ok := opKeywords[o]; ok {
		return kw
	}
	return "none"
}

// IsComparison reports whether o compares a property with a literal.
func (o Op) IsComparison() bool {
	return o >= OpEq && o <= OpLe
}

// Predicate is an immutable filter expression over entity properties. It is the typed
// counterpart of a raw filter string: build it with Eq, Gt, And, ... and let each
// provider translate it to its native filter syntax.
//
// The zero Predicate matches everything and renders to an empty filter.
type Predicate struct {
	op       Op
	property string
	value    any
	operands []Predicate
}

// Op returns the operator of the predicate node.
func (p Predicate) Op() Op { return p.op }

// Property returns the compared property name of a comparison node.
func (p Predicate) Property() string { return p.property }

// Value returns the normalised literal of a comparison node. It is one of string, bool,
// int32, int64, float64, time.Time or uuid.UUID.
func (p Predicate) Value() any { return p.value }

// Operands returns a copy of the child predicates of an and/or/not node.
func (p Predicate) Operands() []Predicate {
	out := make([]Predicate, len(p.operands))
	copy(out, p.operands)
	return out
}

// IsZero reports whether p is the empty predicate.
func (p Predicate) IsZero() bool { return p.op == OpNone }

func compare(op Op, property string, value any) Predicate {
	return Predicate{op: op, property: property, value: normalize(value)}
}

// Eq matches entities whose property equals value.
func Eq(property string, value any) Predicate { return compare(OpEq, property, value) }

// Ne matches entities whose property differs from value.
func Ne(property string, value any) Predicate { return compare(OpNe, property, value) }

// Gt matches entities whose property is greater than value.
func Gt(property string, value any) Predicate { return compare(OpGt, property, value) }

// Ge matches entities whose property is greater than or equal to value.
func Ge(property string, value any) Predicate { return compare(OpGe, property, value) }

// Lt matches entities whose property is less than value.
func Lt(property string, value any) Predicate { return compare(OpLt, property, value) }

// Le matches entities whose property is less than or equal to value.
func Le(property string, value any) Predicate { return compare(OpLe, property, value) }

// PartitionKeyEq is shorthand for Eq("PartitionKey", pk).
func PartitionKeyEq(pk string) Predicate { return Eq("PartitionKey", pk) }

// RowKeyEq is shorthand for Eq("RowKey", rk).
func RowKeyEq(rk string) Predicate { return Eq("RowKey", rk) }

// And combines predicates with logical conjunction. Zero predicates are skipped; a
// single remaining predicate is returned as is.
func And(preds ...Predicate) Predicate { return combine(OpAnd, preds) }

// Or combines predicates with logical disjunction. Zero predicates are skipped.
func Or(preds ...Predicate) Predicate { return combine(OpOr, preds) }

// Not negates p.
func Not(p Predicate) Predicate {
	if p.IsZero() {
		return p
	}
	return Predicate{op: OpNot, operands: []Predicate{p}}
}

// And returns And(p, other).
func (p Predicate) And(other Predicate) Predicate { return And(p, other) }

// Or returns Or(p, other).
func (p Predicate) Or(other Predicate) Predicate { return Or(p, other) }

func combine(op Op, preds []Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if !p.IsZero() {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return Predicate{}
	case 1:
		return kept[0]
	}
	return Predicate{op: op, operands: kept}
}

// String renders the predicate as an OData filter.
func (p Predicate) String() string { return Render(p) }

// normalize folds the accepted Go literal types onto the small set the renderers and
// the matcher understand.
func normalize(v any) any {
	switch tv := v.(type) {
	case string, bool, int32, int64, float64, time.Time, uuid.UUID:
		return tv
	case int:
		return int64(tv)
	case int8:
		return int32(tv)
	case int16:
		return int32(tv)
	case uint8:
		return int32(tv)
	case uint16:
		return int32(tv)
	case uint32:
		return int64(tv)
	case float32:
		return float64(tv)
	case strfmt.DateTime:
		return time.Time(tv)
	case *strfmt.DateTime:
		if tv == nil {
			return nil
		}
		return time.Time(*tv)
	case *string:
		if tv == nil {
			return nil
		}
		return *tv
	case fmt.Stringer:
		return tv.String()
	}
	return v
}
