/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Match evaluates p against a record decoded from an entity. Numbers compare as
// float64, datetime literals match RFC3339 strings and guid literals match their string
// form. A comparison on a property the record does not carry is false.
func (p Predicate) Match(record map[string]any) bool {
	switch p.op {
	case OpNone:
		return true
	case OpAnd:
		for _, child := range p.operands {
			if !child.Match(record) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range p.operands {
			if child.Match(record) {
				return true
			}
		}
		return false
	case OpNot:
		return !p.operands[0].Match(record)
	}

	actual, ok := record[p.property]
	if !ok {
		return false
	}
	cmp, ok := compareValues(actual, p.value)
	if !ok {
		// Values of different kinds are only ever unequal.
		return p.op == OpNe
	}
	switch p.op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	}
	return false
}

// compareValues orders actual against literal. The second result is false when the two
// cannot be compared.
func compareValues(actual, literal any) (int, bool) {
	if literal == nil || actual == nil {
		if literal == nil && actual == nil {
			return 0, true
		}
		return 0, false
	}

	switch lv := literal.(type) {
	case string:
		av, ok := actual.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, lv), true
	case bool:
		av, ok := actual.(bool)
		if !ok {
			return 0, false
		}
		if av == lv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	case int32, int64, float64:
		av, ok := toFloat(actual)
		if !ok {
			return 0, false
		}
		lf, _ := toFloat(lv)
		return compareFloat(av, lf), true
	case time.Time:
		at, ok := toTime(actual)
		if !ok {
			return 0, false
		}
		return at.Compare(lv), true
	case uuid.UUID:
		au, ok := toUUID(actual)
		if !ok {
			return 0, false
		}
		return strings.Compare(au.String(), lv.String()), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case json.Number:
		f, err := tv.Float64()
		return f, err == nil
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		return t, err == nil
	}
	return time.Time{}, false
}

func toUUID(v any) (uuid.UUID, bool) {
	switch tv := v.(type) {
	case uuid.UUID:
		return tv, true
	case string:
		id, err := uuid.Parse(tv)
		return id, err == nil
	}
	return uuid.UUID{}, false
}
