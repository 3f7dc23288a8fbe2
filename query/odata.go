/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Render returns the OData filter string for p, as understood by Azure Table storage.
// The zero predicate renders to "".
func Render(p Predicate) string {
	var sb strings.Builder
	render(&sb, p)
	return sb.String()
}

func render(sb *strings.Builder, p Predicate) {
	switch {
	case p.op.IsComparison():
		sb.WriteString(p.property)
		sb.WriteByte(' ')
		sb.WriteString(p.op.String())
		sb.WriteByte(' ')
		sb.WriteString(Literal(p.value))
	case p.op == OpNot:
		sb.WriteString("not (")
		render(sb, p.operands[0])
		sb.WriteByte(')')
	case p.op == OpAnd, p.op == OpOr:
		for i, child := range p.operands {
			if i > 0 {
				sb.WriteByte(' ')
				sb.WriteString(p.op.String())
				sb.WriteByte(' ')
			}
			sb.WriteByte('(')
			render(sb, child)
			sb.WriteByte(')')
		}
	}
}

// Literal formats a single value as an OData literal.
func Literal(v any) string {
	switch tv := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(tv, "'", "''") + "'"
	case bool:
		return strconv.FormatBool(tv)
	case int32:
		return strconv.FormatInt(int64(tv), 10)
	case int64:
		if tv > math.MaxInt32 || tv < math.MinInt32 {
			return strconv.FormatInt(tv, 10) + "L"
		}
		return strconv.FormatInt(tv, 10)
	case float64:
		s := strconv.FormatFloat(tv, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case time.Time:
		return "datetime'" + tv.UTC().Format(time.RFC3339Nano) + "'"
	case uuid.UUID:
		return "guid'" + tv.String() + "'"
	}
	return Literal(fmt.Sprint(v))
}
