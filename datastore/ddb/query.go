/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/suparena/cloudstore/query"
	"github.com/suparena/cloudstore/storagemodels"
)

// QueryPage fetches one page of q. A predicate pinning the partition key runs as a
// Query on that partition, anything else as a Scan. DynamoDB applies Limit before the
// filter, so requests are repeated from the last evaluated key until the page holds
// PageSize matching items or the table is exhausted.
func (d *DynamodbDataStore[T]) QueryPage(ctx context.Context, q storagemodels.Query, token storagemodels.ContinuationToken) ([]T, storagemodels.ContinuationToken, error) {
	var next storagemodels.ContinuationToken

	pred, err := q.Resolve()
	if err != nil {
		return nil, next, fmt.Errorf("invalid filter %q: %w", q.RawFilter(), err)
	}
	pk, rest, keyed := splitPartitionKey(pred)

	builder := expression.NewBuilder()
	hasExpr := false
	if keyed {
		builder = builder.WithKeyCondition(expression.Key(pkAttr).Equal(expression.Value(pk)))
		hasExpr = true
	}
	if !rest.IsZero() {
		cond, err := translate(rest)
		if err != nil {
			return nil, next, err
		}
		builder = builder.WithFilter(cond)
		hasExpr = true
	}
	if sel := q.Select(); len(sel) > 0 {
		builder = builder.WithProjection(projection(sel))
		hasExpr = true
	}

	var expr expression.Expression
	if hasExpr {
		expr, err = builder.Build()
		if err != nil {
			return nil, next, fmt.Errorf("failed to build expression: %w", err)
		}
	}

	var startKey map[string]types.AttributeValue
	if !token.IsZero() {
		startKey = itemKey(token.NextPartitionKey, token.NextRowKey)
	}

	pageSize := q.PageSize()
	results := make([]T, 0, pageSize)
	for {
		items, lastKey, err := d.fetch(ctx, keyed, expr, pageSize-int32(len(results)), startKey)
		if err != nil {
			return nil, next, err
		}
		for _, item := range items {
			v, err := decodeItem[T](item)
			if err != nil {
				return nil, next, err
			}
			results = append(results, v)
		}

		if len(lastKey) == 0 {
			return results, next, nil
		}
		if int32(len(results)) >= pageSize {
			if err := attributevalue.Unmarshal(lastKey[pkAttr], &next.NextPartitionKey); err != nil {
				return nil, storagemodels.ContinuationToken{}, fmt.Errorf("failed to read LastEvaluatedKey: %w", err)
			}
			if err := attributevalue.Unmarshal(lastKey[rkAttr], &next.NextRowKey); err != nil {
				return nil, storagemodels.ContinuationToken{}, fmt.Errorf("failed to read LastEvaluatedKey: %w", err)
			}
			return results, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		startKey = lastKey
	}
}

// fetch issues one Query or Scan request evaluating at most limit items.
func (d *DynamodbDataStore[T]) fetch(ctx context.Context, keyed bool, expr expression.Expression, limit int32, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	if keyed {
		out, err := d.client.Query(ctx, &sdk.QueryInput{
			TableName:                 &d.tableName,
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			Limit:                     aws.Int32(limit),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("query error: %w", err)
		}
		return out.Items, out.LastEvaluatedKey, nil
	}

	out, err := d.client.Scan(ctx, &sdk.ScanInput{
		TableName:                 &d.tableName,
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(limit),
		ExclusiveStartKey:         startKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan error: %w", err)
	}
	return out.Items, out.LastEvaluatedKey, nil
}

// splitPartitionKey extracts a top-level "PartitionKey eq <string>" term from pred and
// returns the remaining predicate.
func splitPartitionKey(pred query.Predicate) (string, query.Predicate, bool) {
	isPK := func(p query.Predicate) (string, bool) {
		if p.Op() != query.OpEq || p.Property() != pkAttr {
			return "", false
		}
		s, ok := p.Value().(string)
		return s, ok
	}

	if pk, ok := isPK(pred); ok {
		return pk, query.Predicate{}, true
	}
	if pred.Op() != query.OpAnd {
		return "", pred, false
	}
	operands := pred.Operands()
	for i, op := range operands {
		if pk, ok := isPK(op); ok {
			rest := append(operands[:i:i], operands[i+1:]...)
			return pk, query.And(rest...), true
		}
	}
	return "", pred, false
}

// translate converts a predicate into a filter condition.
func translate(p query.Predicate) (expression.ConditionBuilder, error) {
	var empty expression.ConditionBuilder

	switch p.Op() {
	case query.OpAnd, query.OpOr:
		ops := p.Operands()
		conds := make([]expression.ConditionBuilder, 0, len(ops))
		for _, op := range ops {
			c, err := translate(op)
			if err != nil {
				return empty, err
			}
			conds = append(conds, c)
		}
		if len(conds) < 2 {
			return conds[0], nil
		}
		if p.Op() == query.OpAnd {
			return expression.And(conds[0], conds[1], conds[2:]...), nil
		}
		return expression.Or(conds[0], conds[1], conds[2:]...), nil
	case query.OpNot:
		c, err := translate(p.Operands()[0])
		if err != nil {
			return empty, err
		}
		return expression.Not(c), nil
	}

	name := expression.Name(attributeName(p.Property()))
	value := expression.Value(attributeValue(p.Value()))
	switch p.Op() {
	case query.OpEq:
		return name.Equal(value), nil
	case query.OpNe:
		return name.NotEqual(value), nil
	case query.OpGt:
		return name.GreaterThan(value), nil
	case query.OpGe:
		return name.GreaterThanEqual(value), nil
	case query.OpLt:
		return name.LessThan(value), nil
	case query.OpLe:
		return name.LessThanEqual(value), nil
	}
	return empty, errors.New("empty predicate cannot be translated")
}

func projection(props []string) expression.ProjectionBuilder {
	proj := expression.NamesList(expression.Name(pkAttr), expression.Name(rkAttr),
		expression.Name(etagAttr), expression.Name(timestampAttr))
	for _, p := range props {
		proj = proj.AddNames(expression.Name(attributeName(p)))
	}
	return proj
}

func attributeName(prop string) string {
	if prop == storagemodels.ETagProperty {
		return etagAttr
	}
	return prop
}

// attributeValue maps literal types to the representation items are stored with.
func attributeValue(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return tv.String()
	}
	return v
}
