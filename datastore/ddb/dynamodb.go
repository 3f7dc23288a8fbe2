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
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/suparena/cloudstore/datastore"
	storeerrors "github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/storagemodels"
)

// Attribute names of the system properties. The ETag is stored under a plain name
// because expression paths treat '.' as a separator.
const (
	pkAttr        = storagemodels.PartitionKeyProperty
	rkAttr        = storagemodels.RowKeyProperty
	etagAttr      = "ETag"
	timestampAttr = storagemodels.TimestampProperty
)

// tableActiveTimeout bounds the wait for a newly created table.
const tableActiveTimeout = 2 * time.Minute

// API is the subset of *dynamodb.Client used by DynamodbDataStore. Used for testing purposes.
type API interface {
	sdk.DescribeTableAPIClient
	CreateTable(ctx context.Context, params *sdk.CreateTableInput, optFns ...func(*sdk.Options)) (*sdk.CreateTableOutput, error)
	GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	PutItem(ctx context.Context, params *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	Query(ctx context.Context, params *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
	Scan(ctx context.Context, params *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *sdk.TransactWriteItemsInput, optFns ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error)
}

var _ API = (*sdk.Client)(nil)

// DynamodbDataStore implements datastore.TableStore[T] on a DynamoDB table whose hash key
// is PartitionKey and whose range key is RowKey.
type DynamodbDataStore[T storagemodels.Entity] struct {
	client    API
	tableName string
}

var _ datastore.TableStore[storagemodels.EntityBase] = (*DynamodbDataStore[storagemodels.EntityBase])(nil)

// ClientConfig holds the settings of a DynamoDB client.
type ClientConfig struct {
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

// NewDynamoDBClient initializes a DynamoDB client. Static credentials are used when an
// access key is set, the default credential chain otherwise.
func NewDynamoDBClient(ctx context.Context, cfg ClientConfig) (*sdk.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewDynamodbDataStore constructs a new DynamodbDataStore for type T.
func NewDynamodbDataStore[T storagemodels.Entity](ctx context.Context, cfg ClientConfig, tableName string) (*DynamodbDataStore[T], error) {
	client, err := NewDynamoDBClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
	}
	return NewDynamodbDataStoreWithClient[T](client, tableName), nil
}

// NewDynamodbDataStoreWithClient wraps an existing client.
func NewDynamodbDataStoreWithClient[T storagemodels.Entity](client API, tableName string) *DynamodbDataStore[T] {
	return &DynamodbDataStore[T]{client: client, tableName: tableName}
}

// Name returns the table name.
func (d *DynamodbDataStore[T]) Name() string { return d.tableName }

// CreateIfNotExists creates the table with on-demand billing and waits until it is active.
func (d *DynamodbDataStore[T]) CreateIfNotExists(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &sdk.CreateTableInput{
		TableName: &d.tableName,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(pkAttr), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(rkAttr), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(pkAttr), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rkAttr), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("CreateTable failed: %w", err)
	}

	waiter := sdk.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &sdk.DescribeTableInput{TableName: &d.tableName}, tableActiveTimeout); err != nil {
		return fmt.Errorf("table %s did not become active: %w", d.tableName, err)
	}
	return nil
}

// Get retrieves a single item by partition key and row key.
func (d *DynamodbDataStore[T]) Get(ctx context.Context, pk, rk string) (T, error) {
	var zero T
	out, err := d.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      &d.tableName,
		Key:            itemKey(pk, rk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem error: %w", err)
	}
	if out.Item == nil {
		return zero, storeerrors.NewNotFoundError(d.tableName, storagemodels.EntityKey(pk, rk), nil)
	}
	return decodeItem[T](out.Item)
}

// Insert puts the entity on the condition that its key is free.
func (d *DynamodbDataStore[T]) Insert(ctx context.Context, entity T) (storagemodels.Outcome, error) {
	cond := expression.AttributeNotExists(expression.Name(pkAttr))
	out, err := d.put(ctx, entity, &cond)
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return storagemodels.Outcome{}, storeerrors.NewAlreadyExistsError(d.tableName, entityKeyOf(entity), err)
		}
		return storagemodels.Outcome{}, fmt.Errorf("PutItem failed: %w", err)
	}
	return out, nil
}

// Upsert puts the entity unconditionally.
func (d *DynamodbDataStore[T]) Upsert(ctx context.Context, entity T) (storagemodels.Outcome, error) {
	out, err := d.put(ctx, entity, nil)
	if err != nil {
		return storagemodels.Outcome{}, fmt.Errorf("PutItem failed: %w", err)
	}
	return out, nil
}

// Update replaces the item or merges the entity properties into it, on the condition
// that the item exists and carries etag.
func (d *DynamodbDataStore[T]) Update(ctx context.Context, entity T, etag string, mode datastore.UpdateMode) (storagemodels.Outcome, error) {
	cond := versionCondition(etag)

	var (
		out storagemodels.Outcome
		err error
	)
	if mode == datastore.UpdateModeReplace {
		out, err = d.put(ctx, entity, &cond)
	} else {
		out, err = d.merge(ctx, entity, cond)
	}
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			// The old item is returned only when it exists.
			if cfe.Item == nil {
				return storagemodels.Outcome{}, storeerrors.NewNotFoundError(d.tableName, entityKeyOf(entity), err)
			}
			return storagemodels.Outcome{}, storeerrors.NewConditionFailedError(mode.String(), fmt.Sprintf("If-Match %q", etag), err)
		}
		return storagemodels.Outcome{}, fmt.Errorf("UpdateWithCondition failed: %w", err)
	}
	return out, nil
}

// Delete removes an item. DeleteItem on a missing key succeeds.
func (d *DynamodbDataStore[T]) Delete(ctx context.Context, pk, rk string) error {
	_, err := d.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName: &d.tableName,
		Key:       itemKey(pk, rk),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item in DynamoDB: %w", err)
	}
	return nil
}

// InsertBatch writes all entities in one TransactWriteItems call, each conditional on
// its key being free.
func (d *DynamodbDataStore[T]) InsertBatch(ctx context.Context, entities []T) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(pkAttr))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	items := make([]types.TransactWriteItem, 0, len(entities))
	for _, e := range entities {
		av, _, err := encodeItem(e)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                &d.tableName,
				Item:                     av,
				ConditionExpression:      expr.Condition(),
				ExpressionAttributeNames: expr.Names(),
			},
		})
	}

	_, err = d.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for i, reason := range tce.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" && i < len(entities) {
					return storeerrors.NewAlreadyExistsError(d.tableName, entityKeyOf(entities[i]), err)
				}
			}
		}
		return fmt.Errorf("TransactWriteItems failed: %w", err)
	}
	return nil
}

// UpdateBatch merges all entities in one TransactWriteItems call, each conditional on the
// item existing under the entity's ETag.
func (d *DynamodbDataStore[T]) UpdateBatch(ctx context.Context, entities []T) error {
	items := make([]types.TransactWriteItem, 0, len(entities))
	for _, e := range entities {
		rec, err := storagemodels.ToRecord(e)
		if err != nil {
			return err
		}
		rec[storagemodels.ETagProperty] = newETag()
		rec[storagemodels.TimestampProperty] = nowTimestamp()

		update, err := buildUpdateExpression(rec)
		if err != nil {
			return fmt.Errorf("failed to build update expression: %w", err)
		}
		expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(versionCondition(e.GetETag())).Build()
		if err != nil {
			return fmt.Errorf("failed to build update expression: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                           &d.tableName,
				Key:                                 itemKey(e.GetPartitionKey(), e.GetRowKey()),
				UpdateExpression:                    expr.Update(),
				ConditionExpression:                 expr.Condition(),
				ExpressionAttributeNames:            expr.Names(),
				ExpressionAttributeValues:           expr.Values(),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		})
	}

	_, err := d.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for i, reason := range tce.CancellationReasons {
				if aws.ToString(reason.Code) != "ConditionalCheckFailed" || i >= len(entities) {
					continue
				}
				if reason.Item == nil {
					return storeerrors.NewNotFoundError(d.tableName, entityKeyOf(entities[i]), err)
				}
				return storeerrors.NewConditionFailedError(datastore.UpdateModeMerge.String(), fmt.Sprintf("If-Match %q", entities[i].GetETag()), err)
			}
		}
		return fmt.Errorf("TransactWriteItems failed: %w", err)
	}
	return nil
}

func (d *DynamodbDataStore[T]) put(ctx context.Context, entity T, cond *expression.ConditionBuilder) (storagemodels.Outcome, error) {
	av, etag, err := encodeItem(entity)
	if err != nil {
		return storagemodels.Outcome{}, err
	}

	input := &sdk.PutItemInput{
		TableName: &d.tableName,
		Item:      av,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return storagemodels.Outcome{}, fmt.Errorf("failed to build condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
		input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}

	if _, err := d.client.PutItem(ctx, input); err != nil {
		return storagemodels.Outcome{}, err
	}
	return storagemodels.Outcome{ETag: etag}, nil
}

func (d *DynamodbDataStore[T]) merge(ctx context.Context, entity T, cond expression.ConditionBuilder) (storagemodels.Outcome, error) {
	rec, err := storagemodels.ToRecord(entity)
	if err != nil {
		return storagemodels.Outcome{}, err
	}
	etag := newETag()
	rec[storagemodels.ETagProperty] = etag
	rec[storagemodels.TimestampProperty] = nowTimestamp()

	update, err := buildUpdateExpression(rec)
	if err != nil {
		return storagemodels.Outcome{}, fmt.Errorf("failed to build update expression: %w", err)
	}
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return storagemodels.Outcome{}, fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = d.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                           &d.tableName,
		Key:                                 itemKey(entity.GetPartitionKey(), entity.GetRowKey()),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return storagemodels.Outcome{}, err
	}
	return storagemodels.Outcome{ETag: etag}, nil
}

// buildUpdateExpression turns a record into "SET #a = :a, ..." over every non-key
// property. The ETag property is renamed to its attribute.
func buildUpdateExpression(rec storagemodels.Record) (expression.UpdateBuilder, error) {
	var update expression.UpdateBuilder
	n := 0
	for field, val := range rec {
		switch field {
		case pkAttr, rkAttr:
			continue
		case storagemodels.ETagProperty:
			field = etagAttr
		}
		update = update.Set(expression.Name(field), expression.Value(val))
		n++
	}
	if n == 0 {
		return update, errors.New("no updates provided")
	}
	return update, nil
}

// versionCondition requires the item to exist and, unless etag is the wildcard, to carry etag.
func versionCondition(etag string) expression.ConditionBuilder {
	exists := expression.AttributeExists(expression.Name(pkAttr))
	if etag == "" || etag == datastore.WildcardETag {
		return exists
	}
	return exists.And(expression.Name(etagAttr).Equal(expression.Value(etag)))
}

// encodeItem marshals an entity with a fresh ETag and timestamp.
func encodeItem(entity storagemodels.Entity) (map[string]types.AttributeValue, string, error) {
	rec, err := storagemodels.ToRecord(entity)
	if err != nil {
		return nil, "", err
	}
	etag := newETag()
	delete(rec, storagemodels.ETagProperty)
	rec[etagAttr] = etag
	rec[timestampAttr] = nowTimestamp()

	av, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal entity: %w", err)
	}
	return av, etag, nil
}

// decodeItem unmarshals an item into T, mapping the ETag attribute back.
func decodeItem[T any](item map[string]types.AttributeValue) (T, error) {
	var rec map[string]any
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	if etag, ok := rec[etagAttr]; ok {
		delete(rec, etagAttr)
		rec[storagemodels.ETagProperty] = etag
	}
	return storagemodels.FromRecord[T](rec)
}

func itemKey(pk, rk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkAttr: &types.AttributeValueMemberS{Value: pk},
		rkAttr: &types.AttributeValueMemberS{Value: rk},
	}
}

func entityKeyOf(e storagemodels.Entity) string {
	return storagemodels.EntityKey(e.GetPartitionKey(), e.GetRowKey())
}

func newETag() string {
	return `W/"` + uuid.NewString() + `"`
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
