/*
Package datastore defines the provider contracts the managers are built on.

The main interface is TableStore[T], a table of entities addressed by partition key and
row key:

	type TableStore[T storagemodels.Entity] interface {
	    CreateIfNotExists(ctx context.Context) error
	    Get(ctx context.Context, pk, rk string) (T, error)
	    QueryPage(ctx context.Context, q storagemodels.Query, token storagemodels.ContinuationToken) ([]T, storagemodels.ContinuationToken, error)
	    Insert(ctx context.Context, entity T) (storagemodels.Outcome, error)
	    ...
	}

BlobStore and QueueStore cover blob containers and message queues.

Implementations:
  - azure: Azure Table, Blob and Queue storage
  - ddb: DynamoDB table storage
  - minio: S3 compatible blob storage
  - mock: in-memory implementations for testing

Providers do not retry; the SDK clients own retry policies.
*/
package datastore
