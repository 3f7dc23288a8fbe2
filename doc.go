/*
Package cloudstore puts three narrow managers in front of cloud storage: blobs, table
entities and message queues. A Factory validates the constructor arguments before any
connection is made.

Managers:
  - BlobManager stores, reads and deletes files in blob containers
  - TableManager[T] reads and writes entities of type T with paged queries
  - QueueManager connects to a named queue and creates it on first use

Azure Storage is the default provider. Table managers can also run on DynamoDB or the
in-memory store, and blob managers on MinIO, through NewTableManagerWithStore and
WithBlobProvider.

Basic Usage:

	f := cloudstore.NewFactory(cloudstore.WithLogger(logger))

	orders, err := cloudstore.NewTableManager[Order](ctx, f, connectionString, "orders")
	if err != nil {
	    return err
	}

	// Every order of a customer, fetched page by page
	all, err := orders.Query(ctx, storagemodels.Where(query.PartitionKeyEq("C042")))

	// One page at a time, resuming with the returned token
	q := storagemodels.Filter("Total gt 100.0", storagemodels.WithPageSize(50))
	page, err := orders.QueryPage(ctx, q, "")
	next, err := orders.QueryPage(ctx, q, page.ContinuationToken)

	// First match or nothing
	order, found, err := orders.GetSingleWhere(ctx, query.Eq("Status", "open"))

Errors:
Argument and configuration errors are returned before any provider call. Table and queue
provider errors are returned as they are, blob failures are wrapped in an OperationError
that unwraps to the provider error. Use the helpers in the errors package to classify them.
*/
package cloudstore
