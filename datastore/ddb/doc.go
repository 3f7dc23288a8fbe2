/*
Package ddb provides a DynamoDB implementation of the TableStore interface.

The table uses PartitionKey as hash key and RowKey as range key. Entities are stored as
their JSON properties plus an ETag attribute that guards updates:

	store, err := ddb.NewDynamodbDataStore[Order](ctx, ddb.ClientConfig{
	    Region:   "eu-west-1",
	    Endpoint: "http://localhost:8000", // DynamoDB Local
	}, "orders")

Queries:
A predicate with a top-level PartitionKey equality runs as a Query on that partition;
any other predicate runs as a Scan. The remaining terms become the filter expression:

	q := storagemodels.Where(query.And(
	    query.PartitionKeyEq("EU"),
	    query.Ge("Total", 100),
	))

Optimistic locking:
Update and Replace are conditional on the stored ETag. A failed condition on an existing
item is a ConditionFailedError, on a missing item a NotFoundError.
*/
package ddb
