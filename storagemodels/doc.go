/*
Package storagemodels defines the data structures shared by the managers and the
storage providers.

Key Types:

Entity / EntityBase:
Table entities embed EntityBase, which carries the system properties:

	type Order struct {
	    storagemodels.EntityBase
	    Total float64 `json:"Total"`
	}

Query:
A filter, projection and page size. Build it from a raw OData filter or a typed predicate:

	q := storagemodels.Filter("PartitionKey eq 'orders'", storagemodels.WithPageSize(50))
	q := storagemodels.Where(query.Ge("Total", 100), storagemodels.WithSelect("Total"))

Page / ContinuationToken:
A page of results and the opaque token of the next one. An empty token means the query
has no more pages; sending an empty token restarts at the first page.

StreamResult:
Results from streaming operations with metadata:

	type StreamResult[T any] struct {
	    Item  T          // The typed entity
	    Error error      // Walk error, if any
	    Meta  StreamMeta // Metadata about this item
	}

Record:
The provider-neutral property bag an entity is encoded to. JSON is the canonical codec.
*/
package storagemodels
