/*
Package query provides a provider-neutral filter expression for table queries.

A Predicate is built from comparisons and combinators:

	pred := query.And(
	    query.PartitionKeyEq("orders"),
	    query.Ge("Total", 100),
	)

Providers translate it to their native syntax. Azure Table storage receives the OData
rendering from Render:

	(PartitionKey eq 'orders') and (Total ge 100)

Parse turns an OData filter string back into a Predicate and Match evaluates one against a
decoded record, which lets the in-memory provider honour raw filters.
*/
package query
