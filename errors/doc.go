/*
Package errors provides semantic error types for the cloudstore library.

The package defines common error scenarios with specific types that can be
checked using the standard errors.Is() function or the provided helper functions.

Common Errors:

	var (
	    ErrNotFound             = errors.New("entity not found")
	    ErrAlreadyExists        = errors.New("entity already exists")
	    ErrInvalidInput         = errors.New("invalid input")
	    ErrInvalidConfiguration = errors.New("invalid configuration")
	    ErrConditionFailed      = errors.New("condition check failed")
	    ErrOperationFailed      = errors.New("operation failed")
	)

Argument errors are raised before any network call and name the offending parameter:

	_, err := factory.BlobManager("", "account", "key")
	var argErr *errors.ArgumentError
	if stderrors.As(err, &argErr) {
	    fmt.Println(argErr.Param) // "uri"
	}

Provider failures are classified (not found, already exists, condition failed) but the
typed errors keep the provider error as their cause, so SDK specific types such as
*azcore.ResponseError remain reachable with errors.As.
*/
package errors
