/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package azure

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// Service error codes handled by the providers.
const (
	codeTableAlreadyExists          = "TableAlreadyExists"
	codeEntityAlreadyExists         = "EntityAlreadyExists"
	codeResourceNotFound            = "ResourceNotFound"
	codeUpdateConditionNotSatisfied = "UpdateConditionNotSatisfied"
)

func responseError(err error) (*azcore.ResponseError, bool) {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr, true
	}
	return nil, false
}

func hasStatus(err error, status int) bool {
	respErr, ok := responseError(err)
	return ok && respErr.StatusCode == status
}

func hasCode(err error, code string) bool {
	respErr, ok := responseError(err)
	return ok && strings.EqualFold(respErr.ErrorCode, code)
}

func isNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func isConflict(err error, code string) bool {
	return hasStatus(err, http.StatusConflict) && (code == "" || hasCode(err, code))
}

func isPreconditionFailed(err error) bool {
	return hasStatus(err, http.StatusPreconditionFailed) || hasCode(err, codeUpdateConditionNotSatisfied)
}
