/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"encoding/base64"
	"encoding/json"

	storeerrors "github.com/suparena/cloudstore/errors"
)

// InvalidContinuationToken is the message of the argument error returned for tokens that
// do not decode.
const InvalidContinuationToken = "The continuation token is not valid!"

// ContinuationToken is the provider resume position of a paged query. The zero value
// means "start from the beginning" when sent and "no more pages" when received.
type ContinuationToken struct {
	NextPartitionKey string `json:"pk,omitempty"`
	NextRowKey       string `json:"rk,omitempty"`
}

// IsZero reports whether the token carries no position.
func (t ContinuationToken) IsZero() bool {
	return t.NextPartitionKey == "" && t.NextRowKey == ""
}

// Encode returns the opaque string form of the token, or "" for the zero token.
func (t ContinuationToken) Encode() string {
	if t.IsZero() {
		return ""
	}
	data, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeContinuationToken parses a token produced by Encode. The empty string decodes to
// the zero token.
func DecodeContinuationToken(s string) (ContinuationToken, error) {
	var t ContinuationToken
	if s == "" {
		return t, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return t, storeerrors.NewArgumentError("continuationToken", InvalidContinuationToken)
	}
	if err := json.Unmarshal(data, &t); err != nil || t.IsZero() {
		return ContinuationToken{}, storeerrors.NewArgumentError("continuationToken", InvalidContinuationToken)
	}
	return t, nil
}
