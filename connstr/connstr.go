/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package connstr parses storage account connection strings of the form
// "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=key;EndpointSuffix=core.windows.net".
package connstr

import (
	"sort"
	"strings"

	storeerrors "github.com/suparena/cloudstore/errors"
)

// InvalidConnectionString is the message reported for strings that fail the shape check.
const InvalidConnectionString = "An invalid connectionstring was provided!"

// Well-known connection string settings.
const (
	KeyProtocol              = "DefaultEndpointsProtocol"
	KeyAccountName           = "AccountName"
	KeyAccountKey            = "AccountKey"
	KeyEndpointSuffix        = "EndpointSuffix"
	KeyBlobEndpoint          = "BlobEndpoint"
	KeyTableEndpoint         = "TableEndpoint"
	KeyQueueEndpoint         = "QueueEndpoint"
	KeySharedAccessSignature = "SharedAccessSignature"
	KeyUseDevelopmentStorage = "UseDevelopmentStorage"
)

// ConnectionString is a parsed connection string. Setting names are matched
// case-insensitively.
type ConnectionString struct {
	settings map[string]string
	names    map[string]string
}

// Parse splits s into its settings and checks that it describes an account the SDK
// clients can reach: development storage, an account name with a key, or an explicit
// endpoint with a key or shared access signature.
func Parse(s string) (ConnectionString, error) {
	cs := ConnectionString{settings: map[string]string{}, names: map[string]string{}}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return ConnectionString{}, errInvalid()
		}
		lower := strings.ToLower(name)
		cs.settings[lower] = strings.TrimSpace(value)
		cs.names[lower] = name
	}

	if strings.EqualFold(cs.Get(KeyUseDevelopmentStorage), "true") {
		return cs, nil
	}
	hasCredential := cs.Get(KeyAccountKey) != "" || cs.Get(KeySharedAccessSignature) != ""
	hasAccount := cs.Get(KeyAccountName) != "" ||
		cs.Get(KeyBlobEndpoint) != "" || cs.Get(KeyTableEndpoint) != "" || cs.Get(KeyQueueEndpoint) != ""
	if !hasCredential || !hasAccount {
		return ConnectionString{}, errInvalid()
	}
	return cs, nil
}

// Validate reports whether s passes the shape check of Parse.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

func errInvalid() error {
	return storeerrors.NewConfigurationError("connectionString", InvalidConnectionString, nil)
}

// Get returns the value of a setting, or "" when it is absent.
func (c ConnectionString) Get(key string) string {
	return c.settings[strings.ToLower(key)]
}

// AccountName returns the AccountName setting.
func (c ConnectionString) AccountName() string { return c.Get(KeyAccountName) }

// AccountKey returns the AccountKey setting.
func (c ConnectionString) AccountKey() string { return c.Get(KeyAccountKey) }

// IsDevelopmentStorage reports whether the string targets the local storage emulator.
func (c ConnectionString) IsDevelopmentStorage() bool {
	return strings.EqualFold(c.Get(KeyUseDevelopmentStorage), "true")
}

// Redacted returns the connection string with its secrets masked, for logging.
func (c ConnectionString) Redacted() string {
	parts := make([]string, 0, len(c.settings))
	for lower, value := range c.settings {
		if lower == strings.ToLower(KeyAccountKey) || lower == strings.ToLower(KeySharedAccessSignature) {
			value = "***"
		}
		parts = append(parts, c.names[lower]+"="+value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
