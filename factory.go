/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package cloudstore

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/suparena/cloudstore/connstr"
	"github.com/suparena/cloudstore/datastore"
	"github.com/suparena/cloudstore/datastore/azure"
	"github.com/suparena/cloudstore/errors"
	"github.com/suparena/cloudstore/metrics"
	"github.com/suparena/cloudstore/storagemodels"
)

// MaxTableNameLength is the longest table name the factory accepts.
const MaxTableNameLength = 63

// Validation messages.
const (
	BlobURIRequired              = "URI for BLOB-storage cannot be empty!"
	BlobAccountNameRequired      = "Accountname for BLOB-storage cannot be empty!"
	BlobAccessKeyRequired        = "Accesskey for BLOB-storage cannot be empty!"
	BlobConnectionStringRequired = "A valid connectionstring for the BLOB-storage is required!"
	BlobURIInvalid               = "URI for BLOB-storage must be an absolute URL!"
	BlobStoreRequired            = "A blob store is required!"
	TableConnectionRequired      = "Connectionstring for tablestorage cannot be empty!"
	TableNameRequired            = "Tablename for tablestorage cannot be empty!"
	TableNameTooLong             = "The max length for the table name is %d characters!"
	TableNameInvalid             = "The table name provided is not valid! Only alphanumeric characters are allowed!"
	QueueNameRequired            = "Name for the queue is required!"
	QueueConnectionRequired      = "Connectionstring for the queue is required!"
)

// Parameter names reported by argument errors.
const (
	ParamURI              = "uri"
	ParamAccountName      = "accountName"
	ParamAccessKey        = "accessKey"
	ParamConnectionString = "connectionString"
	ParamTableName        = "tableName"
	ParamQueueName        = "queueName"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

// BlobSettings carries the arguments a blob manager was requested with. Either the
// account triple or ConnectionString is set.
type BlobSettings struct {
	URI              string
	AccountName      string
	AccessKey        string
	ConnectionString string
}

// BlobProvider opens the blob store behind a blob manager.
type BlobProvider func(settings BlobSettings) (datastore.BlobStore, error)

// QueueProvider opens the queue store behind a queue manager.
type QueueProvider func(connectionString string) (datastore.QueueStore, error)

// Factory validates manager arguments and builds blob, table and queue managers. It holds
// no connection state and is safe for concurrent use.
type Factory struct {
	logger        zerolog.Logger
	metrics       *metrics.Collector
	blobProvider  BlobProvider
	queueProvider QueueProvider
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger passed to every manager. The default discards output.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Factory) { f.logger = logger }
}

// WithMetrics records every manager operation on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Factory) { f.metrics = c }
}

// WithBlobProvider replaces the Azure blob provider.
func WithBlobProvider(p BlobProvider) Option {
	return func(f *Factory) { f.blobProvider = p }
}

// WithQueueProvider replaces the Azure queue provider.
func WithQueueProvider(p QueueProvider) Option {
	return func(f *Factory) { f.queueProvider = p }
}

// NewFactory creates a Factory backed by Azure Storage unless overridden by opts.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		logger:        zerolog.Nop(),
		blobProvider:  azureBlobProvider,
		queueProvider: azureQueueProvider,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func azureBlobProvider(s BlobSettings) (datastore.BlobStore, error) {
	var (
		store *azure.BlobStore
		err   error
	)
	if s.ConnectionString != "" {
		store, err = azure.NewBlobStoreFromConnectionString(s.ConnectionString)
	} else {
		store, err = azure.NewBlobStore(s.URI, s.AccountName, s.AccessKey)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func azureQueueProvider(cs string) (datastore.QueueStore, error) {
	store, err := azure.NewQueueStore(cs)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// BlobManager builds a blob manager for the storage account at uri.
func (f *Factory) BlobManager(uri, accountName, accessKey string) (*BlobManager, error) {
	if err := ValidateBlobAccount(uri, accountName, accessKey); err != nil {
		return nil, err
	}
	return f.newBlobManager(BlobSettings{URI: uri, AccountName: accountName, AccessKey: accessKey})
}

// BlobManagerFromConnectionString builds a blob manager from a storage connection string.
func (f *Factory) BlobManagerFromConnectionString(connectionString string) (*BlobManager, error) {
	if err := ValidateBlobConnectionString(connectionString); err != nil {
		return nil, err
	}
	return f.newBlobManager(BlobSettings{ConnectionString: connectionString})
}

// BlobManagerWithStore builds a blob manager over an already opened store, such as a
// MinIO or in-memory store. No Azure account settings are involved.
func (f *Factory) BlobManagerWithStore(store datastore.BlobStore) (*BlobManager, error) {
	if store == nil {
		return nil, errors.NewArgumentError("store", BlobStoreRequired)
	}
	return newBlobManager(store, f.logger, f.metrics), nil
}

func (f *Factory) newBlobManager(s BlobSettings) (*BlobManager, error) {
	store, err := f.blobProvider(s)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return newBlobManager(store, f.logger, f.metrics), nil
}

// QueueManager builds a manager for the named queue. No network call is made until
// Connect.
func (f *Factory) QueueManager(connectionString, queueName string) (*QueueManager, error) {
	if err := ValidateQueueSettings(connectionString, queueName); err != nil {
		return nil, err
	}
	store, err := f.queueProvider(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}
	return newQueueManager(store, queueName, f.logger, f.metrics), nil
}

// NewTableManager validates the settings, connects to the Azure table and creates it if
// it does not exist. The returned manager is ready for use.
func NewTableManager[T storagemodels.Entity](ctx context.Context, f *Factory, connectionString, tableName string) (*TableManager[T], error) {
	if err := ValidateTableSettings(connectionString, tableName); err != nil {
		return nil, err
	}
	store, err := azure.NewTableStore[T](connectionString, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", tableName, err)
	}
	return open(ctx, f, store)
}

// NewTableManagerWithStore builds a table manager over an already opened store, such as
// a DynamoDB or in-memory table. The table name is validated and the table created if it
// does not exist.
func NewTableManagerWithStore[T storagemodels.Entity](ctx context.Context, f *Factory, store datastore.TableStore[T]) (*TableManager[T], error) {
	if err := ValidateTableName(store.Name()); err != nil {
		return nil, err
	}
	return open(ctx, f, store)
}

func open[T storagemodels.Entity](ctx context.Context, f *Factory, store datastore.TableStore[T]) (*TableManager[T], error) {
	if err := store.CreateIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", store.Name(), err)
	}
	f.logger.Debug().Str("table", store.Name()).Msg("table ready")
	return newTableManager(store, f.logger, f.metrics), nil
}

// ValidateBlobAccount checks the account arguments in the order uri, accountName,
// accessKey and reports the first missing one. The URI must be absolute.
func ValidateBlobAccount(uri, accountName, accessKey string) error {
	if isBlank(uri) {
		return errors.NewArgumentError(ParamURI, BlobURIRequired)
	}
	if isBlank(accountName) {
		return errors.NewArgumentError(ParamAccountName, BlobAccountNameRequired)
	}
	if isBlank(accessKey) {
		return errors.NewArgumentError(ParamAccessKey, BlobAccessKeyRequired)
	}
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errors.NewConfigurationError(ParamURI, BlobURIInvalid, err)
	}
	return nil
}

// ValidateBlobConnectionString checks that a blob connection string is present and well
// shaped.
func ValidateBlobConnectionString(connectionString string) error {
	if isBlank(connectionString) {
		return errors.NewArgumentError(ParamConnectionString, BlobConnectionStringRequired)
	}
	return connstr.Validate(connectionString)
}

// ValidateTableSettings checks the connection string and the table name.
func ValidateTableSettings(connectionString, tableName string) error {
	if isBlank(connectionString) {
		return errors.NewArgumentError(ParamConnectionString, TableConnectionRequired)
	}
	if err := ValidateTableName(tableName); err != nil {
		return err
	}
	return connstr.Validate(connectionString)
}

// ValidateTableName checks that name is present, at most MaxTableNameLength characters
// long, starts with a letter and is otherwise alphanumeric.
func ValidateTableName(name string) error {
	if isBlank(name) {
		return errors.NewArgumentError(ParamTableName, TableNameRequired)
	}
	if len(name) > MaxTableNameLength {
		return errors.NewConfigurationError(ParamTableName, fmt.Sprintf(TableNameTooLong, MaxTableNameLength), nil)
	}
	if !tableNamePattern.MatchString(name) {
		return errors.NewConfigurationError(ParamTableName, TableNameInvalid, nil)
	}
	return nil
}

// ValidateQueueSettings checks the connection string and the queue name.
func ValidateQueueSettings(connectionString, queueName string) error {
	if isBlank(connectionString) {
		return errors.NewArgumentError(ParamConnectionString, QueueConnectionRequired)
	}
	if isBlank(queueName) {
		return errors.NewArgumentError(ParamQueueName, QueueNameRequired)
	}
	return connstr.Validate(connectionString)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
