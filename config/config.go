/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads the settings used to build storage managers from a YAML file,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names.
const (
	ProviderAzure    = "azure"
	ProviderMinIO    = "minio"
	ProviderDynamoDB = "dynamodb"
	ProviderMemory   = "memory"
)

// EnvPrefix prefixes every environment override, e.g. CLOUDSTORE_TABLE_NAME.
const EnvPrefix = "CLOUDSTORE"

type Config struct {
	Azure    AzureConfig    `mapstructure:"azure"`
	Blob     BlobConfig     `mapstructure:"blob"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Table    TableConfig    `mapstructure:"table"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	BlobURI          string `mapstructure:"blob_uri"`
	AccountName      string `mapstructure:"account_name"`
	AccessKey        string `mapstructure:"access_key"`
}

type BlobConfig struct {
	Provider  string `mapstructure:"provider"`
	Container string `mapstructure:"container"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type TableConfig struct {
	Provider string `mapstructure:"provider"`
	Name     string `mapstructure:"name"`
	PageSize int32  `mapstructure:"page_size"`
}

type DynamoDBConfig struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type QueueConfig struct {
	Name string `mapstructure:"name"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configPath when set and applies environment overrides. A .env file in the
// working directory is loaded into the environment first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	v.SetDefault("blob.provider", ProviderAzure)
	v.SetDefault("blob.container", "files")

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("table.provider", ProviderAzure)
	v.SetDefault("table.name", "")
	v.SetDefault("table.page_size", 25)

	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.endpoint", "")

	v.SetDefault("queue.name", "")

	// Unmarshal only sees keys viper knows about, so env-only keys need a default
	v.SetDefault("azure.blob_uri", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.enabled", false)

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind well-known environment variables
	_ = v.BindEnv("azure.connection_string", "CLOUDSTORE_AZURE_CONNECTION_STRING", "AZURE_STORAGE_CONNECTION_STRING")
	_ = v.BindEnv("azure.account_name", "CLOUDSTORE_AZURE_ACCOUNT_NAME", "AZURE_STORAGE_ACCOUNT")
	_ = v.BindEnv("azure.access_key", "CLOUDSTORE_AZURE_ACCESS_KEY", "AZURE_STORAGE_KEY")
	_ = v.BindEnv("minio.access_key", "CLOUDSTORE_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("minio.secret_key", "CLOUDSTORE_MINIO_SECRET_KEY", "MINIO_SECRET_KEY")
	_ = v.BindEnv("dynamodb.region", "CLOUDSTORE_DYNAMODB_REGION", "AWS_REGION")
	_ = v.BindEnv("dynamodb.access_key", "CLOUDSTORE_DYNAMODB_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("dynamodb.secret_key", "CLOUDSTORE_DYNAMODB_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting required by the selected providers that is missing.
func (c *Config) Validate() error {
	switch c.Blob.Provider {
	case ProviderAzure:
		if c.Azure.ConnectionString == "" && c.Azure.BlobURI == "" {
			return fmt.Errorf("azure.connection_string or azure.blob_uri is required for the azure blob provider")
		}
	case ProviderMinIO:
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("minio.endpoint is required")
		}
		if c.MinIO.AccessKey == "" {
			return fmt.Errorf("minio.access_key is required")
		}
		if c.MinIO.SecretKey == "" {
			return fmt.Errorf("minio.secret_key is required")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("blob.provider %q is not supported", c.Blob.Provider)
	}

	switch c.Table.Provider {
	case ProviderAzure:
		if c.Azure.ConnectionString == "" {
			return fmt.Errorf("azure.connection_string is required for the azure table provider")
		}
	case ProviderDynamoDB:
		if c.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb.region is required")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("table.provider %q is not supported", c.Table.Provider)
	}

	if c.Table.PageSize < 0 {
		return fmt.Errorf("table.page_size must not be negative")
	}
	return nil
}
