/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/suparena/cloudstore"
	"github.com/suparena/cloudstore/config"
	"github.com/suparena/cloudstore/datastore/ddb"
	"github.com/suparena/cloudstore/datastore/minio"
	"github.com/suparena/cloudstore/datastore/mock"
	"github.com/suparena/cloudstore/metrics"
	"github.com/suparena/cloudstore/storagemodels"
)

// app holds what every subcommand needs once the configuration is loaded.
type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Collector
	factory *cloudstore.Factory
	out     io.Writer
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		a.out = cmd.OutOrStdout()
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.logger = newLogger(cfg.Logging, a.logLevel)

	opts := []cloudstore.Option{cloudstore.WithLogger(a.logger)}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
		opts = append(opts, cloudstore.WithMetrics(a.metrics))
	}
	a.factory = cloudstore.NewFactory(opts...)
	return nil
}

// teardown logs the operation counters when metrics are enabled.
func (a *app) teardown(*cobra.Command, []string) {
	if a.metrics == nil {
		return
	}
	families, err := a.metrics.Registry().Gather()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to gather metrics")
		return
	}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			ev := a.logger.Info().Str("metric", fam.GetName())
			for _, l := range m.GetLabel() {
				ev = ev.Str(l.GetName(), l.GetValue())
			}
			if c := m.GetCounter(); c != nil {
				ev = ev.Float64("value", c.GetValue())
			}
			if h := m.GetHistogram(); h != nil {
				ev = ev.Uint64("count", h.GetSampleCount()).Float64("sum", h.GetSampleSum())
			}
			ev.Msg("metric")
		}
	}
}

func newLogger(cfg config.LoggingConfig, override string) zerolog.Logger {
	level := cfg.Level
	if override != "" {
		level = override
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func (a *app) blobManager() (*cloudstore.BlobManager, error) {
	switch a.cfg.Blob.Provider {
	case config.ProviderMinIO:
		mc := a.cfg.MinIO
		store, err := minio.NewBlobStore(minio.Config{
			Endpoint:  mc.Endpoint,
			AccessKey: mc.AccessKey,
			SecretKey: mc.SecretKey,
			UseSSL:    mc.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return a.factory.BlobManagerWithStore(store)
	case config.ProviderMemory:
		return a.factory.BlobManagerWithStore(mock.NewBlobStore())
	}

	az := a.cfg.Azure
	if az.ConnectionString != "" {
		return a.factory.BlobManagerFromConnectionString(az.ConnectionString)
	}
	return a.factory.BlobManager(az.BlobURI, az.AccountName, az.AccessKey)
}

func (a *app) tableManager(ctx context.Context, table string) (*cloudstore.TableManager[storagemodels.Record], error) {
	if table == "" {
		table = a.cfg.Table.Name
	}

	switch a.cfg.Table.Provider {
	case config.ProviderDynamoDB:
		db := a.cfg.DynamoDB
		store, err := ddb.NewDynamodbDataStore[storagemodels.Record](ctx, ddb.ClientConfig{
			AccessKey: db.AccessKey,
			SecretKey: db.SecretKey,
			Region:    db.Region,
			Endpoint:  db.Endpoint,
		}, table)
		if err != nil {
			return nil, err
		}
		return cloudstore.NewTableManagerWithStore[storagemodels.Record](ctx, a.factory, store)
	case config.ProviderMemory:
		return cloudstore.NewTableManagerWithStore[storagemodels.Record](ctx, a.factory, mock.NewTableStore[storagemodels.Record](table))
	}
	return cloudstore.NewTableManager[storagemodels.Record](ctx, a.factory, a.cfg.Azure.ConnectionString, table)
}

func (a *app) queueManager(queue string) (*cloudstore.QueueManager, error) {
	if queue == "" {
		queue = a.cfg.Queue.Name
	}
	return a.factory.QueueManager(a.cfg.Azure.ConnectionString, queue)
}

// print writes v as YAML.
func (a *app) print(v any) error {
	enc := yaml.NewEncoder(a.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.print(cloudstore.GetVersionInfo())
		},
	}
}
