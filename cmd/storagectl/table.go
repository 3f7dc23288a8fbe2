/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suparena/cloudstore/storagemodels"
)

func tableCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Read and delete table entities",
	}
	cmd.PersistentFlags().String("table", "", "table name (default from config)")

	cmd.AddCommand(tableGetCmd(a))
	cmd.AddCommand(tableQueryCmd(a))
	cmd.AddCommand(tableDeleteCmd(a))

	return cmd
}

func tableName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("table")
	return name
}

func tableGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <partitionKey> <rowKey>",
		Short: "Read one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.tableManager(cmd.Context(), tableName(cmd))
			if err != nil {
				return err
			}
			entity, found, err := m.GetSingle(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("entity %s not found in %s", storagemodels.EntityKey(args[0], args[1]), m.Name())
			}
			return a.print(entity)
		},
	}
}

func tableQueryCmd(a *app) *cobra.Command {
	var (
		filter   string
		selected []string
		pageSize int32
		token    string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query entities with an OData filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.tableManager(cmd.Context(), tableName(cmd))
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("page-size") {
				pageSize = a.cfg.Table.PageSize
			}
			q := storagemodels.Filter(filter, storagemodels.WithSelect(selected...), storagemodels.WithPageSize(pageSize))

			if all {
				items, err := m.Query(cmd.Context(), q)
				if err != nil {
					return err
				}
				return a.print(map[string]any{"items": items})
			}

			page, err := m.QueryPage(cmd.Context(), q, token)
			if err != nil {
				return err
			}
			return a.print(map[string]any{
				"items":             page.Items,
				"continuationToken": page.ContinuationToken,
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "OData filter, e.g. \"PartitionKey eq 'P1'\"")
	cmd.Flags().StringSliceVar(&selected, "select", nil, "properties to return")
	cmd.Flags().Int32Var(&pageSize, "page-size", storagemodels.DefaultPageSize, "entities per page")
	cmd.Flags().StringVar(&token, "token", "", "continuation token of the page to fetch")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	return cmd
}

func tableDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <partitionKey> <rowKey>",
		Short: "Delete one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.tableManager(cmd.Context(), tableName(cmd))
			if err != nil {
				return err
			}
			if err := m.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return a.print(map[string]string{"deleted": storagemodels.EntityKey(args[0], args[1])})
		},
	}
}
