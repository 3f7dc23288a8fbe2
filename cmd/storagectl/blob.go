/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/suparena/cloudstore"
)

func blobCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store, read and delete blobs",
	}

	cmd.AddCommand(blobPutCmd(a))
	cmd.AddCommand(blobGetCmd(a))
	cmd.AddCommand(blobDeleteCmd(a))
	cmd.AddCommand(blobURLCmd(a))

	return cmd
}

func blobPutCmd(a *app) *cobra.Command {
	var (
		container string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "put <name> <file|->",
		Short: "Upload a file as a blob",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.blobManager()
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[1], err)
				}
				defer f.Close()
				r = f
			}

			uri, err := m.StoreFile(cmd.Context(), args[0], a.container(container), r, cloudstore.WithOverwrite(overwrite))
			if err != nil {
				return err
			}
			return a.print(map[string]string{"uri": uri})
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "blob container (default from config)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing blob")
	return cmd
}

func blobGetCmd(a *app) *cobra.Command {
	var (
		container string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Download a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.blobManager()
			if err != nil {
				return err
			}
			data, err := m.GetBytes(cmd.Context(), args[0], a.container(container))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "blob container (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the blob to this file instead of stdout")
	return cmd
}

func blobDeleteCmd(a *app) *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a blob and its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.blobManager()
			if err != nil {
				return err
			}
			deleted, err := m.DeleteFile(cmd.Context(), args[0], a.container(container))
			if err != nil {
				return err
			}
			return a.print(map[string]bool{"deleted": deleted})
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "blob container (default from config)")
	return cmd
}

func blobURLCmd(a *app) *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "url <name|uri>",
		Short: "Print a signed read-only download URL for a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.blobManager()
			if err != nil {
				return err
			}
			link, err := m.GetDownloadURL(cmd.Context(), args[0], a.container(container))
			if err != nil {
				return err
			}
			return a.print(map[string]string{"url": link, "expires": cloudstore.DownloadURLExpiry.String()})
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "blob container (default from config)")
	return cmd
}

func (a *app) container(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Blob.Container
}
