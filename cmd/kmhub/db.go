// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/i18n"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Back up and restore the database",
	}
	cmd.AddCommand(newDBExportCmd(a), newDBImportCmd(a))
	return cmd
}

func newDBExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file | ->",
		Short: "Write a zstd-compressed YAML backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.store.ExportBackup(cmd.Context())
			if err != nil {
				return err
			}
			if args[0] == "-" {
				return db.WriteBackup(data, cmd.OutOrStdout())
			}
			f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			if err := db.WriteBackup(data, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("db.exported", args[0], len(data.Hosts), len(data.Users), len(data.PublicKeys)))
			return nil
		},
	}
}

func newDBImportCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <file | ->",
		Short: "Replace the database contents with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New(i18n.T("db.error_force"))
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			data, err := db.ReadBackup(r)
			if err != nil {
				return err
			}
			if err := a.store.ImportBackup(cmd.Context(), data); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("db.imported", len(data.Hosts), len(data.Users), len(data.PublicKeys)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm that existing data is replaced")
	return cmd
}
