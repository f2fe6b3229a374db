// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/internal/config"
	"github.com/toeirei/keymaster-hub/internal/i18n"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the configuration file",
		Annotations: map[string]string{skipStore: "true"},
	}

	var system bool
	var path string
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the effective configuration to a file",
		Long:        "Writes the configuration currently in effect (defaults, environment and flags) as YAML.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := config.WriteConfigFile(&a.cfg, path, system)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", written))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "write the system-wide file instead of the user file")
	initCmd.Flags().StringVar(&path, "path", "", "write to this path")
	cmd.AddCommand(initCmd)
	return cmd
}
