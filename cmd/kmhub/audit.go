// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/tui"
)

// errDrift makes `kmhub audit` exit non-zero when any host drifted.
var errDrift = errors.New("drift detected")

func newAuditCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare every host with the database",
		Long: `Diffs all hosts concurrently and prints one line per host. Hosts that
cannot be reached are reported and do not stop the others. The command exits
non-zero when any host drifted or failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			results, err := svc.AuditAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.none"))
				return nil
			}
			out := cmd.OutOrStdout()
			var drifted, failed int
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintln(out, i18n.T("audit.failed", r.Host.Name, r.Err))
				case verbose:
					fmt.Fprint(out, tui.RenderDiff(r.Diff))
				default:
					fmt.Fprintln(out, r.Diff.Summary())
				}
				if r.Err == nil && r.Diff.HasDrift() {
					drifted++
				}
			}
			fmt.Fprintln(out, i18n.T("audit.summary", len(results), drifted, failed))
			if drifted > 0 || failed > 0 {
				return errDrift
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the full diff of every host")
	cmd.AddCommand(newAuditLogCmd(a))
	return cmd
}

func newAuditLogCmd(a *app) *cobra.Command {
	var filter string
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.store.GetAllAuditLogEntries(cmd.Context())
			if err != nil {
				return err
			}
			entries = tui.FilterAuditLog(entries, filter)
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderAuditLog(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only entries containing this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries (0 for all)")
	return cmd
}
