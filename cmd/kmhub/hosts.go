// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/trust"
	"github.com/toeirei/keymaster-hub/internal/tui"
	"golang.org/x/term"
)

func newHostCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Register hosts and manage their authorized keys",
	}
	cmd.AddCommand(
		newHostAddCmd(a),
		newHostTrustCmd(a),
		newHostListCmd(a),
		newHostDiffCmd(a),
		newHostRemoveKeyCmd(a),
		newHostSetJumpCmd(a),
		newHostDeleteCmd(a),
	)
	return cmd
}

// hostFlags are the connection details of a host being registered.
type hostFlags struct {
	address string
	port    int
	user    string
	jump    string
	copy    bool
}

func (f *hostFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.address, "address", "", "hostname or IP address")
	cmd.Flags().IntVar(&f.port, "port", model.DefaultSSHPort, "SSH port")
	cmd.Flags().StringVarP(&f.user, "user", "u", "root", "login user")
	cmd.Flags().StringVar(&f.jump, "jump", "", "jump host (name or ID) to connect through")
	cmd.Flags().BoolVar(&f.copy, "copy", false, "copy the offered fingerprint to the clipboard")
	_ = cmd.MarkFlagRequired("address")
}

func (f *hostFlags) request(ctx context.Context, a *app, name string) (trust.Request, error) {
	jump, err := jumpRef(ctx, a.store, f.jump)
	if err != nil {
		return trust.Request{}, err
	}
	return trust.Request{Name: name, Address: f.address, Port: f.port, Username: f.user, JumpVia: jump}, nil
}

// beginTrust starts the trust flow and prints the offer.
func beginTrust(cmd *cobra.Command, a *app, name string, f *hostFlags) (trust.Offer, error) {
	ctx := cmd.Context()
	svc, err := a.service(cmd)
	if err != nil {
		return trust.Offer{}, err
	}
	req, err := f.request(ctx, a, name)
	if err != nil {
		return trust.Offer{}, err
	}
	offer, err := svc.BeginTrust(ctx, req)
	if err != nil {
		return trust.Offer{}, err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, i18n.T("host.offer", name, offer.KeyType, offer.Fingerprint))
	if offer.Warning != "" {
		fmt.Fprintln(out, offer.Warning)
	}
	if f.copy {
		if err := clipboard.WriteAll(offer.Fingerprint); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("host.copy_failed", err))
		} else {
			fmt.Fprintln(out, i18n.T("host.copied"))
		}
	}
	return offer, nil
}

func confirmTrust(cmd *cobra.Command, a *app, token, fingerprint string) error {
	svc, err := a.service(cmd)
	if err != nil {
		return err
	}
	host, err := svc.ConfirmTrust(cmd.Context(), token, fingerprint)
	if err != nil {
		return fmt.Errorf("%s (%s): %w", i18n.T("host.trust_failed"), trust.Outcome(err), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.added", host.Name, host.ID))
	return nil
}

// rejectTrust discards the pending request behind token; label names it in
// the output.
func rejectTrust(cmd *cobra.Command, a *app, token, label string) error {
	svc, err := a.service(cmd)
	if err != nil {
		return err
	}
	if err := svc.RejectTrust(cmd.Context(), token); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.rejected", label))
	return nil
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newHostAddCmd(a *app) *cobra.Command {
	var f hostFlags
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a host with trust on first use",
		Long: `Connects to the host, shows the fingerprint of the key it presents and
stores the host once the fingerprint is accepted and login succeeds.

With --fingerprint the offered key must match the given fingerprint. Without
it the fingerprint is reviewed interactively, or, when not on a terminal, the
token for "host trust confirm" is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			offer, err := beginTrust(cmd, a, name, &f)
			if err != nil {
				return err
			}
			switch {
			case fingerprint != "":
				return confirmTrust(cmd, a, offer.Token, fingerprint)
			case isTerminal(a.in):
				accepted, err := tui.RunReview(name, f.address, offer, a.in, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if !accepted {
					return rejectTrust(cmd, a, offer.Token, name)
				}
				return confirmTrust(cmd, a, offer.Token, offer.Fingerprint)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.pending", offer.Token, offer.ExpiresAt.Local().Format("15:04:05")))
				return nil
			}
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "expected SHA256 fingerprint of the host key")
	return cmd
}

func newHostTrustCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Run the two steps of host registration separately",
	}

	var f hostFlags
	begin := &cobra.Command{
		Use:   "begin <name>",
		Short: "Probe a host and print its fingerprint and a confirmation token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offer, err := beginTrust(cmd, a, args[0], &f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.pending", offer.Token, offer.ExpiresAt.Local().Format("15:04:05")))
			return nil
		},
	}
	f.register(begin)

	confirm := &cobra.Command{
		Use:   "confirm <token> <fingerprint>",
		Short: "Confirm a pending host with the fingerprint that was offered",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return confirmTrust(cmd, a, args[0], args[1])
		},
	}

	reject := &cobra.Command{
		Use:   "reject <token>",
		Short: "Discard a pending host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rejectTrust(cmd, a, args[0], args[0])
		},
	}

	cmd.AddCommand(begin, confirm, reject)
	return cmd
}

func newHostListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := a.store.GetAllHosts(cmd.Context())
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.none"))
				return nil
			}
			names := make(map[int]string, len(hosts))
			for _, h := range hosts {
				names[h.ID] = h.Name
			}
			rows := make([][]string, 0, len(hosts))
			for _, h := range hosts {
				via := "-"
				if h.JumpVia != nil {
					via = names[*h.JumpVia]
				}
				rows = append(rows, []string{strconv.Itoa(h.ID), h.Name, h.Username + "@" + h.Addr(), via, h.KeyFingerprint})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", i18n.T("col.name"), i18n.T("col.login"), i18n.T("col.via"), i18n.T("col.fingerprint")}, rows)
			return nil
		},
	}
}

func newHostDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <host>...",
		Short: "Compare hosts' authorized_keys with the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			var failed error
			for _, ref := range args {
				h, err := findHost(ctx, a.store, ref)
				if err == nil {
					var d model.HostDiff
					if d, err = svc.GetHostDiff(ctx, *h); err == nil {
						fmt.Fprint(cmd.OutOrStdout(), tui.RenderDiff(d))
						continue
					}
				}
				fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("host.diff_failed", ref, err))
				failed = errors.Join(failed, err)
			}
			return failed
		},
	}
}

func newHostRemoveKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-key <host> <key-id | key-line | base64>",
		Short: "Remove a key from a host's authorized_keys",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			h, err := findHost(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			material := keyMaterial(args[1])
			if id, cerr := strconv.Atoi(args[1]); cerr == nil {
				k, err := a.store.GetPublicKeyByID(ctx, id)
				if err != nil {
					return err
				}
				material = k.Base64
			}
			if err := svc.RemoveKey(ctx, *h, material); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.key_removed", h.Name))
			return nil
		},
	}
}

func newHostSetJumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-jump <host> <jump-host | none>",
		Short: "Change the jump host a host is reached through",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := findHost(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			jump, err := jumpRef(ctx, a.store, args[1])
			if err != nil {
				return err
			}
			if err := a.store.SetJumpHost(ctx, h.ID, jump); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.jump_set", h.Name, args[1]))
			return nil
		},
	}
}

func newHostDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <host>",
		Short: "Delete a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := findHost(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteHost(ctx, h.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("host.deleted", h.Name))
			return nil
		},
	}
}
