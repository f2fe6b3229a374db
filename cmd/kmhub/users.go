// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshkey"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users, their keys and host authorizations",
	}
	cmd.AddCommand(
		newUserAddCmd(a),
		newUserListCmd(a),
		newUserAddKeyCmd(a),
		newUserAuthorizeCmd(a),
		newUserRevokeCmd(a),
	)
	return cmd
}

func newUserAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.store.AddUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("user.added", u.Name, u.ID))
			return nil
		},
	}
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			users, err := a.store.GetAllUsers(ctx)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("user.none"))
				return nil
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				keys, err := a.store.GetKeysByOwner(ctx, model.UserOwner{UserID: u.ID})
				if err != nil {
					return err
				}
				rows = append(rows, []string{strconv.Itoa(u.ID), u.Name, strconv.Itoa(len(keys))})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", i18n.T("col.name"), i18n.T("col.keys")}, rows)
			return nil
		},
	}
}

func newUserAddKeyCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add-key <user> [key-line]",
		Short: "Add a public key to a user",
		Long: `Adds a public key given on the command line or read from --file (for
example ~/.ssh/id_ed25519.pub). A key that was discovered on a host and is
not owned by anyone yet is assigned to the user instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := findUser(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			var line string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				line = strings.TrimSpace(string(data))
			case len(args) == 2:
				line = args[1]
			default:
				return errors.New(i18n.T("user.error_no_key"))
			}
			k, err := sshkey.Parse(line)
			if err != nil {
				return err
			}
			k.Options = ""
			k.Owner = model.UserOwner{UserID: u.ID}

			stored, err := a.store.AddPublicKey(ctx, k)
			if errors.Is(err, db.ErrDuplicate) {
				existing, gerr := a.store.GetPublicKeyByIdentity(ctx, k.Identity())
				if gerr != nil {
					return gerr
				}
				if !existing.IsUnowned() {
					return fmt.Errorf("%w: %s", err, i18n.T("user.error_key_owned", existing.ID, model.OwnerOrUnowned(existing.Owner)))
				}
				if err := a.store.AssignKey(ctx, existing.ID, k.Owner); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("user.key_adopted", existing.ID, u.Name))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("user.key_added", stored.ID, u.Name))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the key from a .pub file")
	return cmd
}

func newUserAuthorizeCmd(a *app) *cobra.Command {
	var options string
	cmd := &cobra.Command{
		Use:   "authorize <user> <host>",
		Short: "Allow a user's keys on a host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := findUser(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			h, err := findHost(ctx, a.store, args[1])
			if err != nil {
				return err
			}
			if err := a.store.AuthorizeUser(ctx, h.ID, u.ID, options); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("user.authorized", u.Name, h.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&options, "options", "", `authorized_keys options, e.g. 'from="10.0.0.0/8",no-pty'`)
	return cmd
}

func newUserRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user> <host>",
		Short: "Withdraw a user's authorization on a host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := findUser(ctx, a.store, args[0])
			if err != nil {
				return err
			}
			h, err := findHost(ctx, a.store, args[1])
			if err != nil {
				return err
			}
			if err := a.store.RevokeUser(ctx, h.ID, u.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("user.revoked", u.Name, h.Name))
			return nil
		},
	}
}
