// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/model"
)

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect and assign public keys",
	}
	cmd.AddCommand(newKeyListCmd(a), newKeyAssignCmd(a))
	return cmd
}

func newKeyListCmd(a *app) *cobra.Command {
	var unowned bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List public keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var keys []model.PublicKey
			var err error
			if unowned {
				keys, err = a.store.GetKeysByOwner(ctx, model.Unowned{})
			} else {
				keys, err = a.store.GetAllPublicKeys(ctx)
			}
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("key.none"))
				return nil
			}
			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []string{strconv.Itoa(k.ID), k.Type, shortBase64(k.Base64), k.Comment, model.OwnerOrUnowned(k.Owner).String()})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", i18n.T("col.type"), i18n.T("col.key"), i18n.T("col.comment"), i18n.T("col.owner")}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unowned, "unowned", false, "only keys discovered on hosts that nobody owns")
	return cmd
}

func newKeyAssignCmd(a *app) *cobra.Command {
	var user, host string
	var unassign bool
	cmd := &cobra.Command{
		Use:   "assign <key-id>",
		Short: "Give a key an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%s: %q", i18n.T("key.error_bad_id"), args[0])
			}
			var owner model.Owner
			switch {
			case unassign && user == "" && host == "":
				owner = model.Unowned{}
			case user != "" && host == "" && !unassign:
				u, err := findUser(ctx, a.store, user)
				if err != nil {
					return err
				}
				owner = model.UserOwner{UserID: u.ID}
			case host != "" && user == "" && !unassign:
				h, err := findHost(ctx, a.store, host)
				if err != nil {
					return err
				}
				owner = model.HostOwner{HostID: h.ID}
			default:
				return errors.New(i18n.T("key.error_owner_flags"))
			}
			if err := a.store.AssignKey(ctx, id, owner); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("key.assigned", id, owner))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "assign to this user")
	cmd.Flags().StringVar(&host, "host", "", "assign to this host as one of its server keys")
	cmd.Flags().BoolVar(&unassign, "unowned", false, "remove the key's owner")
	return cmd
}

func shortBase64(b64 string) string {
	if len(b64) <= 24 {
		return b64
	}
	return b64[:10] + "..." + b64[len(b64)-10:]
}
