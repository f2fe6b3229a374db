// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// kmhub manages SSH access to a fleet of hosts: it registers hosts with
// trust on first use, reaches them through jump hosts, and compares and
// cleans up their authorized_keys against the database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/toeirei/keymaster-hub/buildvars"
	"github.com/toeirei/keymaster-hub/internal/config"
	"github.com/toeirei/keymaster-hub/internal/core"
	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// skipStore marks commands that run without a database.
const skipStore = "kmhub/skip-store"

// app carries what a single command invocation needs. Commands reach it
// through the closure in newRootCmd, so every root command is isolated.
type app struct {
	cfgFile string
	cfg     config.Config
	store   *db.BunStore
	svc     *core.Service

	in io.Reader
	// credential builds the SSH credential; replaced in tests.
	credential func(cfg config.SSHConfig, in io.Reader, out io.Writer) (*sshclient.Credential, error)
}

// service returns the core service, loading the SSH credential on first
// use. Commands that only touch the database never load it.
func (a *app) service(cmd *cobra.Command) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	cred, err := a.credential(a.cfg.SSH, a.in, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", i18n.T("cli.error_credential"), err)
	}
	a.svc = core.NewService(a.store, cred, core.Options{
		ConnectTimeout: a.cfg.SSH.ConnectTimeout,
		TrustTimeout:   a.cfg.SSH.TrustTimeout,
		PendingTTL:     a.cfg.SSH.PendingTTL,
		MaxJumpDepth:   a.cfg.SSH.MaxJumpDepth,
	})
	return a.svc, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	a := &app{credential: loadCredential}

	cmd := &cobra.Command{
		Use:   "kmhub",
		Short: "Keymaster Hub manages SSH access to a fleet of hosts.",
		Long: `Keymaster Hub keeps a database of hosts, users and their public keys.
Hosts are registered with trust on first use and may be reached through
jump hosts. The database is compared against each host's authorized_keys
to find missing and unexpected keys.`,
		Version:      buildvars.VersionOrDefault("dev"),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), a.cfgFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			a.cfg = cfg
			a.in = cmd.InOrStdin()
			i18n.Init(cfg.Language)
			logging.SetDebug(cfg.Debug)
			if cmd.Annotations[skipStore] == "true" {
				return nil
			}
			store, err := db.NewStoreFromDSN(cfg.Database.Type, cfg.Database.DSN, db.WithMaxJumpDepth(cfg.SSH.MaxJumpDepth))
			if err != nil {
				return fmt.Errorf("%s: %w", i18n.T("cli.error_init_db"), err)
			}
			a.store = store
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.store != nil {
				return a.store.Close()
			}
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/keymaster-hub/kmhub.yaml or ./kmhub.yaml)")
	f.String("db-type", "sqlite", "database type (sqlite, postgres, mysql)")
	f.String("db-dsn", "./kmhub.db", "database connection string (DSN)")
	f.String("identity", "", "private key used to log in to every host")
	f.Bool("use-agent", false, "fall back to the SSH agent for authentication")
	f.Duration("timeout", 0, "connect timeout per hop (e.g. 10s)")
	f.String("lang", "en", `output language ("en", "de")`)
	f.Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		newHostCmd(a),
		newUserCmd(a),
		newKeyCmd(a),
		newAuditCmd(a),
		newDBCmd(a),
		newConfigCmd(a),
	)
	return cmd
}
