// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/toeirei/keymaster-hub/internal/config"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/security"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"golang.org/x/term"
)

// passphraseEnv may hold the passphrase for non-interactive runs.
const passphraseEnv = "KMHUB_SSH_PASSPHRASE"

// loadCredential reads the configured private key and builds the process
// credential. An encrypted key is unlocked with KMHUB_SSH_PASSPHRASE or, on
// a terminal, an interactive prompt.
func loadCredential(cfg config.SSHConfig, in io.Reader, out io.Writer) (*sshclient.Credential, error) {
	var key security.Secret
	if cfg.PrivateKeyFile != "" {
		k, err := security.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		key = k
	}
	defer key.Zero()

	opts := sshclient.CredentialOptions{PrivateKey: key, UseAgent: cfg.UseAgent}
	cred, err := sshclient.NewCredential(opts)
	if !errors.Is(err, sshclient.ErrPassphraseRequired) {
		return cred, err
	}

	pass, err := readPassphrase(in, out)
	if err != nil {
		return nil, err
	}
	defer pass.Zero()
	opts.Passphrase = pass
	return sshclient.NewCredential(opts)
}

func readPassphrase(in io.Reader, out io.Writer) (security.Secret, error) {
	if p, ok := os.LookupEnv(passphraseEnv); ok {
		return security.FromString(p), nil
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, sshclient.ErrPassphraseRequired
	}
	fmt.Fprint(out, i18n.T("cli.passphrase_prompt"))
	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range raw {
			raw[i] = 0
		}
	}()
	return security.FromBytes(raw), nil
}
