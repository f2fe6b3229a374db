// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"errors"
	"fmt"

	"github.com/toeirei/keymaster-hub/internal/security"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

var (
	// ErrPassphraseRequired is returned when the private key is encrypted and
	// no passphrase was supplied.
	ErrPassphraseRequired = errors.New("private key is passphrase protected")
	// ErrNoCredential is returned when neither a key nor an agent is available.
	ErrNoCredential = errors.New("no authentication method available (no private key and no ssh agent)")
)

// Credential is the single identity used to authenticate to every host. It
// is immutable once built.
type Credential struct {
	signers []ssh.Signer
	agent   agent.Agent
}

// CredentialOptions describe where the credential comes from.
type CredentialOptions struct {
	PrivateKey security.Secret
	Passphrase security.Secret
	UseAgent   bool
}

// NewCredential parses the private key, if any, and attaches the SSH agent
// as a fallback when requested. The key is tried before agent identities.
func NewCredential(opts CredentialOptions) (*Credential, error) {
	c := &Credential{}
	if !opts.PrivateKey.Empty() {
		signer, err := parseSigner(opts.PrivateKey, opts.Passphrase)
		if err != nil {
			return nil, err
		}
		c.signers = append(c.signers, signer)
	}
	if opts.UseAgent {
		if a := getSSHAgent(); a != nil {
			c.agent = a
		}
	}
	if len(c.signers) == 0 && c.agent == nil {
		return nil, ErrNoCredential
	}
	return c, nil
}

// NewSignerCredential builds a credential from already parsed signers.
func NewSignerCredential(signers ...ssh.Signer) *Credential {
	return &Credential{signers: signers}
}

func parseSigner(key, passphrase security.Secret) (ssh.Signer, error) {
	raw := key.Bytes()
	defer wipe(raw)
	signer, err := ssh.ParsePrivateKey(raw)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	if passphrase.Empty() {
		return nil, ErrPassphraseRequired
	}
	pass := passphrase.Bytes()
	defer wipe(pass)
	signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt private key: %w", err)
	}
	return signer, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// authMethods returns the auth methods in preference order.
func (c *Credential) authMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if len(c.signers) > 0 {
		methods = append(methods, ssh.PublicKeys(c.signers...))
	}
	if c.agent != nil {
		methods = append(methods, ssh.PublicKeysCallback(c.agent.Signers))
	}
	return methods
}

// PublicKeys returns the public halves of the file-based signers, for
// display when onboarding a host.
func (c *Credential) PublicKeys() []ssh.PublicKey {
	out := make([]ssh.PublicKey, 0, len(c.signers))
	for _, s := range c.signers {
		out = append(out, s.PublicKey())
	}
	return out
}
