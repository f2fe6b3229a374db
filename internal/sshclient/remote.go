// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshkey"
)

const (
	// AuthorizedKeysPath is relative to the login user's home directory.
	AuthorizedKeysPath = ".ssh/authorized_keys"

	listAuthorizedKeysCmd = "test -e ~/.ssh/authorized_keys || exit 0; cat ~/.ssh/authorized_keys"
	listServerKeysCmd     = "cat /etc/ssh/ssh_host_*_key.pub"
)

// ListServerIdentityKeys reads the host's own public keys. It is best
// effort: unreadable key files and malformed lines are skipped, and an error
// is returned only when nothing could be read at all.
func ListServerIdentityKeys(ctx context.Context, s Session) ([]model.PublicKey, error) {
	out, err := s.Run(ctx, listServerKeysCmd)
	if err != nil {
		if strings.TrimSpace(out) == "" {
			return nil, err
		}
		logging.Debugf("reading server keys partially failed: %v", err)
	}
	return sshkey.ParseMany(out), nil
}

// ListAuthorizedKeys returns the keys in the login user's authorized_keys.
// A missing or empty file yields no keys.
func ListAuthorizedKeys(ctx context.Context, s Session) ([]model.PublicKey, error) {
	out, err := s.Run(ctx, listAuthorizedKeysCmd)
	if err != nil {
		return nil, err
	}
	return sshkey.ParseMany(out), nil
}

// RemoveAuthorizedKey drops every authorized_keys line whose key material
// equals keyBase64 and reports how many were dropped. Other lines, comments
// and unparsable lines included, are kept verbatim. Nothing is written when
// no line matches. The rewrite is detached from ctx cancellation once it
// starts.
func RemoveAuthorizedKey(ctx context.Context, s Session, keyBase64 string) (int, error) {
	data, err := s.ReadFile(ctx, AuthorizedKeysPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, &ExecutionError{Command: "read " + AuthorizedKeysPath, ExitStatus: -1, Err: err}
	}
	kept, removed := filterKeyLines(string(data), keyBase64)
	if removed == 0 {
		return 0, nil
	}
	if err := s.WriteFileAtomic(context.WithoutCancel(ctx), AuthorizedKeysPath, []byte(kept), 0o600); err != nil {
		return 0, &ExecutionError{Command: "write " + AuthorizedKeysPath, ExitStatus: -1, Err: err}
	}
	return removed, nil
}

func filterKeyLines(content, keyBase64 string) (string, int) {
	lines := strings.SplitAfter(content, "\n")
	var b strings.Builder
	removed := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if k, err := sshkey.Parse(trimmed); err == nil && k.Base64 == keyBase64 {
				removed++
				continue
			}
		}
		b.WriteString(line)
	}
	return b.String(), removed
}

// RemoveKey resolves host and removes keyBase64 from its authorized_keys.
// Removing a key that is not present succeeds. The session is closed on
// every path.
func (r *Router) RemoveKey(ctx context.Context, host model.Host, keyBase64 string) error {
	s, err := r.Resolve(ctx, host)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	n, err := RemoveAuthorizedKey(ctx, s, keyBase64)
	if err != nil {
		return fmt.Errorf("remove key on %s: %w", host.Name, err)
	}
	logging.Debugf("removed %d line(s) from %s on %s", n, AuthorizedKeysPath, host.Name)
	return nil
}
