// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/toeirei/keymaster-hub/internal/model"
	"golang.org/x/crypto/ssh"
)

// newTestStore opens an in-memory sqlite store private to the test.
func newTestStore(t *testing.T, opts ...Option) *BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := NewStoreFromDSN("sqlite", "file:"+name+"?mode=memory&cache=shared", opts...)
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustAddHost(t *testing.T, s *BunStore, name string, jumpVia *int) model.Host {
	t.Helper()
	h, err := s.AddHost(context.Background(), model.Host{
		Name:           name,
		Address:        name + ".example.com",
		Port:           22,
		Username:       "root",
		KeyFingerprint: "SHA256:" + name,
		JumpVia:        jumpVia,
	})
	if err != nil {
		t.Fatalf("AddHost(%s) failed: %v", name, err)
	}
	return h
}

func mustAddUser(t *testing.T, s *BunStore, name string) model.User {
	t.Helper()
	u, err := s.AddUser(context.Background(), name)
	if err != nil {
		t.Fatalf("AddUser(%s) failed: %v", name, err)
	}
	return u
}

// newEd25519Key returns a freshly generated key in stored form.
func newEd25519Key(t *testing.T, comment string) model.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sp, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	return model.PublicKey{
		Type:    sp.Type(),
		Base64:  base64.StdEncoding.EncodeToString(sp.Marshal()),
		Comment: comment,
	}
}

func ptr(n int) *int { return &n }
