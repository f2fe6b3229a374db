// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshkey

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // hosts still present DSA keys
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"

	"github.com/toeirei/keymaster-hub/internal/model"
	"golang.org/x/crypto/ssh"
)

func TestParse_NormalLine(t *testing.T) {
	line := "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQC3 test-key@example.com"
	k, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if k.Type != "ssh-rsa" {
		t.Fatalf("unexpected type: %s", k.Type)
	}
	if k.Base64 != "AAAAB3NzaC1yc2EAAAADAQABAAABAQC3" {
		t.Fatalf("unexpected key data: %s", k.Base64)
	}
	if k.Comment != "test-key@example.com" {
		t.Fatalf("unexpected comment: %s", k.Comment)
	}
	if !k.IsUnowned() {
		t.Fatalf("parsed key should be unowned, got %v", k.Owner)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	tests := []string{
		"ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBk alice@laptop",
		"ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBk",
		"ssh-rsa BBBB comment with several words",
		"custom-type CCCC c",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			k, err := Parse(line)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := Format(k); got != line {
				t.Fatalf("round trip mismatch: got %q, want %q", got, line)
			}
		})
	}
}

func TestParse_NoCommentHasEmptyComment(t *testing.T) {
	k, err := Parse("ssh-ed25519 AAAA")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if k.Comment != "" {
		t.Fatalf("expected no comment, got %q", k.Comment)
	}
}

func TestParse_WithOptions(t *testing.T) {
	line := `no-agent-forwarding,command="echo hi" ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIBk comment`
	k, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if k.Type != "ssh-ed25519" {
		t.Fatalf("unexpected type: %s", k.Type)
	}
	if k.Options != `no-agent-forwarding,command="echo hi"` {
		t.Fatalf("unexpected options: %s", k.Options)
	}
	if k.Comment != "comment" {
		t.Fatalf("unexpected comment: %s", k.Comment)
	}
	if Format(k) != line {
		t.Fatalf("options line did not round trip: %q", Format(k))
	}
}

func TestParse_Errors(t *testing.T) {
	for _, line := range []string{"", "   ", "just-some-text"} {
		if _, err := Parse(line); !errors.Is(err, ErrMalformedKey) {
			t.Fatalf("expected ErrMalformedKey for %q, got %v", line, err)
		}
	}
}

func TestParseMany_DropsMalformedAndComments(t *testing.T) {
	text := strings.Join([]string{
		"# managed by hand",
		"ssh-ed25519 AAA first",
		"garbage",
		"",
		"ssh-rsa BBB second",
		"ecdsa-sha2-nistp256 CCC",
	}, "\r\n")

	keys := ParseMany(text)
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d: %v", len(keys), keys)
	}
	want := []string{"AAA", "BBB", "CCC"}
	for i, k := range keys {
		if k.Base64 != want[i] {
			t.Errorf("key %d: got %q, want %q", i, k.Base64, want[i])
		}
	}
	if keys[0].Comment != "first" {
		t.Errorf("unexpected comment %q", keys[0].Comment)
	}
}

func TestParseMany_Empty(t *testing.T) {
	if keys := ParseMany(""); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func newTestKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("convert key: %v", err)
	}
	return sshPub
}

func TestFingerprint_MatchesSSH(t *testing.T) {
	pub := newTestKey(t)
	k := FromSSH(pub, "host")
	if k.Type != ssh.KeyAlgoED25519 {
		t.Fatalf("unexpected type %s", k.Type)
	}
	fp, err := Fingerprint(k)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fp != ssh.FingerprintSHA256(pub) {
		t.Fatalf("fingerprint mismatch: %s vs %s", fp, ssh.FingerprintSHA256(pub))
	}

	parsed, err := Parse(strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))))
	if err != nil {
		t.Fatalf("Parse of marshalled key failed: %v", err)
	}
	if parsed.Identity() != k.Identity() {
		t.Fatalf("identity mismatch after marshal/parse")
	}
}

func TestFingerprint_InvalidData(t *testing.T) {
	if _, err := Fingerprint(model.PublicKey{Type: "ssh-ed25519", Base64: "!!!"}); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("expected ErrMalformedKey, got %v", err)
	}
}

func sshKeyFrom(t *testing.T, pub crypto.PublicKey) ssh.PublicKey {
	t.Helper()
	k, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("convert key: %v", err)
	}
	return k
}

func rsaKey(t *testing.T, bits int) ssh.PublicKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return sshKeyFrom(t, &priv.PublicKey)
}

func dsaKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	var priv dsa.PrivateKey
	if err := dsa.GenerateParameters(&priv.Parameters, rand.Reader, dsa.L1024N160); err != nil {
		t.Fatalf("generate dsa parameters: %v", err)
	}
	if err := dsa.GenerateKey(&priv, rand.Reader); err != nil {
		t.Fatalf("generate dsa key: %v", err)
	}
	return sshKeyFrom(t, &priv.PublicKey)
}

func TestCheckHostKeyAlgorithm(t *testing.T) {
	tests := []struct {
		name string
		key  func(t *testing.T) ssh.PublicKey
		want string // substring; "" means no warning
	}{
		{"ed25519", newTestKey, ""},
		{"rsa-2048", func(t *testing.T) ssh.PublicKey { return rsaKey(t, 2048) }, "SHA-1"},
		{"rsa-1024", func(t *testing.T) ssh.PublicKey { return rsaKey(t, 1024) }, "1024-bit"},
		{"dsa", dsaKey, "DSA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := CheckHostKeyAlgorithm(tt.key(t))
			if tt.want == "" {
				if w != "" {
					t.Fatalf("unexpected warning: %q", w)
				}
				return
			}
			if !strings.Contains(w, tt.want) {
				t.Fatalf("warning %q does not mention %q", w, tt.want)
			}
		})
	}
}
