// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"errors"
	"strings"
	"testing"
)

func TestNewConnectionDetails(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		port     int
		wantErr  error
	}{
		{"hostname", "server-01.example.com", 22, nil},
		{"ipv4", "10.0.0.5", 2222, nil},
		{"ipv6", "::1", 22, nil},
		{"port zero", "example.com", 0, ErrInvalidPort},
		{"port negative", "example.com", -1, ErrInvalidPort},
		{"port too large", "example.com", 65536, ErrInvalidPort},
		{"empty hostname", "", 22, ErrInvalidHostname},
		{"hostname with space", "bad host", 22, ErrInvalidHostname},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd, err := NewConnectionDetails(tt.hostname, tt.port)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cd.Port != tt.port || cd.Hostname != tt.hostname {
				t.Errorf("got %+v", cd)
			}
		})
	}
}

func TestParseConnectionDetails(t *testing.T) {
	cd, err := ParseConnectionDetails("example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cd.Port != DefaultSSHPort {
		t.Errorf("expected default port, got %d", cd.Port)
	}
	if cd.Addr() != "example.com:22" {
		t.Errorf("unexpected addr %q", cd.Addr())
	}

	if _, err := ParseConnectionDetails("example.com", "22a"); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("expected ErrInvalidPort for malformed port, got %v", err)
	}
}

func TestPublicKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  PublicKey
		want string
	}{
		{"with comment", PublicKey{Type: "ssh-ed25519", Base64: "AAAA", Comment: "alice@laptop"}, "ssh-ed25519 AAAA alice@laptop"},
		{"without comment", PublicKey{Type: "ssh-ed25519", Base64: "AAAA"}, "ssh-ed25519 AAAA"},
		{"with options", PublicKey{Type: "ssh-rsa", Base64: "BBBB", Options: "no-pty"}, "no-pty ssh-rsa BBBB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublicKeyIdentityIgnoresComment(t *testing.T) {
	a := PublicKey{Type: "ssh-ed25519", Base64: "AAAA", Comment: "one"}
	b := PublicKey{Type: "ssh-ed25519", Base64: "AAAA", Comment: "two", Options: "no-pty"}
	if a.Identity() != b.Identity() {
		t.Fatalf("expected equal identities, got %v and %v", a.Identity(), b.Identity())
	}
}

func TestOwnerVariants(t *testing.T) {
	var k PublicKey
	if !k.IsUnowned() {
		t.Fatalf("nil owner should count as unowned")
	}
	k.Owner = UserOwner{UserID: 3}
	if k.IsUnowned() {
		t.Fatalf("user-owned key reported as unowned")
	}
	if got := k.Owner.String(); got != "user:3" {
		t.Errorf("unexpected owner string %q", got)
	}
	if got := (HostOwner{HostID: 7}).String(); got != "host:7" {
		t.Errorf("unexpected owner string %q", got)
	}
}

func TestHostDiffClassification(t *testing.T) {
	key := PublicKey{Type: "ssh-ed25519", Base64: "AAAA"}
	tests := []struct {
		name string
		diff HostDiff
		want DriftClassification
	}{
		{"clean", HostDiff{Matching: []PublicKey{key}}, DriftNone},
		{"extra only", HostDiff{Unexpected: []PublicKey{key}}, DriftInfo},
		{"missing", HostDiff{ExpectedAbsent: []PublicKey{key}, Unexpected: []PublicKey{key}}, DriftWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.diff.Classification(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if tt.diff.HasDrift() != (tt.want != DriftNone) {
				t.Errorf("HasDrift inconsistent with classification %s", tt.want)
			}
		})
	}
}

func TestHostDiffSummary(t *testing.T) {
	d := HostDiff{Host: Host{Name: "web-1"}, ExpectedAbsent: []PublicKey{{}}, Unexpected: []PublicKey{{}, {}}}
	s := d.Summary()
	if !strings.Contains(s, "1 missing") || !strings.Contains(s, "2 unexpected") {
		t.Errorf("unexpected summary %q", s)
	}
}

func TestHostAddr(t *testing.T) {
	h := Host{Address: "db.internal"}
	if h.Addr() != "db.internal:22" {
		t.Errorf("expected default port, got %q", h.Addr())
	}
	h.Port = 2200
	if h.Addr() != "db.internal:2200" {
		t.Errorf("got %q", h.Addr())
	}
}

func TestHostConnectionDetails(t *testing.T) {
	tests := []struct {
		name    string
		host    Host
		want    string
		wantErr error
	}{
		{"default port", Host{Address: "db.internal"}, "db.internal:22", nil},
		{"explicit port", Host{Address: "10.0.0.5", Port: 2200}, "10.0.0.5:2200", nil},
		{"port out of range", Host{Address: "db.internal", Port: 65536}, "", ErrInvalidPort},
		{"malformed address", Host{Address: "db internal", Port: 22}, "", ErrInvalidHostname},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd, err := tt.host.ConnectionDetails()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || cd.Addr() != tt.want {
				t.Fatalf("ConnectionDetails() = %q, %v; want %q", cd.Addr(), err, tt.want)
			}
		})
	}
}
