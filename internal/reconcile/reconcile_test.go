// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/reconcile"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/testutil"
)

func key(typ, b64 string) model.PublicKey {
	return model.PublicKey{Type: typ, Base64: b64, Owner: model.Unowned{}}
}

func identities(keys []model.PublicKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Identity().String())
	}
	return out
}

func TestDiffPartitions(t *testing.T) {
	host := model.Host{ID: 1, Name: "web"}
	tests := []struct {
		name                         string
		expected, observed           []model.PublicKey
		matching, absent, unexpected []string
	}{
		{
			name: "empty",
		},
		{
			name:     "in sync",
			expected: []model.PublicKey{key("ssh-ed25519", "AAA")},
			observed: []model.PublicKey{key("ssh-ed25519", "AAA")},
			matching: []string{"ssh-ed25519 AAA"},
		},
		{
			name:       "mixed",
			expected:   []model.PublicKey{key("ssh-ed25519", "AAA"), key("ssh-ed25519", "CCC")},
			observed:   []model.PublicKey{key("ssh-rsa", "BBB"), key("ssh-ed25519", "AAA")},
			matching:   []string{"ssh-ed25519 AAA"},
			absent:     []string{"ssh-ed25519 CCC"},
			unexpected: []string{"ssh-rsa BBB"},
		},
		{
			name:       "type is part of the identity",
			expected:   []model.PublicKey{key("ssh-ed25519", "AAA")},
			observed:   []model.PublicKey{key("ssh-rsa", "AAA")},
			absent:     []string{"ssh-ed25519 AAA"},
			unexpected: []string{"ssh-rsa AAA"},
		},
		{
			name:       "duplicates reported once",
			expected:   []model.PublicKey{key("ssh-ed25519", "AAA"), key("ssh-ed25519", "AAA")},
			observed:   []model.PublicKey{key("ssh-ed25519", "AAA"), key("ssh-rsa", "BBB"), key("ssh-rsa", "BBB")},
			matching:   []string{"ssh-ed25519 AAA"},
			unexpected: []string{"ssh-rsa BBB"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := reconcile.Diff(host, tt.expected, tt.observed)
			check := func(what string, got []model.PublicKey, want []string) {
				t.Helper()
				if g := strings.Join(identities(got), ","); g != strings.Join(want, ",") {
					t.Errorf("%s = [%s], want %v", what, g, want)
				}
			}
			check("matching", d.Matching, tt.matching)
			check("expected absent", d.ExpectedAbsent, tt.absent)
			check("unexpected", d.Unexpected, tt.unexpected)
		})
	}
}

func TestDiffIgnoresOptionsAndComments(t *testing.T) {
	exp := key("ssh-ed25519", "AAA")
	exp.Options = `from="10.0.0.0/8"`
	exp.Owner = model.UserOwner{UserID: 3}
	obs := key("ssh-ed25519", "AAA")
	obs.Comment = "laptop"

	d := reconcile.Diff(model.Host{Name: "web"}, []model.PublicKey{exp}, []model.PublicKey{obs})
	if len(d.Matching) != 1 || d.HasDrift() {
		t.Fatalf("expected a single match, got %+v", d)
	}
	if d.Matching[0].Options != exp.Options || d.Matching[0].Owner != exp.Owner {
		t.Fatalf("matching entry should carry the expected key, got %+v", d.Matching[0])
	}
}

type fakeResolver struct {
	sess *testutil.FakeSession
	err  error
}

func (r *fakeResolver) Resolve(context.Context, model.Host) (sshclient.Session, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.sess, nil
}

func newStore(t *testing.T) *db.BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:reconcile_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetHostDiffRecordsUnexpectedKeysOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	host, err := store.AddHost(ctx, model.Host{Name: "web", Address: "192.0.2.10", Port: 22, Username: "root", KeyFingerprint: "SHA256:x"})
	if err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	alice, err := store.AddUser(ctx, "alice")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if _, err := store.AddPublicKey(ctx, model.PublicKey{Type: "ssh-ed25519", Base64: "AAA", Comment: "alice", Owner: model.UserOwner{UserID: alice.ID}}); err != nil {
		t.Fatalf("AddPublicKey: %v", err)
	}
	if err := store.AuthorizeUser(ctx, host.ID, alice.ID, ""); err != nil {
		t.Fatalf("AuthorizeUser: %v", err)
	}

	sess := testutil.NewFakeSession("ssh-ed25519 AAA alice\nssh-rsa BBB intruder\n")
	engine := reconcile.NewEngine(store, &fakeResolver{sess: sess})

	for run := 1; run <= 2; run++ {
		d, err := engine.GetHostDiff(ctx, host)
		if err != nil {
			t.Fatalf("run %d: GetHostDiff: %v", run, err)
		}
		if got := identities(d.Matching); len(got) != 1 || got[0] != "ssh-ed25519 AAA" {
			t.Fatalf("run %d: matching = %v", run, got)
		}
		if got := identities(d.Unexpected); len(got) != 1 || got[0] != "ssh-rsa BBB" {
			t.Fatalf("run %d: unexpected = %v", run, got)
		}
		if len(d.ExpectedAbsent) != 0 {
			t.Fatalf("run %d: expected absent = %v", run, identities(d.ExpectedAbsent))
		}
		if !sess.IsClosed() {
			t.Fatalf("run %d: session not closed", run)
		}
	}

	unowned, err := store.GetKeysByOwner(ctx, model.Unowned{})
	if err != nil {
		t.Fatalf("GetKeysByOwner: %v", err)
	}
	if len(unowned) != 1 || unowned[0].Type != "ssh-rsa" || unowned[0].Base64 != "BBB" || unowned[0].Comment != "intruder" {
		t.Fatalf("intruder key should be recorded exactly once, got %+v", unowned)
	}
}

type failingStore struct {
	expected []model.PublicKey
	upserts  int
}

func (s *failingStore) GetExpectedKeys(context.Context, int) ([]model.PublicKey, error) {
	return s.expected, nil
}

func (s *failingStore) UpsertPublicKey(context.Context, model.PublicKey) (model.PublicKey, bool, error) {
	s.upserts++
	return model.PublicKey{}, false, db.ErrDatabase
}

func TestGetHostDiffAbsorbsRecordFailures(t *testing.T) {
	store := &failingStore{}
	engine := reconcile.NewEngine(store, &fakeResolver{sess: testutil.NewFakeSession("ssh-rsa BBB\nssh-rsa CCC\n")})

	d, err := engine.GetHostDiff(context.Background(), model.Host{ID: 1, Name: "web"})
	if err != nil {
		t.Fatalf("record failures must not fail the diff: %v", err)
	}
	if len(d.Unexpected) != 2 || store.upserts != 2 {
		t.Fatalf("unexpected = %d, upserts = %d", len(d.Unexpected), store.upserts)
	}
}

func TestGetHostDiffErrors(t *testing.T) {
	ctx := context.Background()
	host := model.Host{ID: 1, Name: "web"}

	t.Run("resolve", func(t *testing.T) {
		want := &sshclient.ConnectionError{Host: "web", Kind: sshclient.FailureRefused, Err: errors.New("refused")}
		engine := reconcile.NewEngine(&failingStore{}, &fakeResolver{err: want})
		_, err := engine.GetHostDiff(ctx, host)
		var ce *sshclient.ConnectionError
		if !errors.As(err, &ce) || ce.Kind != sshclient.FailureRefused {
			t.Fatalf("expected connection error, got %v", err)
		}
	})

	t.Run("listing fails", func(t *testing.T) {
		sess := testutil.NewFakeSession("")
		sess.RunErr = &sshclient.ExecutionError{Command: "cat", ExitStatus: 1, Stderr: "permission denied"}
		engine := reconcile.NewEngine(&failingStore{}, &fakeResolver{sess: sess})
		_, err := engine.GetHostDiff(ctx, host)
		var ee *sshclient.ExecutionError
		if !errors.As(err, &ee) {
			t.Fatalf("expected *ExecutionError, got %v", err)
		}
		if !sess.IsClosed() {
			t.Fatalf("session must be closed on failure")
		}
	})
}
