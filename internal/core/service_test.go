// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/testutil"
	"github.com/toeirei/keymaster-hub/internal/trust"
	"golang.org/x/crypto/ssh"
)

func newStore(t *testing.T) *db.BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:core_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newService(t *testing.T, store *db.BunStore, signer ssh.Signer) *Service {
	t.Helper()
	return NewService(store, sshclient.NewSignerCredential(signer), Options{
		ConnectTimeout: 5 * time.Second,
		TrustTimeout:   5 * time.Second,
	})
}

// trustHost runs the trust flow against srv and returns the stored host.
func trustHost(t *testing.T, svc *Service, name string, srv *testutil.SSHServer) model.Host {
	t.Helper()
	ctx := context.Background()
	offer, err := svc.BeginTrust(ctx, trust.Request{Name: name, Address: srv.Host(), Port: srv.Port(), Username: "root"})
	if err != nil {
		t.Fatalf("BeginTrust: %v", err)
	}
	host, err := svc.ConfirmTrust(ctx, offer.Token, offer.Fingerprint)
	if err != nil {
		t.Fatalf("ConfirmTrust: %v", err)
	}
	return *host
}

func hasAction(t *testing.T, store *db.BunStore, action string) bool {
	t.Helper()
	entries, err := store.GetAllAuditLogEntries(context.Background())
	if err != nil {
		t.Fatalf("GetAllAuditLogEntries: %v", err)
	}
	for _, e := range entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	admin := testutil.NewSigner(t)
	alice := testutil.NewSigner(t)
	intruder := testutil.NewSigner(t)
	srv := testutil.NewSSHServer(t, admin.PublicKey())

	store := newStore(t)
	svc := newService(t, store, admin)
	host := trustHost(t, svc, "web", srv)

	user, err := store.AddUser(ctx, "alice")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	aliceKey, err := store.AddPublicKey(ctx, model.PublicKey{
		Type:   alice.PublicKey().Type(),
		Base64: strings.Fields(testutil.AuthorizedLine(alice.PublicKey(), ""))[1],
		Owner:  model.UserOwner{UserID: user.ID},
	})
	if err != nil {
		t.Fatalf("AddPublicKey: %v", err)
	}
	if err := svc.AuthorizeUser(ctx, host.ID, user.ID, "no-pty"); err != nil {
		t.Fatalf("AuthorizeUser: %v", err)
	}

	sess, err := svc.ResolveAndAuthenticate(ctx, host)
	if err != nil {
		t.Fatalf("ResolveAndAuthenticate: %v", err)
	}
	_ = sess.Close()

	intruderLine := testutil.AuthorizedLine(intruder.PublicKey(), "intruder")
	srv.WriteAuthorizedKeys(t, "no-pty "+testutil.AuthorizedLine(alice.PublicKey(), "alice")+"\n"+intruderLine+"\n")

	d, err := svc.GetHostDiff(ctx, host)
	if err != nil {
		t.Fatalf("GetHostDiff: %v", err)
	}
	if len(d.Matching) != 1 || d.Matching[0].ID != aliceKey.ID || d.Matching[0].Options != "no-pty" {
		t.Fatalf("matching = %+v", d.Matching)
	}
	if len(d.Unexpected) != 1 || d.Unexpected[0].Comment != "intruder" {
		t.Fatalf("unexpected = %+v", d.Unexpected)
	}

	if err := svc.RemoveKey(ctx, host, d.Unexpected[0].Base64); err != nil {
		t.Fatalf("RemoveKey: %v", err)
	}
	if got := srv.ReadAuthorizedKeys(t); strings.Contains(got, "intruder") || !strings.Contains(got, "alice") {
		t.Fatalf("authorized_keys after removal:\n%s", got)
	}
	if !hasAction(t, store, "REMOVE_KEY") {
		t.Fatalf("removal should be audited")
	}

	d, err = svc.GetHostDiff(ctx, host)
	if err != nil {
		t.Fatalf("GetHostDiff: %v", err)
	}
	if d.HasDrift() {
		t.Fatalf("expected no drift after removal: %s", d.Summary())
	}

	discovered, err := store.GetKeysByOwner(ctx, model.Unowned{})
	if err != nil || len(discovered) != 1 {
		t.Fatalf("intruder key should stay recorded as unowned: %+v, %v", discovered, err)
	}
	if err := svc.AssignKey(ctx, discovered[0].ID, model.UserOwner{UserID: user.ID}); err != nil {
		t.Fatalf("AssignKey: %v", err)
	}
}

func TestServiceRemoveKeyFailureIsNotAudited(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := newService(t, store, testutil.NewSigner(t))

	host, err := store.AddHost(ctx, model.Host{Name: "gone", Address: "127.0.0.1", Port: closedPort(t), Username: "root", KeyFingerprint: "SHA256:x"})
	if err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	err = svc.RemoveKey(ctx, host, "AAAA")
	var ce *sshclient.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if hasAction(t, store, "REMOVE_KEY") {
		t.Fatalf("failed removal must not be audited")
	}
}

func TestAuditAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	admin := testutil.NewSigner(t)
	srvA := testutil.NewSSHServer(t, admin.PublicKey())
	srvB := testutil.NewSSHServer(t, admin.PublicKey())

	store := newStore(t)
	svc := newService(t, store, admin)
	trustHost(t, svc, "bravo", srvB)
	trustHost(t, svc, "alpha", srvA)
	if _, err := store.AddHost(ctx, model.Host{Name: "charlie", Address: "127.0.0.1", Port: closedPort(t), Username: "root", KeyFingerprint: "SHA256:x"}); err != nil {
		t.Fatalf("AddHost: %v", err)
	}

	results, err := svc.AuditAll(ctx)
	if err != nil {
		t.Fatalf("AuditAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected a result per host, got %d", len(results))
	}
	for i, want := range []string{"alpha", "bravo", "charlie"} {
		if results[i].Host.Name != want {
			t.Fatalf("result %d is %s, want %s", i, results[i].Host.Name, want)
		}
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("reachable hosts failed: %v / %v", results[0].Err, results[1].Err)
	}
	if results[2].Err == nil {
		t.Fatalf("unreachable host should report an error")
	}
	if !hasAction(t, store, "AUDIT_SUCCESS") || !hasAction(t, store, "AUDIT_FAIL") {
		t.Fatalf("audit outcomes should be logged")
	}
}

func TestServiceJumpHostEditing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := newService(t, store, testutil.NewSigner(t))

	add := func(name string, via *int) model.Host {
		h, err := store.AddHost(ctx, model.Host{Name: name, Address: "192.0.2.1", Port: 22, Username: "root", KeyFingerprint: "SHA256:" + name, JumpVia: via})
		if err != nil {
			t.Fatalf("AddHost %s: %v", name, err)
		}
		return h
	}
	a := add("a", nil)
	b := add("b", &a.ID)

	if err := svc.SetJumpHost(ctx, a.ID, &b.ID); !errors.Is(err, db.ErrJumpCycle) {
		t.Fatalf("expected ErrJumpCycle, got %v", err)
	}
	if err := svc.DeleteHost(ctx, a.ID); !errors.Is(err, db.ErrHostInUse) {
		t.Fatalf("expected ErrHostInUse, got %v", err)
	}
	if err := svc.SetJumpHost(ctx, b.ID, nil); err != nil {
		t.Fatalf("SetJumpHost: %v", err)
	}
	if err := svc.DeleteHost(ctx, a.ID); err != nil {
		t.Fatalf("DeleteHost: %v", err)
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}
