// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package trust

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/testutil"
	"golang.org/x/crypto/ssh"
)

func newStore(t *testing.T) *db.BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:trust_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newManager(t *testing.T, signer ssh.Signer) (*Manager, *db.BunStore) {
	t.Helper()
	store := newStore(t)
	router := sshclient.NewRouter(store, sshclient.NewSignerCredential(signer), sshclient.Options{ConnectTimeout: 5 * time.Second})
	return NewManager(store, router, Options{TrustTimeout: 5 * time.Second}), store
}

func requestFor(srv *testutil.SSHServer) Request {
	return Request{Name: "web", Address: srv.Host(), Port: srv.Port(), Username: "root"}
}

func TestBeginAndConfirm(t *testing.T) {
	signer := testutil.NewSigner(t)
	srv := testutil.NewSSHServer(t, signer.PublicKey())
	srv.SetServerKeys(testutil.AuthorizedLine(srv.HostSigner.PublicKey(), "root@web") + "\n")
	m, store := newManager(t, signer)
	ctx := context.Background()

	offer, err := m.Begin(ctx, requestFor(srv))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if offer.Fingerprint != srv.Fingerprint() || offer.KeyType != ssh.KeyAlgoED25519 || offer.Warning != "" {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	if hosts, _ := store.GetAllHosts(ctx); len(hosts) != 0 {
		t.Fatalf("no host may be stored before confirmation")
	}

	host, err := m.Confirm(ctx, offer.Token, offer.Fingerprint)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if Outcome(err) != Confirmed {
		t.Fatalf("Outcome = %v", Outcome(err))
	}
	if host.ID == 0 || host.KeyFingerprint != srv.Fingerprint() || host.Port != srv.Port() {
		t.Fatalf("unexpected host: %+v", host)
	}

	hostKeys, err := store.GetKeysByOwner(ctx, model.HostOwner{HostID: host.ID})
	if err != nil || len(hostKeys) != 1 {
		t.Fatalf("server key should be recorded as host key: %+v, %v", hostKeys, err)
	}

	if _, err := m.Confirm(ctx, offer.Token, offer.Fingerprint); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("token must be single use, got %v", err)
	}
}

func TestConfirmWithDifferentFingerprintIsRejected(t *testing.T) {
	signer := testutil.NewSigner(t)
	srv := testutil.NewSSHServer(t, signer.PublicKey())
	m, store := newManager(t, signer)
	ctx := context.Background()

	offer, err := m.Begin(ctx, requestFor(srv))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err = m.Confirm(ctx, offer.Token, "SHA256:somethingelse")
	var te *sshclient.TrustError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TrustError, got %v", err)
	}
	if Outcome(err) != Rejected {
		t.Fatalf("Outcome = %v, want rejected", Outcome(err))
	}
	if hosts, _ := store.GetAllHosts(ctx); len(hosts) != 0 {
		t.Fatalf("rejected request must not persist a host, got %+v", hosts)
	}
	if _, err := store.GetTrustRequest(ctx, offer.Token); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("rejected request should be discarded, got %v", err)
	}
}

func TestConfirmAuthenticationFailureKeepsRequest(t *testing.T) {
	srv := testutil.NewSSHServer(t) // accepts nobody
	m, store := newManager(t, testutil.NewSigner(t))
	ctx := context.Background()

	offer, err := m.Begin(ctx, requestFor(srv))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err = m.Confirm(ctx, offer.Token, offer.Fingerprint)
	var ce *sshclient.ConnectionError
	if !errors.As(err, &ce) || ce.Kind != sshclient.FailureAuth {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if Outcome(err) != FingerprintOffered {
		t.Fatalf("Outcome = %v", Outcome(err))
	}
	if hosts, _ := store.GetAllHosts(ctx); len(hosts) != 0 {
		t.Fatalf("host must not be stored without authentication")
	}
	if _, err := store.GetTrustRequest(ctx, offer.Token); err != nil {
		t.Fatalf("request should stay pending for a retry: %v", err)
	}
}

// movedConnector sends confirmations to another server, as if the host had
// been replaced between Begin and Confirm.
type movedConnector struct {
	Connector
	to *testutil.SSHServer
}

func (c movedConnector) ConnectFingerprint(ctx context.Context, t sshclient.Target, fp string) (sshclient.Session, error) {
	t.Address, t.Port = c.to.Host(), c.to.Port()
	return c.Connector.ConnectFingerprint(ctx, t, fp)
}

func TestConfirmHostKeyChangedDiscardsRequest(t *testing.T) {
	signer := testutil.NewSigner(t)
	original := testutil.NewSSHServer(t, signer.PublicKey())
	replaced := testutil.NewSSHServer(t, signer.PublicKey())
	store := newStore(t)
	router := sshclient.NewRouter(store, sshclient.NewSignerCredential(signer), sshclient.Options{ConnectTimeout: 5 * time.Second})
	m := NewManager(store, movedConnector{Connector: router, to: replaced}, Options{TrustTimeout: 5 * time.Second})
	ctx := context.Background()

	offer, err := m.Begin(ctx, requestFor(original))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err = m.Confirm(ctx, offer.Token, offer.Fingerprint)
	var te *sshclient.TrustError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TrustError, got %v", err)
	}
	if Outcome(err) != Rejected {
		t.Fatalf("Outcome = %v, want rejected", Outcome(err))
	}
	if _, err := store.GetTrustRequest(ctx, offer.Token); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("request should be discarded, got %v", err)
	}
	if _, err := m.Confirm(ctx, offer.Token, offer.Fingerprint); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("token must not confirm again, got %v", err)
	}
	if hosts, _ := store.GetAllHosts(ctx); len(hosts) != 0 {
		t.Fatalf("no host may be stored")
	}
}

func TestConfirmExpiredRequest(t *testing.T) {
	signer := testutil.NewSigner(t)
	srv := testutil.NewSSHServer(t, signer.PublicKey())
	m, _ := newManager(t, signer)
	ctx := context.Background()

	offer, err := m.Begin(ctx, requestFor(srv))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	m.now = func() time.Time { return offer.ExpiresAt.Add(time.Second) }
	_, err = m.Confirm(ctx, offer.Token, offer.Fingerprint)
	if !errors.Is(err, ErrTrustTimeout) || Outcome(err) != TimedOut {
		t.Fatalf("expected ErrTrustTimeout, got %v", err)
	}
}

// stallingConnector never returns a key before ctx ends.
type stallingConnector struct{ probes atomic.Int32 }

func (c *stallingConnector) Probe(ctx context.Context, _ sshclient.Target) (ssh.PublicKey, error) {
	c.probes.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *stallingConnector) ConnectFingerprint(context.Context, sshclient.Target, string) (sshclient.Session, error) {
	return nil, errors.New("unexpected connect")
}

func TestBeginTimesOut(t *testing.T) {
	conn := &stallingConnector{}
	m := NewManager(newStore(t), conn, Options{TrustTimeout: 50 * time.Millisecond})
	_, err := m.Begin(context.Background(), Request{Name: "slow", Address: "192.0.2.10", Username: "root"})
	if !errors.Is(err, ErrTrustTimeout) {
		t.Fatalf("expected ErrTrustTimeout, got %v", err)
	}
}

func TestBeginValidatesBeforeConnecting(t *testing.T) {
	conn := &stallingConnector{}
	m := NewManager(newStore(t), conn, Options{TrustTimeout: time.Second})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"bad port", Request{Name: "a", Address: "192.0.2.1", Port: 70000, Username: "root"}, nil},
		{"bad address", Request{Name: "a", Address: "not a host!", Username: "root"}, model.ErrInvalidHostname},
		{"missing user", Request{Name: "a", Address: "192.0.2.1"}, nil},
		{"unknown jump host", Request{Name: "a", Address: "192.0.2.1", Username: "root", JumpVia: ptr(99)}, db.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Begin(ctx, tt.req)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := conn.probes.Load(); n != 0 {
		t.Fatalf("invalid requests must not reach the network, got %d probes", n)
	}
}

func ptr(n int) *int { return &n }

func TestReject(t *testing.T) {
	signer := testutil.NewSigner(t)
	srv := testutil.NewSSHServer(t, signer.PublicKey())
	m, store := newManager(t, signer)
	ctx := context.Background()

	offer, err := m.Begin(ctx, requestFor(srv))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Reject(ctx, offer.Token); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := m.Confirm(ctx, offer.Token, offer.Fingerprint); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("rejected token must not confirm, got %v", err)
	}
	if err := m.Reject(ctx, offer.Token); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if hosts, _ := store.GetAllHosts(ctx); len(hosts) != 0 {
		t.Fatalf("no host may be stored")
	}
}
