// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package trust implements trust on first use for new hosts. Begin probes the
// host and offers the fingerprint of the key it presents; Confirm, given the
// same fingerprint back, authenticates against exactly that key and only
// then stores the host.
//
// A request moves Requested -> FingerprintOffered -> Confirmed, or ends in
// Rejected or TimedOut. Offered requests are kept in the store under a
// random token until they are confirmed, rejected or expire.
package trust // import "github.com/toeirei/keymaster-hub/internal/trust"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/sshkey"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultTrustTimeout = 15 * time.Second
	DefaultPendingTTL   = 10 * time.Minute
)

var (
	// ErrTrustTimeout is returned when the host did not present a key in
	// time, or when a pending request expired before confirmation.
	ErrTrustTimeout = errors.New("host key trust timed out")
	// ErrUnknownToken is returned for tokens with no pending request.
	ErrUnknownToken = errors.New("unknown or already used trust token")
)

// State is the stage a trust request is in.
type State int

const (
	Requested State = iota
	FingerprintOffered
	Confirmed
	Rejected
	TimedOut
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case FingerprintOffered:
		return "fingerprint-offered"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome maps the error returned by Confirm to the state the request ended
// in. Errors that leave the request pending, such as a failed login, map to
// FingerprintOffered: the same token can be confirmed again.
func Outcome(err error) State {
	var te *sshclient.TrustError
	switch {
	case err == nil:
		return Confirmed
	case errors.Is(err, ErrTrustTimeout):
		return TimedOut
	case errors.As(err, &te), errors.Is(err, ErrUnknownToken):
		return Rejected
	default:
		return FingerprintOffered
	}
}

// Request asks to register a new host.
type Request struct {
	Name     string `validate:"required,max=191"`
	Address  string `validate:"required"`
	Port     int    `validate:"omitempty,min=1,max=65535"`
	Username string `validate:"required"`
	JumpVia  *int
}

// Offer is what the operator reviews before confirming.
type Offer struct {
	Token       string
	Fingerprint string
	KeyType     string
	// Warning is set for weak host key algorithms.
	Warning   string
	ExpiresAt time.Time
}

// Store is the persistence the trust flow needs.
type Store interface {
	ValidateJumpVia(ctx context.Context, hostID, jumpVia int) error
	SaveTrustRequest(ctx context.Context, r model.TrustRequest) error
	GetTrustRequest(ctx context.Context, token string) (*model.TrustRequest, error)
	DeleteTrustRequest(ctx context.Context, token string) error
	PurgeExpiredTrustRequests(ctx context.Context, now time.Time) (int, error)
	AddHost(ctx context.Context, h model.Host) (model.Host, error)
	UpsertPublicKey(ctx context.Context, k model.PublicKey) (model.PublicKey, bool, error)
}

// Connector reaches hosts that are not stored yet.
type Connector interface {
	Probe(ctx context.Context, t sshclient.Target) (ssh.PublicKey, error)
	ConnectFingerprint(ctx context.Context, t sshclient.Target, fingerprint string) (sshclient.Session, error)
}

// Options tune a Manager.
type Options struct {
	// TrustTimeout bounds the wait for the host to present its key.
	TrustTimeout time.Duration
	// PendingTTL is how long an offered fingerprint can be confirmed.
	PendingTTL time.Duration
}

// Manager runs the trust flow.
type Manager struct {
	store    Store
	conn     Connector
	timeout  time.Duration
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewManager returns a Manager.
func NewManager(store Store, conn Connector, opts Options) *Manager {
	if opts.TrustTimeout <= 0 {
		opts.TrustTimeout = DefaultTrustTimeout
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	return &Manager{
		store:    store,
		conn:     conn,
		timeout:  opts.TrustTimeout,
		ttl:      opts.PendingTTL,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

func (r Request) target() sshclient.Target {
	port := r.Port
	if port == 0 {
		port = model.DefaultSSHPort
	}
	return sshclient.Target{Name: r.Name, Address: strings.TrimSpace(r.Address), Port: port, Username: r.Username, JumpVia: r.JumpVia}
}

// Begin validates req, probes the host for its key and records the offer.
func (m *Manager) Begin(ctx context.Context, req Request) (Offer, error) {
	if err := validate.Struct(req); err != nil {
		return Offer{}, fmt.Errorf("invalid trust request: %w", err)
	}
	t := req.target()
	if _, err := model.NewConnectionDetails(t.Address, t.Port); err != nil {
		return Offer{}, err
	}
	if req.JumpVia != nil {
		if err := m.store.ValidateJumpVia(ctx, 0, *req.JumpVia); err != nil {
			return Offer{}, err
		}
	}
	if n, err := m.store.PurgeExpiredTrustRequests(ctx, m.now()); err != nil {
		logging.Warnf("trust: purging expired requests failed: %v", err)
	} else if n > 0 {
		logging.Debugf("trust: purged %d expired request(s)", n)
	}

	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	key, err := m.conn.Probe(pctx, t)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Offer{}, fmt.Errorf("%w: %s did not present a host key within %s", ErrTrustTimeout, t.Addr(), m.timeout)
		}
		return Offer{}, err
	}

	now := m.now().UTC()
	pr := model.TrustRequest{
		Token:       m.newToken(),
		Name:        req.Name,
		Address:     t.Address,
		Port:        t.Port,
		Username:    t.Username,
		JumpVia:     t.JumpVia,
		Fingerprint: ssh.FingerprintSHA256(key),
		HostKey:     strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key))),
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.SaveTrustRequest(ctx, pr); err != nil {
		return Offer{}, err
	}
	logging.Infof("trust: offered %s for %s (%s)", pr.Fingerprint, pr.Name, t.Addr())
	return Offer{
		Token:       pr.Token,
		Fingerprint: pr.Fingerprint,
		KeyType:     key.Type(),
		Warning:     sshkey.CheckHostKeyAlgorithm(key),
		ExpiresAt:   pr.ExpiresAt,
	}, nil
}

// Confirm completes the request behind token. fingerprint must be the one
// that was offered; anything else rejects the request. The host is stored
// only after a handshake trusting exactly that fingerprint has
// authenticated. The host's server keys are then recorded as host keys,
// best effort.
func (m *Manager) Confirm(ctx context.Context, token, fingerprint string) (*model.Host, error) {
	pr, err := m.store.GetTrustRequest(ctx, token)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	if pr.Expired(m.now()) {
		m.discard(ctx, token)
		return nil, fmt.Errorf("%w: request for %s expired at %s", ErrTrustTimeout, pr.Name, pr.ExpiresAt.Format(time.RFC3339))
	}
	if strings.TrimSpace(fingerprint) != pr.Fingerprint {
		m.discard(ctx, token)
		return nil, &sshclient.TrustError{Host: pr.Name, Presented: fingerprint, Trusted: []string{pr.Fingerprint}}
	}
	if pr.JumpVia != nil {
		if err := m.store.ValidateJumpVia(ctx, 0, *pr.JumpVia); err != nil {
			return nil, err
		}
	}

	t := sshclient.Target{Name: pr.Name, Address: pr.Address, Port: pr.Port, Username: pr.Username, JumpVia: pr.JumpVia}
	sess, err := m.conn.ConnectFingerprint(ctx, t, pr.Fingerprint)
	if err != nil {
		var te *sshclient.TrustError
		if errors.As(err, &te) {
			m.discard(ctx, token)
		}
		return nil, fmt.Errorf("confirming %s: %w", pr.Name, err)
	}
	identity, lerr := sshclient.ListServerIdentityKeys(ctx, sess)
	if lerr != nil {
		logging.Warnf("trust: reading server keys of %s failed: %v", pr.Name, lerr)
	}
	_ = sess.Close()

	host, err := m.store.AddHost(ctx, model.Host{
		Name:           pr.Name,
		Address:        pr.Address,
		Port:           pr.Port,
		Username:       pr.Username,
		KeyFingerprint: pr.Fingerprint,
		JumpVia:        pr.JumpVia,
	})
	if err != nil {
		return nil, err
	}
	m.discard(ctx, token)

	for _, k := range identity {
		k.Owner = model.HostOwner{HostID: host.ID}
		k.Options = ""
		if _, _, err := m.store.UpsertPublicKey(ctx, k); err != nil {
			logging.Warnf("trust: recording server key %s of %s failed: %v", k.Type, host.Name, err)
		}
	}
	logging.Infof("trust: confirmed %s (%s) with %s", host.Name, host.Addr(), host.KeyFingerprint)
	return &host, nil
}

// Reject drops the request behind token without contacting the host again.
func (m *Manager) Reject(ctx context.Context, token string) error {
	if _, err := m.store.GetTrustRequest(ctx, token); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrUnknownToken
		}
		return err
	}
	m.discard(ctx, token)
	logging.Infof("trust: request %s rejected", token)
	return nil
}

func (m *Manager) discard(ctx context.Context, token string) {
	if err := m.store.DeleteTrustRequest(context.WithoutCancel(ctx), token); err != nil {
		logging.Warnf("trust: deleting request failed: %v", err)
	}
}
