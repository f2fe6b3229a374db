// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/reconcile"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/trust"
)

// Options tune the service. Zero values fall back to package defaults.
type Options struct {
	ConnectTimeout time.Duration
	TrustTimeout   time.Duration
	PendingTTL     time.Duration
	MaxJumpDepth   int
	// AuditConcurrency bounds how many hosts AuditAll contacts at once.
	AuditConcurrency int
}

// Service is the entry point for every host and key operation.
type Service struct {
	store       Store
	router      Router
	trust       *trust.Manager
	engine      *reconcile.Engine
	concurrency int
}

// NewService builds a Service on store, authenticating with cred.
func NewService(store Store, cred *sshclient.Credential, opts Options) *Service {
	router := sshclient.NewRouter(store, cred, sshclient.Options{
		ConnectTimeout: opts.ConnectTimeout,
		MaxJumpDepth:   opts.MaxJumpDepth,
	})
	return NewServiceWithRouter(store, router, opts)
}

// NewServiceWithRouter builds a Service on an existing router.
func NewServiceWithRouter(store Store, router Router, opts Options) *Service {
	if opts.AuditConcurrency <= 0 {
		opts.AuditConcurrency = DefaultAuditConcurrency
	}
	return &Service{
		store:  store,
		router: router,
		trust: trust.NewManager(store, router, trust.Options{
			TrustTimeout: opts.TrustTimeout,
			PendingTTL:   opts.PendingTTL,
		}),
		engine:      reconcile.NewEngine(store, router),
		concurrency: opts.AuditConcurrency,
	}
}

// ResolveAndAuthenticate opens an authenticated session to host. The caller
// owns the session and must close it.
func (s *Service) ResolveAndAuthenticate(ctx context.Context, host model.Host) (sshclient.Session, error) {
	return s.router.Resolve(ctx, host)
}

// BeginTrust probes a new host and returns the fingerprint to review.
func (s *Service) BeginTrust(ctx context.Context, req trust.Request) (trust.Offer, error) {
	return s.trust.Begin(ctx, req)
}

// ConfirmTrust stores the host behind token once fingerprint matches the
// offer and login succeeds.
func (s *Service) ConfirmTrust(ctx context.Context, token, fingerprint string) (*model.Host, error) {
	return s.trust.Confirm(ctx, token, fingerprint)
}

// RejectTrust discards the pending request behind token.
func (s *Service) RejectTrust(ctx context.Context, token string) error {
	return s.trust.Reject(ctx, token)
}

// GetHostDiff compares host's authorized_keys with the database.
func (s *Service) GetHostDiff(ctx context.Context, host model.Host) (model.HostDiff, error) {
	return s.engine.GetHostDiff(ctx, host)
}

// RemoveKey removes keyBase64 from host's authorized_keys and records the
// removal in the audit log.
func (s *Service) RemoveKey(ctx context.Context, host model.Host, keyBase64 string) error {
	if err := s.router.RemoveKey(ctx, host, keyBase64); err != nil {
		return err
	}
	details := fmt.Sprintf("host: %s, key: %s", host.Name, shortKey(keyBase64))
	if err := s.store.LogAction(context.WithoutCancel(ctx), "REMOVE_KEY", details); err != nil {
		logging.Warnf("audit: recording key removal on %s failed: %v", host.Name, err)
	}
	return nil
}

// AuthorizeUser grants userID access to hostID with the given
// authorized_keys options.
func (s *Service) AuthorizeUser(ctx context.Context, hostID, userID int, options string) error {
	return s.store.AuthorizeUser(ctx, hostID, userID, options)
}

// RevokeUser removes the authorization of userID on hostID.
func (s *Service) RevokeUser(ctx context.Context, hostID, userID int) error {
	return s.store.RevokeUser(ctx, hostID, userID)
}

// AssignKey gives a key, typically one discovered by a diff, an owner.
func (s *Service) AssignKey(ctx context.Context, keyID int, owner model.Owner) error {
	return s.store.AssignKey(ctx, keyID, owner)
}

// SetJumpHost changes the jump host of hostID; nil connects directly.
func (s *Service) SetJumpHost(ctx context.Context, hostID int, jumpVia *int) error {
	return s.store.SetJumpHost(ctx, hostID, jumpVia)
}

// DeleteHost removes a host that no other host jumps through.
func (s *Service) DeleteHost(ctx context.Context, id int) error {
	return s.store.DeleteHost(ctx, id)
}

// Store returns the underlying store for read-only listings.
func (s *Service) Store() Store { return s.store }

func shortKey(b64 string) string {
	if len(b64) <= 24 {
		return b64
	}
	return b64[:12] + "..." + b64[len(b64)-8:]
}

var _ Store = (*db.BunStore)(nil)
var _ Router = (*sshclient.Router)(nil)
