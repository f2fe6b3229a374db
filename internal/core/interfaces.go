// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core is the surface the CLI and TUI talk to. It wires the store,
// the connection router, the trust flow and the reconciliation engine
// together.
package core // import "github.com/toeirei/keymaster-hub/internal/core"

import (
	"context"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/reconcile"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/trust"
)

// Store is every store operation the service uses. *db.BunStore implements
// it.
type Store interface {
	sshclient.HostStore
	trust.Store
	reconcile.Store

	GetAllHosts(ctx context.Context) ([]model.Host, error)
	SetJumpHost(ctx context.Context, hostID int, jumpVia *int) error
	DeleteHost(ctx context.Context, id int) error
	AuthorizeUser(ctx context.Context, hostID, userID int, options string) error
	RevokeUser(ctx context.Context, hostID, userID int) error
	AssignKey(ctx context.Context, keyID int, owner model.Owner) error

	AuditWriter
}

// AuditWriter is the minimal contract for emitting audit events.
type AuditWriter interface {
	LogAction(ctx context.Context, action, details string) error
}

// Router is what the service needs from the connection layer.
// *sshclient.Router implements it.
type Router interface {
	trust.Connector
	reconcile.Resolver
	RemoveKey(ctx context.Context, host model.Host, keyBase64 string) error
}
