// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"os/user"
	"strings"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/uptrace/bun"
)

// currentUsername is the operator recorded in audit entries.
func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	// Windows reports DOMAIN\user.
	if parts := strings.Split(u.Username, `\`); len(parts) > 1 {
		return parts[1]
	}
	return u.Username
}

// logAction appends an audit entry using q, so that callers inside a
// transaction record the entry atomically with their change.
func logAction(ctx context.Context, q bun.IDB, action, details string) error {
	_, err := ExecRaw(ctx, q, "INSERT INTO audit_log (username, action, details) VALUES (?, ?, ?)", currentUsername(), action, details)
	return MapDBError(err)
}

// LogAction appends an audit entry for an operation performed outside the
// store, such as a remote key removal.
func (s *BunStore) LogAction(ctx context.Context, action, details string) error {
	return wrapErr("audit log", logAction(ctx, s.bun, action, details))
}

// GetAllAuditLogEntries returns the audit log, newest first.
func (s *BunStore) GetAllAuditLogEntries(ctx context.Context) ([]model.AuditLogEntry, error) {
	var ms []AuditLogModel
	if err := s.bun.NewSelect().Model(&ms).OrderExpr("id DESC").Scan(ctx); err != nil {
		return nil, wrapErr("audit log", err)
	}
	out := make([]model.AuditLogEntry, 0, len(ms))
	for _, m := range ms {
		out = append(out, auditLogModelToModel(m))
	}
	return out, nil
}
