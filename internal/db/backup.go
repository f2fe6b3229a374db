// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/uptrace/bun"
)

// BackupSchemaVersion is written into every export.
const BackupSchemaVersion = 1

// BackupData is the portable form of the store. Pending trust requests are
// transient and not part of it.
type BackupData struct {
	SchemaVersion  int                   `yaml:"schema_version"`
	Hosts          []BackupHost          `yaml:"hosts"`
	Users          []BackupUser          `yaml:"users"`
	PublicKeys     []BackupPublicKey     `yaml:"public_keys"`
	Authorizations []BackupAuthorization `yaml:"authorizations"`
	AuditLog       []BackupAuditEntry    `yaml:"audit_log"`
}

type BackupHost struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	KeyFingerprint string `yaml:"key_fingerprint"`
	JumpVia        *int   `yaml:"jump_via,omitempty"`
}

type BackupUser struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type BackupPublicKey struct {
	ID      int    `yaml:"id"`
	Type    string `yaml:"type"`
	Base64  string `yaml:"base64"`
	Comment string `yaml:"comment,omitempty"`
	HostID  *int   `yaml:"host_id,omitempty"`
	UserID  *int   `yaml:"user_id,omitempty"`
}

type BackupAuthorization struct {
	HostID  int    `yaml:"host_id"`
	UserID  int    `yaml:"user_id"`
	Options string `yaml:"options,omitempty"`
}

type BackupAuditEntry struct {
	Timestamp string `yaml:"timestamp"`
	Username  string `yaml:"username"`
	Action    string `yaml:"action"`
	Details   string `yaml:"details,omitempty"`
}

// ExportBackup reads every table inside one transaction.
func (s *BunStore) ExportBackup(ctx context.Context) (*BackupData, error) {
	data := &BackupData{SchemaVersion: BackupSchemaVersion}
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		var hosts []HostModel
		if err := tx.NewSelect().Model(&hosts).OrderExpr("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, h := range hosts {
			data.Hosts = append(data.Hosts, BackupHost{
				ID: h.ID, Name: h.Name, Address: h.Address, Port: h.Port,
				Username: h.Username, KeyFingerprint: h.KeyFingerprint, JumpVia: intPtr(h.JumpVia),
			})
		}

		var users []UserModel
		if err := tx.NewSelect().Model(&users).OrderExpr("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, u := range users {
			data.Users = append(data.Users, BackupUser{ID: u.ID, Name: u.Name})
		}

		var keys []PublicKeyModel
		if err := tx.NewSelect().Model(&keys).OrderExpr("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, k := range keys {
			data.PublicKeys = append(data.PublicKeys, BackupPublicKey{
				ID: k.ID, Type: k.KeyType, Base64: k.KeyBase64, Comment: k.Comment.String,
				HostID: intPtr(k.HostID), UserID: intPtr(k.UserID),
			})
		}

		var auths []AuthorizationModel
		if err := tx.NewSelect().Model(&auths).OrderExpr("host_id ASC, user_id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, a := range auths {
			data.Authorizations = append(data.Authorizations, BackupAuthorization{HostID: a.HostID, UserID: a.UserID, Options: a.Options.String})
		}

		var audit []AuditLogModel
		if err := tx.NewSelect().Model(&audit).OrderExpr("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, e := range audit {
			m := auditLogModelToModel(e)
			data.AuditLog = append(data.AuditLog, BackupAuditEntry{Timestamp: m.Timestamp, Username: m.Username, Action: m.Action, Details: m.Details})
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("export backup", err)
	}
	return data, nil
}

// ImportBackup replaces the store's content with data in one transaction.
// Record ids are preserved so references inside the backup stay valid.
func (s *BunStore) ImportBackup(ctx context.Context, data *BackupData) error {
	if data.SchemaVersion != BackupSchemaVersion {
		return fmt.Errorf("import backup: unsupported schema version %d", data.SchemaVersion)
	}
	for _, h := range data.Hosts {
		if _, err := (model.Host{Address: h.Address, Port: h.Port}).ConnectionDetails(); err != nil {
			return fmt.Errorf("import backup: host %s: %w", h.Name, err)
		}
	}
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		for _, table := range []string{"authorizations", "public_keys", "trust_requests", "audit_log", "hosts", "users"} {
			if _, err := ExecRaw(ctx, tx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		// Hosts go in without jump hosts first; a host may jump through one
		// with a higher id.
		for _, h := range data.Hosts {
			m := HostModel{ID: h.ID, Name: h.Name, Address: h.Address, Port: h.Port, Username: h.Username, KeyFingerprint: h.KeyFingerprint}
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return fmt.Errorf("host %s: %w", h.Name, MapDBError(err))
			}
		}
		for _, h := range data.Hosts {
			if h.JumpVia == nil {
				continue
			}
			if _, err := tx.NewUpdate().Model((*HostModel)(nil)).Set("jump_via = ?", *h.JumpVia).Where("id = ?", h.ID).Exec(ctx); err != nil {
				return fmt.Errorf("host %s: %w", h.Name, err)
			}
		}
		for _, u := range data.Users {
			m := UserModel{ID: u.ID, Name: u.Name}
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return fmt.Errorf("user %s: %w", u.Name, MapDBError(err))
			}
		}
		for _, k := range data.PublicKeys {
			m := PublicKeyModel{
				ID: k.ID, KeyType: k.Type, KeyBase64: k.Base64, Comment: nullString(k.Comment),
				HostID: nullInt(k.HostID), UserID: nullInt(k.UserID),
			}
			m.KeyHash = keyHash(publicKeyModelToModel(m).Identity())
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return fmt.Errorf("key %d: %w", k.ID, MapDBError(err))
			}
		}
		for _, a := range data.Authorizations {
			m := AuthorizationModel{HostID: a.HostID, UserID: a.UserID, Options: nullString(a.Options)}
			if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
				return fmt.Errorf("authorization %d/%d: %w", a.HostID, a.UserID, MapDBError(err))
			}
		}
		for _, e := range data.AuditLog {
			if _, err := ExecRaw(ctx, tx, "INSERT INTO audit_log (username, action, details) VALUES (?, ?, ?)", e.Username, e.Action, fmt.Sprintf("%s (restored, originally %s)", e.Details, e.Timestamp)); err != nil {
				return fmt.Errorf("audit entry: %w", err)
			}
		}
		if s.dbType == "postgres" {
			for _, table := range []string{"hosts", "users", "public_keys"} {
				q := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)", table, table)
				if _, err := ExecRaw(ctx, tx, q); err != nil {
					return fmt.Errorf("reset sequence %s: %w", table, err)
				}
			}
		}
		return logAction(ctx, tx, "IMPORT_BACKUP", fmt.Sprintf("hosts: %d, users: %d, keys: %d", len(data.Hosts), len(data.Users), len(data.PublicKeys)))
	})
	return wrapErr("import backup", err)
}

// WriteBackup writes zstd-compressed YAML backup data to w.
func WriteBackup(data *BackupData, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := yaml.NewEncoder(zw).Encode(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode backup: %w", err)
	}
	return zw.Close()
}

// ReadBackup decodes a backup produced by WriteBackup.
func ReadBackup(r io.Reader) (*BackupData, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var data BackupData
	if err := yaml.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return &data, nil
}
