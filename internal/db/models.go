// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/uptrace/bun"
)

// HostModel is the bun mapping of the hosts table.
type HostModel struct {
	bun.BaseModel  `bun:"table:hosts"`
	ID             int           `bun:"id,pk,autoincrement"`
	Name           string        `bun:"name"`
	Address        string        `bun:"address"`
	Port           int           `bun:"port"`
	Username       string        `bun:"username"`
	KeyFingerprint string        `bun:"key_fingerprint"`
	JumpVia        sql.NullInt64 `bun:"jump_via"`
}

// UserModel is the bun mapping of the users table.
type UserModel struct {
	bun.BaseModel `bun:"table:users"`
	ID            int    `bun:"id,pk,autoincrement"`
	Name          string `bun:"name"`
}

// PublicKeyModel is the bun mapping of the public_keys table. At most one of
// HostID and UserID is set; neither means the key is unowned.
type PublicKeyModel struct {
	bun.BaseModel `bun:"table:public_keys"`
	ID            int            `bun:"id,pk,autoincrement"`
	KeyType       string         `bun:"key_type"`
	KeyBase64     string         `bun:"key_base64"`
	KeyHash       string         `bun:"key_hash"`
	Comment       sql.NullString `bun:"comment"`
	HostID        sql.NullInt64  `bun:"host_id"`
	UserID        sql.NullInt64  `bun:"user_id"`
}

// AuthorizationModel is the bun mapping of the authorizations table.
type AuthorizationModel struct {
	bun.BaseModel `bun:"table:authorizations"`
	HostID        int            `bun:"host_id,pk"`
	UserID        int            `bun:"user_id,pk"`
	Options       sql.NullString `bun:"options"`
}

// TrustRequestModel is the bun mapping of the trust_requests table.
type TrustRequestModel struct {
	bun.BaseModel `bun:"table:trust_requests"`
	Token         string        `bun:"token,pk"`
	Name          string        `bun:"name"`
	Address       string        `bun:"address"`
	Port          int           `bun:"port"`
	Username      string        `bun:"username"`
	JumpVia       sql.NullInt64 `bun:"jump_via"`
	Fingerprint   string        `bun:"fingerprint"`
	HostKey       string        `bun:"host_key"`
	CreatedAt     time.Time     `bun:"created_at"`
	ExpiresAt     time.Time     `bun:"expires_at"`
}

// AuditLogModel is the bun mapping of the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int            `bun:"id,pk,autoincrement"`
	Timestamp     time.Time      `bun:"timestamp"`
	Username      string         `bun:"username"`
	Action        string         `bun:"action"`
	Details       sql.NullString `bun:"details"`
}

// keyHash is the indexed form of a key identity. Hashing keeps the unique
// index within MySQL's key length limit for long RSA keys.
func keyHash(id model.KeyIdentity) string {
	sum := sha256.Sum256([]byte(id.Type + " " + id.Base64))
	return hex.EncodeToString(sum[:])
}

func hostModelToModel(m HostModel) model.Host {
	return model.Host{
		ID:             m.ID,
		Name:           m.Name,
		Address:        m.Address,
		Port:           m.Port,
		Username:       m.Username,
		KeyFingerprint: m.KeyFingerprint,
		JumpVia:        intPtr(m.JumpVia),
	}
}

func hostToModel(h model.Host) HostModel {
	return HostModel{
		ID:             h.ID,
		Name:           h.Name,
		Address:        h.Address,
		Port:           h.Port,
		Username:       h.Username,
		KeyFingerprint: h.KeyFingerprint,
		JumpVia:        nullInt(h.JumpVia),
	}
}

func publicKeyModelToModel(m PublicKeyModel) model.PublicKey {
	k := model.PublicKey{
		ID:      m.ID,
		Type:    m.KeyType,
		Base64:  m.KeyBase64,
		Comment: m.Comment.String,
		Owner:   model.Unowned{},
	}
	switch {
	case m.HostID.Valid:
		k.Owner = model.HostOwner{HostID: int(m.HostID.Int64)}
	case m.UserID.Valid:
		k.Owner = model.UserOwner{UserID: int(m.UserID.Int64)}
	}
	return k
}

// ownerColumns splits an owner into the host_id/user_id column pair.
func ownerColumns(o model.Owner) (hostID, userID sql.NullInt64) {
	switch v := model.OwnerOrUnowned(o).(type) {
	case model.HostOwner:
		hostID = sql.NullInt64{Int64: int64(v.HostID), Valid: true}
	case model.UserOwner:
		userID = sql.NullInt64{Int64: int64(v.UserID), Valid: true}
	}
	return hostID, userID
}

func publicKeyToModel(k model.PublicKey) PublicKeyModel {
	hostID, userID := ownerColumns(k.Owner)
	return PublicKeyModel{
		ID:        k.ID,
		KeyType:   k.Type,
		KeyBase64: k.Base64,
		KeyHash:   keyHash(k.Identity()),
		Comment:   nullString(k.Comment),
		HostID:    hostID,
		UserID:    userID,
	}
}

func trustRequestModelToModel(m TrustRequestModel) model.TrustRequest {
	return model.TrustRequest{
		Token:       m.Token,
		Name:        m.Name,
		Address:     m.Address,
		Port:        m.Port,
		Username:    m.Username,
		JumpVia:     intPtr(m.JumpVia),
		Fingerprint: m.Fingerprint,
		HostKey:     m.HostKey,
		CreatedAt:   m.CreatedAt.UTC(),
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

func auditLogModelToModel(m AuditLogModel) model.AuditLogEntry {
	return model.AuditLogEntry{
		ID:        m.ID,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		Username:  m.Username,
		Action:    m.Action,
		Details:   m.Details.String,
	}
}
