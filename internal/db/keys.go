// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/uptrace/bun"
)

// AddPublicKey stores a key with its owner. A key whose identity is already
// stored yields ErrDuplicate.
func (s *BunStore) AddPublicKey(ctx context.Context, k model.PublicKey) (model.PublicKey, error) {
	m := publicKeyToModel(k)
	m.ID = 0
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if err := checkOwner(ctx, tx, k.Owner); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "ADD_KEY", fmt.Sprintf("key: %s, owner: %s", k.Type, model.OwnerOrUnowned(k.Owner)))
	})
	if err != nil {
		return model.PublicKey{}, wrapErr("add public key", err)
	}
	return publicKeyModelToModel(m), nil
}

// UpsertPublicKey returns the stored key with k's identity, inserting k when
// none exists. created reports whether a row was inserted. An existing row
// keeps its owner and comment.
func (s *BunStore) UpsertPublicKey(ctx context.Context, k model.PublicKey) (stored model.PublicKey, created bool, err error) {
	if existing, err := s.GetPublicKeyByIdentity(ctx, k.Identity()); err == nil {
		return *existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return model.PublicKey{}, false, err
	}

	m := publicKeyToModel(k)
	m.ID = 0
	err = WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "DISCOVER_KEY", fmt.Sprintf("key: %s %s, owner: %s", k.Type, k.Comment, model.OwnerOrUnowned(k.Owner)))
	})
	if errors.Is(err, ErrDuplicate) {
		// A concurrent run inserted the same identity first.
		existing, gerr := s.GetPublicKeyByIdentity(ctx, k.Identity())
		if gerr != nil {
			return model.PublicKey{}, false, gerr
		}
		return *existing, false, nil
	}
	if err != nil {
		return model.PublicKey{}, false, wrapErr("upsert public key", err)
	}
	return publicKeyModelToModel(m), true, nil
}

// GetPublicKeyByID returns the key or ErrNotFound.
func (s *BunStore) GetPublicKeyByID(ctx context.Context, id int) (*model.PublicKey, error) {
	var m PublicKeyModel
	if err := s.bun.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, wrapErr("get public key", err)
	}
	k := publicKeyModelToModel(m)
	return &k, nil
}

// GetPublicKeyByIdentity looks a key up by (type, base64).
func (s *BunStore) GetPublicKeyByIdentity(ctx context.Context, id model.KeyIdentity) (*model.PublicKey, error) {
	var m PublicKeyModel
	if err := s.bun.NewSelect().Model(&m).Where("key_hash = ?", keyHash(id)).Limit(1).Scan(ctx); err != nil {
		return nil, wrapErr("get public key", err)
	}
	k := publicKeyModelToModel(m)
	return &k, nil
}

// GetKeysByOwner returns the keys belonging to owner. Unowned{} selects the
// keys awaiting assignment.
func (s *BunStore) GetKeysByOwner(ctx context.Context, owner model.Owner) ([]model.PublicKey, error) {
	var ms []PublicKeyModel
	q := s.bun.NewSelect().Model(&ms).OrderExpr("id ASC")
	switch o := model.OwnerOrUnowned(owner).(type) {
	case model.HostOwner:
		q = q.Where("host_id = ?", o.HostID)
	case model.UserOwner:
		q = q.Where("user_id = ?", o.UserID)
	default:
		q = q.Where("host_id IS NULL").Where("user_id IS NULL")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrapErr("list keys", err)
	}
	return publicKeyModels(ms), nil
}

// GetAllPublicKeys returns every stored key.
func (s *BunStore) GetAllPublicKeys(ctx context.Context) ([]model.PublicKey, error) {
	var ms []PublicKeyModel
	if err := s.bun.NewSelect().Model(&ms).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, wrapErr("list keys", err)
	}
	return publicKeyModels(ms), nil
}

// AssignKey changes the owner of a stored key.
func (s *BunStore) AssignKey(ctx context.Context, keyID int, owner model.Owner) error {
	hostID, userID := ownerColumns(owner)
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if err := checkOwner(ctx, tx, owner); err != nil {
			return err
		}
		exists, err := tx.NewSelect().Model((*PublicKeyModel)(nil)).Where("id = ?", keyID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		if _, err := tx.NewUpdate().Model((*PublicKeyModel)(nil)).
			Set("host_id = ?", hostID).
			Set("user_id = ?", userID).
			Where("id = ?", keyID).
			Exec(ctx); err != nil {
			return err
		}
		return logAction(ctx, tx, "ASSIGN_KEY", fmt.Sprintf("key_id: %d, owner: %s", keyID, model.OwnerOrUnowned(owner)))
	})
	return wrapErr("assign key", err)
}

// checkOwner verifies that the host or user behind owner exists.
func checkOwner(ctx context.Context, q bun.IDB, owner model.Owner) error {
	var (
		m  interface{}
		id int
	)
	switch o := model.OwnerOrUnowned(owner).(type) {
	case model.HostOwner:
		m, id = (*HostModel)(nil), o.HostID
	case model.UserOwner:
		m, id = (*UserModel)(nil), o.UserID
	default:
		return nil
	}
	exists, err := q.NewSelect().Model(m).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("owner %s: %w", owner, ErrNotFound)
	}
	return nil
}

func publicKeyModels(ms []PublicKeyModel) []model.PublicKey {
	out := make([]model.PublicKey, 0, len(ms))
	for _, m := range ms {
		out = append(out, publicKeyModelToModel(m))
	}
	return out
}
