// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/uptrace/bun"
)

// AddUser creates a user. Names are unique.
func (s *BunStore) AddUser(ctx context.Context, name string) (model.User, error) {
	m := UserModel{Name: name}
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return logAction(ctx, tx, "ADD_USER", fmt.Sprintf("user: %s", name))
	})
	if err != nil {
		return model.User{}, wrapErr("add user", err)
	}
	return model.User{ID: m.ID, Name: m.Name}, nil
}

// GetUserByID returns the user or ErrNotFound.
func (s *BunStore) GetUserByID(ctx context.Context, id int) (*model.User, error) {
	var m UserModel
	if err := s.bun.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, wrapErr("get user", err)
	}
	return &model.User{ID: m.ID, Name: m.Name}, nil
}

// GetUserByName returns the user or ErrNotFound.
func (s *BunStore) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	var m UserModel
	if err := s.bun.NewSelect().Model(&m).Where("name = ?", name).Limit(1).Scan(ctx); err != nil {
		return nil, wrapErr("get user", err)
	}
	return &model.User{ID: m.ID, Name: m.Name}, nil
}

// GetAllUsers returns every user ordered by name.
func (s *BunStore) GetAllUsers(ctx context.Context) ([]model.User, error) {
	var ms []UserModel
	if err := s.bun.NewSelect().Model(&ms).OrderExpr("name ASC").Scan(ctx); err != nil {
		return nil, wrapErr("list users", err)
	}
	out := make([]model.User, 0, len(ms))
	for _, m := range ms {
		out = append(out, model.User{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

// AuthorizeUser grants userID access to hostID. Authorizing an already
// authorized pair replaces its options.
func (s *BunStore) AuthorizeUser(ctx context.Context, hostID, userID int, options string) error {
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if err := checkOwner(ctx, tx, model.HostOwner{HostID: hostID}); err != nil {
			return err
		}
		if err := checkOwner(ctx, tx, model.UserOwner{UserID: userID}); err != nil {
			return err
		}
		exists, err := tx.NewSelect().Model((*AuthorizationModel)(nil)).
			Where("host_id = ?", hostID).
			Where("user_id = ?", userID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.NewUpdate().Model((*AuthorizationModel)(nil)).
				Set("options = ?", nullString(options)).
				Where("host_id = ?", hostID).
				Where("user_id = ?", userID).
				Exec(ctx)
		} else {
			m := AuthorizationModel{HostID: hostID, UserID: userID, Options: nullString(options)}
			_, err = tx.NewInsert().Model(&m).Exec(ctx)
		}
		if err != nil {
			return err
		}
		return logAction(ctx, tx, "AUTHORIZE_USER", fmt.Sprintf("host_id: %d, user_id: %d, options: %q", hostID, userID, options))
	})
	return wrapErr("authorize user", err)
}

// RevokeUser removes the authorization of userID on hostID. Revoking a pair
// that is not authorized is not an error.
func (s *BunStore) RevokeUser(ctx context.Context, hostID, userID int) error {
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*AuthorizationModel)(nil)).
			Where("host_id = ?", hostID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return logAction(ctx, tx, "REVOKE_USER", fmt.Sprintf("host_id: %d, user_id: %d", hostID, userID))
	})
	return wrapErr("revoke user", err)
}

// GetAuthorizedUsers lists the users authorized on hostID with their options.
func (s *BunStore) GetAuthorizedUsers(ctx context.Context, hostID int) ([]model.UserAuthorization, error) {
	var rows []struct {
		ID      int            `bun:"id"`
		Name    string         `bun:"name"`
		Options sql.NullString `bun:"options"`
	}
	err := QueryRawInto(ctx, s.bun, &rows,
		"SELECT u.id, u.name, a.options FROM users u JOIN authorizations a ON a.user_id = u.id WHERE a.host_id = ? ORDER BY u.name", hostID)
	if err != nil {
		return nil, wrapErr("authorized users", err)
	}
	out := make([]model.UserAuthorization, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.UserAuthorization{
			User:    model.User{ID: r.ID, Name: r.Name},
			Options: r.Options.String,
		})
	}
	return out, nil
}

// GetExpectedKeys returns the keys that should be present on hostID: every
// key of every authorized user, carrying the authorization's options.
func (s *BunStore) GetExpectedKeys(ctx context.Context, hostID int) ([]model.PublicKey, error) {
	var rows []struct {
		PublicKeyModel `bun:",extend"`
		Options        sql.NullString `bun:"options"`
	}
	err := QueryRawInto(ctx, s.bun, &rows,
		"SELECT p.id, p.key_type, p.key_base64, p.key_hash, p.comment, p.host_id, p.user_id, a.options "+
			"FROM public_keys p JOIN authorizations a ON a.user_id = p.user_id "+
			"WHERE a.host_id = ? ORDER BY p.id", hostID)
	if err != nil {
		return nil, wrapErr("expected keys", err)
	}
	out := make([]model.PublicKey, 0, len(rows))
	for _, r := range rows {
		k := publicKeyModelToModel(r.PublicKeyModel)
		k.Options = r.Options.String
		out = append(out, k)
	}
	return out, nil
}
