// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/uptrace/bun"
)

// SaveTrustRequest stores a pending trust request under its token.
func (s *BunStore) SaveTrustRequest(ctx context.Context, r model.TrustRequest) error {
	m := TrustRequestModel{
		Token:       r.Token,
		Name:        r.Name,
		Address:     r.Address,
		Port:        r.Port,
		Username:    r.Username,
		JumpVia:     nullInt(r.JumpVia),
		Fingerprint: r.Fingerprint,
		HostKey:     r.HostKey,
		CreatedAt:   r.CreatedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
	}
	_, err := s.bun.NewInsert().Model(&m).Exec(ctx)
	return wrapErr("save trust request", MapDBError(err))
}

// GetTrustRequest returns the pending request for token or ErrNotFound.
func (s *BunStore) GetTrustRequest(ctx context.Context, token string) (*model.TrustRequest, error) {
	var m TrustRequestModel
	if err := s.bun.NewSelect().Model(&m).Where("token = ?", token).Limit(1).Scan(ctx); err != nil {
		return nil, wrapErr("get trust request", err)
	}
	r := trustRequestModelToModel(m)
	return &r, nil
}

// DeleteTrustRequest removes a pending request. Missing tokens are ignored.
func (s *BunStore) DeleteTrustRequest(ctx context.Context, token string) error {
	_, err := s.bun.NewDelete().Model((*TrustRequestModel)(nil)).Where("token = ?", token).Exec(ctx)
	return wrapErr("delete trust request", err)
}

// PurgeExpiredTrustRequests deletes the requests expired at now and returns
// how many were removed. Expiry is evaluated in Go so the comparison does not
// depend on how each dialect stores timestamps.
func (s *BunStore) PurgeExpiredTrustRequests(ctx context.Context, now time.Time) (int, error) {
	var ms []TrustRequestModel
	if err := s.bun.NewSelect().Model(&ms).Column("token", "expires_at").Scan(ctx); err != nil {
		return 0, wrapErr("purge trust requests", err)
	}
	var expired []string
	for _, m := range ms {
		if now.After(m.ExpiresAt) {
			expired = append(expired, m.Token)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	res, err := s.bun.NewDelete().Model((*TrustRequestModel)(nil)).Where("token IN (?)", bun.In(expired)).Exec(ctx)
	if err != nil {
		return 0, wrapErr("purge trust requests", err)
	}
	n, _ := res.RowsAffected()
	dbLogf("purged %d expired trust request(s)", n)
	return int(n), nil
}
