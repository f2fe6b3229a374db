// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshkey"
	"github.com/uptrace/bun"
)

// AddHost inserts a trusted host. A jump host, when given, must exist and
// keep the chain acyclic and within the depth limit.
func (s *BunStore) AddHost(ctx context.Context, h model.Host) (model.Host, error) {
	m := hostToModel(h)
	m.ID = 0
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if h.JumpVia != nil {
			if err := s.validateJumpVia(ctx, tx, 0, *h.JumpVia); err != nil {
				return err
			}
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return err
		}
		return logAction(ctx, tx, "ADD_HOST", fmt.Sprintf("host: %s (%s)", m.Name, h.Addr()))
	})
	if err != nil {
		return model.Host{}, wrapErr("add host", err)
	}
	return hostModelToModel(m), nil
}

// GetHostByID returns the host or ErrNotFound.
func (s *BunStore) GetHostByID(ctx context.Context, id int) (*model.Host, error) {
	m, err := getHost(ctx, s.bun, id)
	if err != nil {
		return nil, wrapErr("get host", err)
	}
	h := hostModelToModel(m)
	return &h, nil
}

// GetHostByName returns the host with the given display name or ErrNotFound.
func (s *BunStore) GetHostByName(ctx context.Context, name string) (*model.Host, error) {
	var m HostModel
	if err := s.bun.NewSelect().Model(&m).Where("name = ?", name).Limit(1).Scan(ctx); err != nil {
		return nil, wrapErr("get host", err)
	}
	h := hostModelToModel(m)
	return &h, nil
}

// GetAllHosts returns every host ordered by name.
func (s *BunStore) GetAllHosts(ctx context.Context) ([]model.Host, error) {
	var ms []HostModel
	if err := s.bun.NewSelect().Model(&ms).OrderExpr("name ASC").Scan(ctx); err != nil {
		return nil, wrapErr("list hosts", err)
	}
	out := make([]model.Host, 0, len(ms))
	for _, m := range ms {
		out = append(out, hostModelToModel(m))
	}
	return out, nil
}

// SetJumpHost points hostID at jumpVia, or clears the jump host when jumpVia
// is nil. Assignments that would form a cycle or exceed the depth limit are
// refused before anything is written.
func (s *BunStore) SetJumpHost(ctx context.Context, hostID int, jumpVia *int) error {
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := getHost(ctx, tx, hostID); err != nil {
			return err
		}
		if jumpVia != nil {
			if err := s.validateJumpVia(ctx, tx, hostID, *jumpVia); err != nil {
				return err
			}
		}
		if _, err := tx.NewUpdate().Model((*HostModel)(nil)).
			Set("jump_via = ?", nullInt(jumpVia)).
			Where("id = ?", hostID).
			Exec(ctx); err != nil {
			return err
		}
		details := fmt.Sprintf("host_id: %d, jump_via: none", hostID)
		if jumpVia != nil {
			details = fmt.Sprintf("host_id: %d, jump_via: %d", hostID, *jumpVia)
		}
		return logAction(ctx, tx, "SET_JUMP_HOST", details)
	})
	return wrapErr("set jump host", err)
}

// ValidateJumpVia checks that hostID may jump through jumpVia. hostID is 0
// for a host that does not exist yet.
func (s *BunStore) ValidateJumpVia(ctx context.Context, hostID, jumpVia int) error {
	return wrapErr("validate jump host", s.validateJumpVia(ctx, s.bun, hostID, jumpVia))
}

func (s *BunStore) validateJumpVia(ctx context.Context, q bun.IDB, hostID, jumpVia int) error {
	if jumpVia == hostID {
		return ErrJumpCycle
	}
	visited := map[int]bool{}
	if hostID != 0 {
		visited[hostID] = true
	}
	// The host itself is hop zero; each jump adds one.
	depth := 1
	next := jumpVia
	for {
		if visited[next] {
			return ErrJumpCycle
		}
		visited[next] = true
		if depth > s.maxJumpDepth {
			return fmt.Errorf("%w: more than %d hops", ErrJumpDepth, s.maxJumpDepth)
		}
		m, err := getHost(ctx, q, next)
		if err != nil {
			return fmt.Errorf("jump host %d: %w", next, err)
		}
		if !m.JumpVia.Valid {
			return nil
		}
		next = int(m.JumpVia.Int64)
		depth++
	}
}

// DeleteHost removes a host with its authorizations. Keys the host owned are
// kept as unowned. Hosts still referenced as a jump host are refused.
func (s *BunStore) DeleteHost(ctx context.Context, id int) error {
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		m, err := getHost(ctx, tx, id)
		if err != nil {
			return err
		}
		n, err := tx.NewSelect().Model((*HostModel)(nil)).Where("jump_via = ?", id).Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d host(s) jump through %s", ErrHostInUse, n, m.Name)
		}
		if _, err := tx.NewUpdate().Model((*PublicKeyModel)(nil)).
			Set("host_id = NULL").
			Where("host_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*AuthorizationModel)(nil)).Where("host_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*HostModel)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return err
		}
		return logAction(ctx, tx, "DELETE_HOST", fmt.Sprintf("host: %s", m.Name))
	})
	return wrapErr("delete host", err)
}

// JumpChain returns the hosts a connection to id passes through, nearest
// first: element 0 is the host's own jump host and the last element is the
// one reachable directly. A host without a jump host yields an empty chain.
func (s *BunStore) JumpChain(ctx context.Context, id int) ([]model.Host, error) {
	m, err := getHost(ctx, s.bun, id)
	if err != nil {
		return nil, wrapErr("jump chain", err)
	}
	visited := map[int]bool{id: true}
	var chain []model.Host
	for m.JumpVia.Valid {
		next := int(m.JumpVia.Int64)
		if visited[next] {
			return nil, wrapErr("jump chain", ErrJumpCycle)
		}
		if len(chain) >= s.maxJumpDepth {
			return nil, wrapErr("jump chain", ErrJumpDepth)
		}
		visited[next] = true
		if m, err = getHost(ctx, s.bun, next); err != nil {
			return nil, wrapErr("jump chain", err)
		}
		chain = append(chain, hostModelToModel(m))
	}
	return chain, nil
}

// HostFingerprints returns every fingerprint a host may present: the one
// confirmed during trust plus those of its recorded server keys.
func (s *BunStore) HostFingerprints(ctx context.Context, hostID int) ([]string, error) {
	m, err := getHost(ctx, s.bun, hostID)
	if err != nil {
		return nil, wrapErr("host fingerprints", err)
	}
	var keys []PublicKeyModel
	if err := s.bun.NewSelect().Model(&keys).Where("host_id = ?", hostID).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, wrapErr("host fingerprints", err)
	}
	fps := []string{m.KeyFingerprint}
	seen := map[string]bool{m.KeyFingerprint: true}
	for _, k := range keys {
		fp, err := sshkey.Fingerprint(publicKeyModelToModel(k))
		if err != nil {
			dbLogf("skipping undecodable host key %d: %v", k.ID, err)
			continue
		}
		if !seen[fp] {
			seen[fp] = true
			fps = append(fps, fp)
		}
	}
	return fps, nil
}

func getHost(ctx context.Context, q bun.IDB, id int) (HostModel, error) {
	var m HostModel
	err := q.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx)
	return m, err
}
