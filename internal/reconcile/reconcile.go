// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package reconcile compares the keys a host actually accepts with the keys
// the database says it should accept.
package reconcile // import "github.com/toeirei/keymaster-hub/internal/reconcile"

import (
	"context"

	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
)

// Store is the persistence the engine reads from and records into.
type Store interface {
	GetExpectedKeys(ctx context.Context, hostID int) ([]model.PublicKey, error)
	UpsertPublicKey(ctx context.Context, k model.PublicKey) (model.PublicKey, bool, error)
}

// Resolver opens an authenticated session to a stored host.
type Resolver interface {
	Resolve(ctx context.Context, host model.Host) (sshclient.Session, error)
}

// Engine computes host diffs.
type Engine struct {
	store    Store
	resolver Resolver
}

// NewEngine returns an Engine.
func NewEngine(store Store, resolver Resolver) *Engine {
	return &Engine{store: store, resolver: resolver}
}

// Diff partitions expected and observed by key identity. Options and
// comments do not take part in the comparison. Matching entries carry the
// expected key, so the owner and options the database knows are kept.
// Duplicate identities on either side are reported once.
func Diff(host model.Host, expected, observed []model.PublicKey) model.HostDiff {
	d := model.HostDiff{Host: host}

	seen := make(map[model.KeyIdentity]bool, len(observed))
	for _, k := range observed {
		seen[k.Identity()] = true
	}
	want := make(map[model.KeyIdentity]bool, len(expected))
	for _, k := range expected {
		id := k.Identity()
		if want[id] {
			continue
		}
		want[id] = true
		if seen[id] {
			d.Matching = append(d.Matching, k)
		} else {
			d.ExpectedAbsent = append(d.ExpectedAbsent, k)
		}
	}
	reported := make(map[model.KeyIdentity]bool)
	for _, k := range observed {
		id := k.Identity()
		if want[id] || reported[id] {
			continue
		}
		reported[id] = true
		d.Unexpected = append(d.Unexpected, k)
	}
	return d
}

// GetHostDiff reads the host's authorized_keys and diffs it against the
// expected keys. Unexpected keys the database does not know yet are
// recorded as unowned; failing to record one is logged and does not fail
// the diff.
func (e *Engine) GetHostDiff(ctx context.Context, host model.Host) (model.HostDiff, error) {
	sess, err := e.resolver.Resolve(ctx, host)
	if err != nil {
		return model.HostDiff{}, err
	}
	observed, err := sshclient.ListAuthorizedKeys(ctx, sess)
	if cerr := sess.Close(); cerr != nil {
		logging.Debugf("reconcile: closing session to %s: %v", host.Name, cerr)
	}
	if err != nil {
		return model.HostDiff{}, err
	}

	expected, err := e.store.GetExpectedKeys(ctx, host.ID)
	if err != nil {
		return model.HostDiff{}, err
	}

	d := Diff(host, expected, observed)
	e.record(ctx, host, d.Unexpected)
	logging.Debugf("reconcile: %s", d.Summary())
	return d, nil
}

func (e *Engine) record(ctx context.Context, host model.Host, keys []model.PublicKey) {
	ctx = context.WithoutCancel(ctx)
	for _, k := range keys {
		k.Owner = model.Unowned{}
		k.Options = ""
		stored, created, err := e.store.UpsertPublicKey(ctx, k)
		if err != nil {
			logging.Warnf("reconcile: recording key %s found on %s failed: %v", k.Identity(), host.Name, err)
			continue
		}
		if created {
			logging.Infof("reconcile: discovered key #%d (%s) on %s", stored.ID, k.Type, host.Name)
		}
	}
}
