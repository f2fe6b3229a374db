// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/model"
	"github.com/toeirei/keymaster-hub/internal/sshclient"
	"github.com/toeirei/keymaster-hub/internal/sshkey"
)

// findHost looks a host up by name, then by numeric ID.
func findHost(ctx context.Context, store *db.BunStore, ref string) (*model.Host, error) {
	h, err := store.GetHostByName(ctx, ref)
	if err == nil || !errors.Is(err, db.ErrNotFound) {
		return h, err
	}
	if id, cerr := strconv.Atoi(ref); cerr == nil {
		if h, err := store.GetHostByID(ctx, id); err == nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", sshclient.ErrNoSuchHost, ref)
}

// findUser looks a user up by name, then by numeric ID.
func findUser(ctx context.Context, store *db.BunStore, ref string) (*model.User, error) {
	u, err := store.GetUserByName(ctx, ref)
	if err == nil || !errors.Is(err, db.ErrNotFound) {
		return u, err
	}
	if id, cerr := strconv.Atoi(ref); cerr == nil {
		if u, err := store.GetUserByID(ctx, id); err == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", db.ErrNotFound, ref)
}

// jumpRef resolves an optional jump host reference; "" and "none" mean a
// direct connection.
func jumpRef(ctx context.Context, store *db.BunStore, ref string) (*int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.EqualFold(ref, "none") {
		return nil, nil
	}
	h, err := findHost(ctx, store, ref)
	if err != nil {
		return nil, err
	}
	return &h.ID, nil
}

// keyMaterial accepts either a full key line or bare base64 key data and
// returns the base64 part.
func keyMaterial(arg string) string {
	if k, err := sshkey.Parse(arg); err == nil {
		return k.Base64
	}
	return strings.TrimSpace(arg)
}
