// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model defines the records Keymaster Hub reads and writes: hosts,
// public keys and their owners, users, authorizations and the ephemeral
// host diff produced by reconciliation.
package model // import "github.com/toeirei/keymaster-hub/internal/model"
