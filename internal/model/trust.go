// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "time"

// TrustRequest is a pending host registration: the fingerprint the host
// presented has been offered to an operator but not yet confirmed.
type TrustRequest struct {
	Token       string
	Name        string
	Address     string
	Port        int
	Username    string
	JumpVia     *int
	Fingerprint string
	// HostKey is the presented key in authorized_keys format.
	HostKey   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the request can no longer be confirmed.
func (r TrustRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
