// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

// User is an identity that may present one or more public keys.
type User struct {
	ID   int
	Name string
}

// Authorization grants a user access to a host. Options mirrors the
// authorized_keys options syntax (command=, from=, no-pty, ...).
type Authorization struct {
	HostID  int
	UserID  int
	Options string
}

// UserAuthorization is a user together with the options of its
// authorization on a given host.
type UserAuthorization struct {
	User    User
	Options string
}
