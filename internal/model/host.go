// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultSSHPort is used when a host is registered without an explicit port.
const DefaultSSHPort = 22

// Host is a remote machine whose authorized_keys file is managed.
// A host only exists once its host key fingerprint has been reviewed and
// confirmed. KeyFingerprint never changes after creation.
type Host struct {
	ID             int
	Name           string
	Address        string
	Port           int
	Username       string
	KeyFingerprint string
	// JumpVia is the ID of the host used as a jump host, nil for direct
	// reachability.
	JumpVia *int
}

// Addr returns the dialable host:port of the host.
func (h Host) Addr() string {
	port := h.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(h.Address, strconv.Itoa(port))
}

// ConnectionDetails returns the validated address of the host. A zero port
// means DefaultSSHPort, as in Addr.
func (h Host) ConnectionDetails() (ConnectionDetails, error) {
	port := h.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return NewConnectionDetails(h.Address, port)
}

// String returns the name@user@addr representation used in logs.
func (h Host) String() string {
	return fmt.Sprintf("%s (%s@%s)", h.Name, h.Username, h.Addr())
}
