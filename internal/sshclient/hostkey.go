// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"errors"
	"net"

	"github.com/toeirei/keymaster-hub/internal/logging"
	"golang.org/x/crypto/ssh"
)

// errKeyCaptured aborts a probe handshake once the host key is known.
var errKeyCaptured = errors.New("kmhub: host key captured")

// trustingCallback accepts the presented key when its SHA256 fingerprint is
// one of trusted. Membership is the same outcome as attempting a handshake
// per fingerprint, in a single round trip.
func trustingCallback(hostName string, trusted []string) ssh.HostKeyCallback {
	allowed := make(map[string]bool, len(trusted))
	for _, fp := range trusted {
		allowed[fp] = true
	}
	return func(_ string, _ net.Addr, key ssh.PublicKey) error {
		fp := ssh.FingerprintSHA256(key)
		if allowed[fp] {
			return nil
		}
		logging.Debugf("host %s presented %s, trusted: %v", hostName, fp, trusted)
		return &TrustError{Host: hostName, Presented: fp, Trusted: trusted}
	}
}

// captureCallback hands the presented key to keys and aborts the handshake.
func captureCallback(keys chan<- ssh.PublicKey) ssh.HostKeyCallback {
	return func(_ string, _ net.Addr, key ssh.PublicKey) error {
		select {
		case keys <- key:
		default:
		}
		return errKeyCaptured
	}
}
