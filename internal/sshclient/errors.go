// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchHost is returned when a host id does not resolve to a stored host.
var ErrNoSuchHost = errors.New("no such host")

// FailureKind classifies why a connection attempt failed.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureTimeout
	FailureRefused
	FailureAuth
	FailureHostKey
)

// ConnectionError reports a failed dial or handshake.
type ConnectionError struct {
	Host string
	Kind FailureKind
	Err  error
}

func (e *ConnectionError) Error() string {
	switch e.Kind {
	case FailureTimeout:
		return fmt.Sprintf("connection to %s timed out: %v", e.Host, e.Err)
	case FailureRefused:
		return fmt.Sprintf("connection to %s refused: %v", e.Host, e.Err)
	case FailureAuth:
		return fmt.Sprintf("authentication failed for %s: %v", e.Host, e.Err)
	case FailureHostKey:
		return fmt.Sprintf("host key verification failed for %s: %v", e.Host, e.Err)
	default:
		return fmt.Sprintf("failed to connect to %s: %v", e.Host, e.Err)
	}
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TrustError reports a host that presented a key matching none of its
// trusted fingerprints.
type TrustError struct {
	Host      string
	Presented string
	Trusted   []string
}

func (e *TrustError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: presented %s, trusted %s", e.Host, e.Presented, strings.Join(e.Trusted, ", "))
}

// HopError reports a failure on a jump host while building a chain. Index
// counts from the directly reachable hop.
type HopError struct {
	Hop   string
	Index int
	Err   error
}

func (e *HopError) Error() string {
	return fmt.Sprintf("jump host %s (hop %d): %v", e.Hop, e.Index, e.Err)
}

func (e *HopError) Unwrap() error { return e.Err }

// ExecutionError reports a remote command that exited non-zero or whose
// transport failed mid-command. ExitStatus is -1 when no status was received.
type ExecutionError struct {
	Command    string
	ExitStatus int
	Stderr     string
	Err        error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("remote command %q", e.Command)
	if e.ExitStatus >= 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitStatus)
	} else {
		msg += " failed"
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func containsAny(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	le := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(le, n) {
			return true
		}
	}
	return false
}

// IsConnectionTimeoutError reports whether err looks like a dial or handshake timeout.
func IsConnectionTimeoutError(err error) bool {
	return containsAny(err, "timeout", "deadline exceeded", "timed out")
}

// IsConnectionRefusedError reports whether the remote end was unreachable.
func IsConnectionRefusedError(err error) bool {
	return containsAny(err, "connection refused", "no route to host", "network is unreachable")
}

// IsAuthenticationError reports whether the server rejected our credential.
func IsAuthenticationError(err error) bool {
	return containsAny(err, "unable to authenticate", "authentication failed", "permission denied", "no supported methods remain")
}

// IsHostKeyError reports whether the handshake failed on host key verification.
func IsHostKeyError(err error) bool {
	var te *TrustError
	if errors.As(err, &te) {
		return true
	}
	return containsAny(err, "host key mismatch", "unknown host key", "host key verification failed")
}

// ClassifyConnectionError wraps a raw dial or handshake error into a
// *ConnectionError. A *TrustError is returned unchanged.
func ClassifyConnectionError(host string, err error) error {
	if err == nil {
		return nil
	}
	var te *TrustError
	if errors.As(err, &te) {
		return te
	}
	kind := FailureOther
	switch {
	case IsHostKeyError(err):
		kind = FailureHostKey
	case IsAuthenticationError(err):
		kind = FailureAuth
	case IsConnectionRefusedError(err):
		kind = FailureRefused
	case IsConnectionTimeoutError(err):
		kind = FailureTimeout
	}
	return &ConnectionError{Host: host, Kind: kind, Err: err}
}
