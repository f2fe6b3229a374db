// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/toeirei/keymaster-hub/internal/sshclient"
)

func TestIsConnectionTimeoutError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout error", errors.New("connection timeout"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"i/o timeout", errors.New("i/o timeout"), true},
		{"other error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sshclient.IsConnectionTimeoutError(tt.err); got != tt.expected {
				t.Errorf("IsConnectionTimeoutError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionRefusedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"no route to host", errors.New("no route to host"), true},
		{"other error", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sshclient.IsConnectionRefusedError(tt.err); got != tt.expected {
				t.Errorf("IsConnectionRefusedError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsAuthenticationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"x/crypto message", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none publickey], no supported methods remain"), true},
		{"permission denied", errors.New("permission denied"), true},
		{"other error", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sshclient.IsAuthenticationError(tt.err); got != tt.expected {
				t.Errorf("IsAuthenticationError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsHostKeyError(t *testing.T) {
	trustErr := &sshclient.TrustError{Host: "web", Presented: "SHA256:x", Trusted: []string{"SHA256:y"}}
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"typed", fmt.Errorf("ssh: handshake failed: %w", trustErr), true},
		{"host key mismatch", errors.New("HOST KEY MISMATCH"), true},
		{"host key verification failed", errors.New("host key verification failed"), true},
		{"other error", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sshclient.IsHostKeyError(tt.err); got != tt.expected {
				t.Errorf("IsHostKeyError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassifyConnectionError(t *testing.T) {
	host := "test-host"
	tests := []struct {
		name        string
		err         error
		kind        sshclient.FailureKind
		expectedMsg string
	}{
		{"timeout error", errors.New("timeout"), sshclient.FailureTimeout, "connection to test-host timed out"},
		{"connection refused", errors.New("connection refused"), sshclient.FailureRefused, "connection to test-host refused"},
		{"authentication failed", errors.New("authentication failed"), sshclient.FailureAuth, "authentication failed for test-host"},
		{"host key error", errors.New("HOST KEY MISMATCH"), sshclient.FailureHostKey, "host key verification failed for test-host"},
		{"generic error", errors.New("some other error"), sshclient.FailureOther, "failed to connect to test-host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sshclient.ClassifyConnectionError(host, tt.err)
			var ce *sshclient.ConnectionError
			if !errors.As(result, &ce) {
				t.Fatalf("expected *ConnectionError, got %T", result)
			}
			if ce.Kind != tt.kind {
				t.Errorf("kind = %v, expected %v", ce.Kind, tt.kind)
			}
			if !strings.Contains(result.Error(), tt.expectedMsg) {
				t.Errorf("message %q does not contain %q", result.Error(), tt.expectedMsg)
			}
			if !errors.Is(result, tt.err) {
				t.Errorf("cause must stay in the chain")
			}
		})
	}

	if sshclient.ClassifyConnectionError(host, nil) != nil {
		t.Errorf("expected nil for nil input")
	}
	trustErr := &sshclient.TrustError{Host: host}
	if got := sshclient.ClassifyConnectionError(host, fmt.Errorf("wrapped: %w", trustErr)); got != trustErr {
		t.Errorf("trust errors must pass through unchanged, got %v", got)
	}
}

func TestExecutionErrorMessage(t *testing.T) {
	err := &sshclient.ExecutionError{Command: "cat x", ExitStatus: 1, Stderr: "cat: x: Permission denied\n"}
	if got := err.Error(); !strings.Contains(got, "status 1") || !strings.Contains(got, "Permission denied") {
		t.Fatalf("unexpected message: %q", got)
	}
}
