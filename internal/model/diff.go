// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "fmt"

// DriftClassification represents the severity of the drift found on a host.
type DriftClassification string

const (
	// DriftNone means the remote file matches the database.
	DriftNone DriftClassification = "none"

	// DriftWarning means keys the database expects are missing on the host.
	DriftWarning DriftClassification = "warning"

	// DriftInfo means the host carries keys the database does not expect.
	DriftInfo DriftClassification = "info"
)

// HostDiff is the result of reconciling a host. It is computed on demand and
// never persisted. Every expected key is either in Matching or ExpectedAbsent,
// every observed key is either in Matching or Unexpected.
type HostDiff struct {
	Host           Host
	Matching       []PublicKey
	ExpectedAbsent []PublicKey
	Unexpected     []PublicKey
}

// HasDrift reports whether expected and observed state differ.
func (d HostDiff) HasDrift() bool {
	return len(d.ExpectedAbsent) > 0 || len(d.Unexpected) > 0
}

// Classification returns the severity of the drift. Missing keys lock users
// out and weigh more than extra keys.
func (d HostDiff) Classification() DriftClassification {
	switch {
	case len(d.ExpectedAbsent) > 0:
		return DriftWarning
	case len(d.Unexpected) > 0:
		return DriftInfo
	default:
		return DriftNone
	}
}

// Summary returns a human-readable summary of the diff.
func (d HostDiff) Summary() string {
	if !d.HasDrift() {
		return fmt.Sprintf("%s: no drift (%d keys match)", d.Host.Name, len(d.Matching))
	}
	return fmt.Sprintf("%s: %s drift: %d matching, %d missing, %d unexpected",
		d.Host.Name, d.Classification(), len(d.Matching), len(d.ExpectedAbsent), len(d.Unexpected))
}
