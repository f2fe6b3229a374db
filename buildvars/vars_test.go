// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package buildvars

import "testing"

func TestVersionOrDefault(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	tests := []struct {
		stamped string
		want    string
	}{
		{"", "dev"},
		{"v1.4.0", "v1.4.0"},
	}
	for _, tt := range tests {
		Version = tt.stamped
		if got := VersionOrDefault("dev"); got != tt.want {
			t.Errorf("VersionOrDefault with Version=%q = %q, want %q", tt.stamped, got, tt.want)
		}
	}
}
