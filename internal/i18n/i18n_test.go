// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import "testing"

func TestT(t *testing.T) {
	tests := []struct {
		lang string
		id   string
		args []any
		want string
	}{
		{"en", "diff.in_sync", nil, "in sync"},
		{"de", "diff.in_sync", nil, "synchron"},
		{"en", "host.added", []any{"web", 3}, "Host web added (ID 3)."},
		{"de", "host.added", []any{"web", 3}, "Host web hinzugefügt (ID 3)."},
		{"en", "audit_log.header.action", nil, "Action"},
		{"fr", "diff.in_sync", nil, "in sync"},
		{"en", "no.such.message", nil, "no.such.message"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			Init(tt.lang)
			if got := T(tt.id, tt.args...); got != tt.want {
				t.Fatalf("T(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
	Init("en")
	if GetLang() != "en" {
		t.Fatalf("GetLang() = %q", GetLang())
	}
}
