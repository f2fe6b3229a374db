// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/model"
)

// RenderDiff renders a host diff as a styled, multi-line report.
func RenderDiff(d model.HostDiff) string {
	var b strings.Builder

	status := successStyle.Render(i18n.T("diff.in_sync"))
	switch d.Classification() {
	case model.DriftWarning:
		status = errorStyle.Render(i18n.T("diff.drift_warning"))
	case model.DriftInfo:
		status = specialStyle.Render(i18n.T("diff.drift_info"))
	}
	b.WriteString(titleStyle.Render(d.Host.Name) + " " + helpStyle.Render(d.Host.Addr()) + "  " + status + "\n")

	section := func(title string, style lipgloss.Style, marker string, keys []model.PublicKey) {
		if len(keys) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("  %s (%d)\n", title, len(keys)))
		for _, k := range keys {
			b.WriteString("    " + style.Render(marker) + " " + describeKey(k) + "\n")
		}
	}
	section(i18n.T("diff.matching"), successStyle, "=", d.Matching)
	section(i18n.T("diff.missing"), errorStyle, "-", d.ExpectedAbsent)
	section(i18n.T("diff.unexpected"), specialStyle, "+", d.Unexpected)
	return b.String()
}

func describeKey(k model.PublicKey) string {
	parts := []string{k.Type, abbreviate(k.Base64)}
	if k.Comment != "" {
		parts = append(parts, k.Comment)
	}
	if k.Options != "" {
		parts = append(parts, helpStyle.Render("["+k.Options+"]"))
	}
	if k.ID != 0 {
		parts = append(parts, helpStyle.Render(fmt.Sprintf("#%d %s", k.ID, model.OwnerOrUnowned(k.Owner))))
	}
	return strings.Join(parts, " ")
}

func abbreviate(b64 string) string {
	if len(b64) <= 20 {
		return b64
	}
	return b64[:8] + "…" + b64[len(b64)-8:]
}
