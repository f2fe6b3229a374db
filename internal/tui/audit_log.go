// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/model"
)

// FilterAuditLog keeps the entries whose timestamp, user, action or details
// contain filter, ignoring case.
func FilterAuditLog(entries []model.AuditLogEntry, filter string) []model.AuditLogEntry {
	if filter == "" {
		return entries
	}
	f := strings.ToLower(filter)
	var out []model.AuditLogEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Timestamp), f) ||
			strings.Contains(strings.ToLower(e.Username), f) ||
			strings.Contains(strings.ToLower(e.Action), f) ||
			strings.Contains(strings.ToLower(e.Details), f) {
			out = append(out, e)
		}
	}
	return out
}

// RenderAuditLog renders entries as a table.
func RenderAuditLog(entries []model.AuditLogEntry) string {
	columns := []table.Column{
		{Title: i18n.T("audit_log.header.timestamp"), Width: 20},
		{Title: i18n.T("audit_log.header.user"), Width: 15},
		{Title: i18n.T("audit_log.header.action"), Width: 18},
		{Title: i18n.T("audit_log.header.details"), Width: 60},
	}
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{e.Timestamp, e.Username, e.Action, e.Details})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+3),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Cell
	t.SetStyles(s)
	return t.View() + "\n"
}
