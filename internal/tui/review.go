// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/keymaster-hub/internal/i18n"
	"github.com/toeirei/keymaster-hub/internal/trust"
)

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

type reviewKeyMap struct {
	Accept key.Binding
	Reject key.Binding
	Toggle key.Binding
	Choose key.Binding
	Copy   key.Binding
}

var reviewKeys = reviewKeyMap{
	Accept: key.NewBinding(key.WithKeys("y", "Y")),
	Reject: key.NewBinding(key.WithKeys("n", "N", "q", "esc", "ctrl+c")),
	Toggle: key.NewBinding(key.WithKeys("left", "right", "h", "l", "tab")),
	Choose: key.NewBinding(key.WithKeys("enter")),
	Copy:   key.NewBinding(key.WithKeys("c")),
}

// ReviewModel asks the operator to accept or reject an offered host key.
// Rejecting is the default choice.
type ReviewModel struct {
	name    string
	address string
	offer   trust.Offer

	cursor    int // 0 = reject, 1 = accept
	accepted  bool
	done      bool
	copied    bool
	copyError error
}

// NewReviewModel returns a review dialog for offer.
func NewReviewModel(name, address string, offer trust.Offer) ReviewModel {
	return ReviewModel{name: name, address: address, offer: offer}
}

func (m ReviewModel) Init() tea.Cmd { return nil }

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, reviewKeys.Accept):
		m.accepted, m.done = true, true
		return m, tea.Quit
	case key.Matches(km, reviewKeys.Reject):
		m.accepted, m.done = false, true
		return m, tea.Quit
	case key.Matches(km, reviewKeys.Toggle):
		m.cursor = 1 - m.cursor
	case key.Matches(km, reviewKeys.Choose):
		m.accepted, m.done = m.cursor == 1, true
		return m, tea.Quit
	case key.Matches(km, reviewKeys.Copy):
		if err := writeClipboard(m.offer.Fingerprint); err != nil {
			m.copyError = err
		} else {
			m.copied, m.copyError = true, nil
		}
	}
	return m, nil
}

func (m ReviewModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(i18n.T("review.title", m.name)) + "\n\n")
	b.WriteString(i18n.T("review.address", m.address) + "\n")
	b.WriteString(i18n.T("review.key_type", m.offer.KeyType) + "\n")
	b.WriteString(i18n.T("review.fingerprint") + "\n")
	b.WriteString("  " + fingerprintStyle.Render(m.offer.Fingerprint) + "\n")
	if m.offer.Warning != "" {
		b.WriteString("\n" + specialStyle.Render(m.offer.Warning) + "\n")
	}
	b.WriteString("\n" + i18n.T("review.question") + "\n")

	reject, accept := buttonStyle, buttonStyle
	if m.cursor == 0 {
		reject = activeButtonStyle
	} else {
		accept = activeButtonStyle
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		reject.Render(i18n.T("review.reject")),
		accept.Render(i18n.T("review.accept"))) + "\n")

	switch {
	case m.copyError != nil:
		b.WriteString(errorStyle.Render(i18n.T("review.copy_failed", m.copyError)) + "\n")
	case m.copied:
		b.WriteString(successStyle.Render(i18n.T("review.copied")) + "\n")
	}
	b.WriteString(helpStyle.Render(i18n.T("review.help")))
	return dialogBoxStyle.Render(b.String()) + "\n"
}

// Accepted reports whether the operator accepted the key.
func (m ReviewModel) Accepted() bool { return m.accepted }

// RunReview shows the dialog on the given terminal streams and reports the
// operator's decision.
func RunReview(name, address string, offer trust.Offer, in io.Reader, out io.Writer) (bool, error) {
	p := tea.NewProgram(NewReviewModel(name, address, offer), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(ReviewModel)
	return ok && m.Accepted(), nil
}
