package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"sift/internal/docpool"
	"sift/internal/session"
	"sift/internal/trace"
	"sift/internal/workflow"
)

type uiTheme struct {
	header      lipgloss.Style
	question    lipgloss.Style
	answer      lipgloss.Style
	citation    lipgloss.Style
	badCite     lipgloss.Style
	stepDone    lipgloss.Style
	stepActive  lipgloss.Style
	prompt      lipgloss.Style
	notice      lipgloss.Style
	status      lipgloss.Style
	faint       lipgloss.Style
	interrupted lipgloss.Style
}

func newTheme() uiTheme {
	return uiTheme{
		header:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		question:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		answer:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		citation:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		badCite:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Strikethrough(true),
		stepDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
		stepActive:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		prompt:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		notice:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		status:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		faint:       lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		interrupted: lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Italic(true),
	}
}

func (m *model) resize() {
	headerLines := 1
	footerLines := 4
	height := m.height - headerLines - footerLines
	if height < 3 {
		height = 3
	}
	if !m.ready {
		m.history = viewport.New(m.width, height)
		m.ready = true
	} else {
		m.history.Width = m.width
		m.history.Height = height
	}
	m.input.Width = m.width - 4
}

func (m *model) refreshHistory() {
	if !m.ready {
		return
	}
	atBottom := m.history.AtBottom()
	m.history.SetContent(m.renderConversation())
	if atBottom {
		m.history.GotoBottom()
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.ready {
		b.WriteString(m.history.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderPromptArea())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *model) renderHeader() string {
	title := "sift"
	if id := m.orch.ConversationID(); id != "" {
		title += " · " + id
	}
	if n := m.orch.Pool().Len(); n > 0 {
		title += fmt.Sprintf(" · %d documents in pool", n)
	}
	return m.theme.header.Render(title)
}

func (m *model) renderConversation() string {
	var sections []string
	for _, turn := range m.orch.History() {
		sections = append(sections, m.renderTurn(turn))
	}
	if active := m.orch.Active(); active != nil {
		sections = append(sections, m.renderTurn(active))
	}
	if len(sections) == 0 {
		return m.theme.faint.Render("no questions yet")
	}
	return strings.Join(sections, "\n\n")
}

func (m *model) renderTurn(turn *session.Turn) string {
	var b strings.Builder
	b.WriteString(m.theme.question.Render("❯ " + turn.Question))
	b.WriteString("\n")

	for _, step := range turn.Steps {
		b.WriteString(m.renderStep(step))
		b.WriteString("\n")
	}

	if answer := turn.Answer(); answer != "" {
		b.WriteString(m.renderAnswer(turn, answer))
		b.WriteString("\n")
	}

	switch {
	case turn.Failed:
		msg := turn.FailureMsg
		if turn.Answer() != "" {
			msg = "interrupted: " + msg
		}
		b.WriteString(m.theme.interrupted.Render("✗ " + msg))
	case turn.Streaming:
		b.WriteString(m.theme.stepActive.Render(m.spinner.View() + " streaming"))
	case turn.Pending != nil:
		b.WriteString(m.theme.prompt.Render("⏸ waiting for your input"))
	case turn.TokensUsed > 0 || turn.ProcessingTime > 0:
		b.WriteString(m.theme.faint.Render(fmt.Sprintf("%d tokens · %.1fs", turn.TokensUsed, turn.ProcessingTime)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderStep(step trace.Step) string {
	glyph := "…"
	style := m.theme.stepActive
	if step.Status == trace.StatusDone {
		glyph = "✓"
		style = m.theme.stepDone
	}
	line := fmt.Sprintf("  %s %s", glyph, step.Message)
	if step.Detail != "" {
		line += m.theme.faint.Render(" · " + step.Detail)
	}
	return style.Render(line)
}

// renderAnswer maps citation tokens to styled markers; the answer text
// itself is never mutated, so re-renders are always safe.
func (m *model) renderAnswer(turn *session.Turn, answer string) string {
	var b strings.Builder
	for _, tok := range docpool.Tokenize(answer) {
		if tok.Kind != docpool.TokenCitation {
			b.WriteString(m.theme.answer.Render(tok.Text))
			continue
		}
		doc, err := m.orch.ResolveCitation(turn, tok.Index)
		if err != nil {
			b.WriteString(m.theme.badCite.Render(tok.Text))
			continue
		}
		b.WriteString(m.theme.citation.Render(fmt.Sprintf("[%d·%s]", tok.Index, doc.Filename)))
	}
	return b.String()
}

func (m *model) renderPromptArea() string {
	pending := m.orch.Pending()
	if pending == nil {
		return ""
	}
	var lines []string
	switch m.orch.Phase() {
	case workflow.PhaseAwaitingSearch:
		lines = append(lines, m.theme.prompt.Render("The pipeline wants to search your documents. Approve? [y]es / [n]o"))
		if pending.SearchPreview != "" {
			lines = append(lines, m.theme.faint.Render("  "+pending.SearchPreview))
		}
	case workflow.PhaseAwaitingDetailQuery:
		lines = append(lines, m.theme.prompt.Render("The pipeline wants to run detail queries. Approve? [y]es / [n]o"))
		for _, name := range pending.TargetDocuments {
			lines = append(lines, m.theme.faint.Render("  · "+name))
		}
	case workflow.PhaseAwaitingClarification:
		lines = append(lines, m.theme.prompt.Render(pending.ClarificationQuestion))
		for i, reply := range pending.SuggestedReplies {
			lines = append(lines, m.theme.faint.Render(fmt.Sprintf("  %d. %s", i+1, reply)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderInput() string {
	return "  " + m.input.View()
}

func (m *model) renderFooter() string {
	status := m.statusLine
	if m.notice != "" {
		return m.theme.notice.Render("! "+m.notice) + "  " + m.theme.status.Render(status)
	}
	return m.theme.status.Render(status + " · esc cancels · ctrl+c quits")
}
