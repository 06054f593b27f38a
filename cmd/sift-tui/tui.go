package main

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"sift/internal/api"
	"sift/internal/config"
	"sift/internal/protocol"
	"sift/internal/session"
	"sift/internal/workflow"
)

type streamEventMsg struct {
	event protocol.Event
}

type streamClosedMsg struct {
	err error
}

type model struct {
	cfg    config.Config
	client *api.Client
	orch   *session.Orchestrator
	log    zerolog.Logger
	theme  uiTheme

	input   textinput.Model
	history viewport.Model
	spinner spinner.Model

	streamCh     chan tea.Msg
	cancelStream context.CancelFunc

	width  int
	height int
	ready  bool

	statusLine string
	notice     string
	quitting   bool
}

func newModel(cfg config.Config, client *api.Client, orch *session.Orchestrator, log zerolog.Logger) model {
	input := textinput.New()
	input.Placeholder = "ask a question about your documents"
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return model{
		cfg:        cfg,
		client:     client,
		orch:       orch,
		log:        log,
		theme:      newTheme(),
		input:      input,
		spinner:    sp,
		statusLine: "ready",
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

// startStream opens the next turn segment and pumps its events into the
// Elm loop through a buffered channel. All state mutation stays in Update.
func (m *model) startStream(req api.AskRequest) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel
	m.streamCh = make(chan tea.Msg, 64)
	go runAskStream(ctx, m.client, req, m.streamCh)
	return tea.Batch(waitStreamMsg(m.streamCh), m.spinner.Tick)
}

func runAskStream(ctx context.Context, client *api.Client, req api.AskRequest, out chan<- tea.Msg) {
	defer close(out)
	stream, err := client.Ask(ctx, req)
	if err != nil {
		out <- streamClosedMsg{err: err}
		return
	}
	defer stream.Close()
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, protocol.ErrDone) || errors.Is(err, io.EOF) {
			out <- streamClosedMsg{}
			return
		}
		if err != nil {
			out <- streamClosedMsg{err: err}
			return
		}
		out <- streamEventMsg{event: ev}
	}
}

func waitStreamMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *model) stopStream() {
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshHistory()

	case streamEventMsg:
		eff := m.orch.Apply(msg.event)
		m.applyEffect(eff)
		m.refreshHistory()
		cmds = append(cmds, waitStreamMsg(m.streamCh))

	case streamClosedMsg:
		eff := m.orch.StreamClosed(msg.err)
		m.applyEffect(eff)
		m.refreshHistory()
		m.streamCh = nil
		m.cancelStream = nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.orch.Phase() == workflow.PhaseStreaming {
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		var vpCmd tea.Cmd
		m.history, vpCmd = m.history.Update(msg)
		cmds = append(cmds, vpCmd)

	case tea.KeyMsg:
		// Scrolling keys go to the viewport; everything else belongs to the
		// workflow prompt or the text input.
		switch msg.String() {
		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.history, vpCmd = m.history.Update(msg)
			return m, vpCmd
		}
		cmd, handled := m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if m.quitting {
			return m, tea.Quit
		}
		if !handled {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// handleKey returns the command to run and whether the key was consumed
// (a consumed key is kept away from the text input).
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		m.stopStream()
		m.orch.Abort("cancelled by user")
		m.quitting = true
		return nil, true
	case "esc":
		if m.orch.InFlight() {
			m.stopStream()
			eff := m.orch.Abort("cancelled by user")
			m.applyEffect(eff)
			m.refreshHistory()
			return nil, true
		}
		if active := m.orch.Active(); active != nil && active.Failed {
			m.orch.ClearActive()
			m.notice = ""
			m.statusLine = "ready"
			m.refreshHistory()
			return nil, true
		}
		return nil, false
	}

	switch m.orch.Phase() {
	case workflow.PhaseAwaitingSearch:
		return m.handleApprovalKey(key, workflow.ActionApproveSearch, workflow.ActionSkipSearch)
	case workflow.PhaseAwaitingDetailQuery:
		return m.handleApprovalKey(key, workflow.ActionApproveDetailQuery, workflow.ActionSkipDetailQuery)
	case workflow.PhaseAwaitingClarification:
		return m.handleClarificationKey(msg)
	}

	if key == "enter" {
		return m.submitQuestion(), true
	}
	return nil, false
}

func (m *model) handleApprovalKey(key string, approve, skip workflow.Action) (tea.Cmd, bool) {
	switch key {
	case "y", "Y", "enter":
		return m.resume(approve, ""), true
	case "n", "N":
		return m.resume(skip, ""), true
	default:
		// Swallow everything else; the input box is inert during approvals.
		return nil, true
	}
}

func (m *model) handleClarificationKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	if key == "enter" {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			m.statusLine = "type a reply (or pick a suggestion by number)"
			return nil, true
		}
		m.input.Reset()
		return m.resume(workflow.ActionProvideClarification, text), true
	}
	// A bare digit picks a suggested reply when the input is empty.
	if pending := m.orch.Pending(); pending != nil && m.input.Value() == "" && len(key) == 1 {
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(pending.SuggestedReplies) {
			return m.resume(workflow.ActionProvideClarification, pending.SuggestedReplies[n-1]), true
		}
	}
	return nil, false
}

func (m *model) submitQuestion() tea.Cmd {
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return nil
	}
	req, err := m.orch.Begin(question)
	if err != nil {
		if errors.Is(err, workflow.ErrTurnInFlight) {
			m.statusLine = "a turn is already in flight; wait or press esc to cancel"
		} else {
			m.statusLine = err.Error()
		}
		return nil
	}
	m.notice = ""
	m.input.Reset()
	m.statusLine = "thinking…"
	m.refreshHistory()
	return m.startStream(req)
}

func (m *model) resume(action workflow.Action, clarificationText string) tea.Cmd {
	req, err := m.orch.Resume(action, clarificationText)
	if err != nil {
		m.statusLine = err.Error()
		m.log.Warn().Err(err).Msg("continuation rejected")
		return nil
	}
	m.statusLine = "resuming…"
	m.refreshHistory()
	return m.startStream(req)
}

func (m *model) applyEffect(eff session.Effect) {
	switch eff.Kind {
	case session.EffectCompleted:
		m.statusLine = "answer complete"
	case session.EffectAwaitingInput:
		m.statusLine = m.pendingPrompt()
	case session.EffectFailed:
		m.notice = eff.Notice
		m.statusLine = "turn failed"
	}
}

func (m *model) pendingPrompt() string {
	pending := m.orch.Pending()
	if pending == nil {
		return ""
	}
	switch pending.CurrentStep {
	case protocol.StepAwaitingSearchApproval:
		return "approve document search? y/n"
	case protocol.StepAwaitingDetailQueryApproval:
		return "approve detail queries? y/n"
	case protocol.StepNeedClarification:
		return "clarification needed: type a reply and press enter"
	default:
		return ""
	}
}
