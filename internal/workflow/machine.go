// Package workflow tracks the approval/clarification lifecycle of one QA
// turn. A turn can pause any number of times for human input; each pause
// ends the current HTTP request and each resume opens a new one that is
// logically the same turn.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"sift/internal/protocol"
)

type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseStreaming             Phase = "streaming"
	PhaseAwaitingClarification Phase = "awaiting_clarification"
	PhaseAwaitingSearch        Phase = "awaiting_search_approval"
	PhaseAwaitingDetailQuery   Phase = "awaiting_detail_query_approval"
	PhaseCompleted             Phase = "completed"
	PhaseFailed                Phase = "failed"
)

// Action is the wire value of a workflow continuation.
type Action string

const (
	ActionApproveSearch        Action = "approve_search"
	ActionSkipSearch           Action = "skip_search"
	ActionApproveDetailQuery   Action = "approve_detail_query"
	ActionSkipDetailQuery      Action = "skip_detail_query"
	ActionProvideClarification Action = "provide_clarification"
)

var (
	// ErrTurnInFlight rejects a new question while one is streaming or paused.
	ErrTurnInFlight = errors.New("workflow: a turn is already in flight")
	// ErrWorkflowViolation rejects a continuation that does not match the
	// pending step. Rejected locally; no request is sent.
	ErrWorkflowViolation = errors.New("workflow: action does not match pending step")
)

// Machine is the per-conversation turn state machine. Not safe for
// concurrent use; driven from the UI event loop.
type Machine struct {
	phase   Phase
	pending *protocol.WorkflowState
}

func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

func (m *Machine) Phase() Phase {
	return m.phase
}

// Pending returns the step payload the backend is waiting on, nil when none.
func (m *Machine) Pending() *protocol.WorkflowState {
	return m.pending
}

// InFlight reports whether a turn is currently streaming or paused for
// input, i.e. whether a new question must be rejected.
func (m *Machine) InFlight() bool {
	switch m.phase {
	case PhaseStreaming, PhaseAwaitingClarification, PhaseAwaitingSearch, PhaseAwaitingDetailQuery:
		return true
	default:
		return false
	}
}

// Start begins a fresh turn.
func (m *Machine) Start() error {
	if m.InFlight() {
		return ErrTurnInFlight
	}
	m.phase = PhaseStreaming
	m.pending = nil
	return nil
}

// ApplyPending parks the machine on the step the backend asked for. The
// turn stays open: completion is unreachable until every pending round is
// resumed and a terminal complete arrives.
func (m *Machine) ApplyPending(ws *protocol.WorkflowState) error {
	if m.phase != PhaseStreaming {
		return fmt.Errorf("workflow: pending step in phase %s: %w", m.phase, ErrWorkflowViolation)
	}
	if !ws.Pending() {
		return fmt.Errorf("workflow: pending step payload without a step: %w", ErrWorkflowViolation)
	}
	switch ws.CurrentStep {
	case protocol.StepNeedClarification:
		m.phase = PhaseAwaitingClarification
	case protocol.StepAwaitingSearchApproval:
		m.phase = PhaseAwaitingSearch
	case protocol.StepAwaitingDetailQueryApproval:
		m.phase = PhaseAwaitingDetailQuery
	default:
		return fmt.Errorf("workflow: unknown step %q: %w", ws.CurrentStep, ErrWorkflowViolation)
	}
	m.pending = ws
	return nil
}

// Resume validates a continuation against the pending step and, on success,
// re-enters Streaming for the follow-up request of the same turn.
func (m *Machine) Resume(action Action, clarificationText string) error {
	var want []Action
	switch m.phase {
	case PhaseAwaitingClarification:
		want = []Action{ActionProvideClarification}
	case PhaseAwaitingSearch:
		want = []Action{ActionApproveSearch, ActionSkipSearch}
	case PhaseAwaitingDetailQuery:
		want = []Action{ActionApproveDetailQuery, ActionSkipDetailQuery}
	default:
		return fmt.Errorf("workflow: resume in phase %s: %w", m.phase, ErrWorkflowViolation)
	}
	allowed := false
	for _, a := range want {
		if a == action {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("workflow: action %q for phase %s: %w", action, m.phase, ErrWorkflowViolation)
	}
	if action == ActionProvideClarification && strings.TrimSpace(clarificationText) == "" {
		return fmt.Errorf("workflow: clarification text required: %w", ErrWorkflowViolation)
	}
	m.phase = PhaseStreaming
	m.pending = nil
	return nil
}

// Complete finalizes the turn. Only legal while streaming with nothing
// pending; an Awaiting* phase must chain through Resume first.
func (m *Machine) Complete() error {
	if m.phase != PhaseStreaming {
		return fmt.Errorf("workflow: complete in phase %s: %w", m.phase, ErrWorkflowViolation)
	}
	m.phase = PhaseCompleted
	m.pending = nil
	return nil
}

// Fail moves to Failed from anywhere; the active turn is discarded.
func (m *Machine) Fail() {
	m.phase = PhaseFailed
	m.pending = nil
}

// Reset returns to Idle, e.g. after the user dismisses a failure.
func (m *Machine) Reset() {
	m.phase = PhaseIdle
	m.pending = nil
}
