// Package session owns the one in-flight QA turn per conversation: it maps
// decoded stream events onto the workflow machine, the document pool and
// the reasoning trace, and decides when a turn is allowed into history.
package session

import (
	"time"

	"github.com/rs/zerolog"

	"sift/internal/api"
	"sift/internal/docpool"
	"sift/internal/protocol"
	"sift/internal/trace"
	"sift/internal/workflow"
)

// EffectKind tells the UI what an applied event changed.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectAnswerDelta
	EffectTraceUpdated
	EffectPoolUpdated
	EffectAwaitingInput
	EffectCompleted
	EffectFailed
)

// Effect is the result of feeding one event (or a stream closure) into the
// orchestrator. Notice is set exactly once per fatal outcome.
type Effect struct {
	Kind   EffectKind
	Notice string
}

// Options pins the request knobs that ride along on every turn segment.
type Options struct {
	SessionID           string
	DocumentIDs         []string
	ContextLimit        int
	UseSemanticSearch   bool
	UseStructuredFilter bool
}

// Orchestrator is a single-threaded reducer: the UI event loop calls Begin/
// Resume to obtain the next request to issue and Apply/StreamClosed for
// every event the decoder yields. No internal locking; never share one
// across goroutines.
type Orchestrator struct {
	machine *workflow.Machine
	pool    *docpool.Pool
	steps   *trace.Accumulator

	active  *Turn
	history []*Turn

	conversationID string
	opts           Options
	now            func() time.Time
	log            zerolog.Logger
}

func NewOrchestrator(conversationID string, opts Options, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		machine:        workflow.NewMachine(),
		pool:           docpool.New(),
		steps:          trace.NewAccumulator(),
		conversationID: conversationID,
		opts:           opts,
		now:            time.Now,
		log:            log,
	}
}

// Begin opens a fresh turn for a new question. Rejected while another turn
// is streaming or awaiting input.
func (o *Orchestrator) Begin(question string) (api.AskRequest, error) {
	if err := o.machine.Start(); err != nil {
		return api.AskRequest{}, err
	}
	o.steps.Reset()
	o.pool.ClearRound()
	o.active = &Turn{
		Question:       question,
		ConversationID: o.conversationID,
		Streaming:      true,
		StartedAt:      o.now(),
	}
	o.log.Info().Str("conversation_id", o.conversationID).Msg("turn started")
	return o.request(question, "", ""), nil
}

// Resume continues the paused turn with a workflow action. The pending
// payload may carry a backend-composed combined question; it is honored
// verbatim and never recomposed client-side.
func (o *Orchestrator) Resume(action workflow.Action, clarificationText string) (api.AskRequest, error) {
	pending := o.machine.Pending()
	if err := o.machine.Resume(action, clarificationText); err != nil {
		return api.AskRequest{}, err
	}
	question := o.active.Question
	if pending != nil && pending.CombinedQuestion != "" {
		question = pending.CombinedQuestion
	}
	o.active.Pending = nil
	o.active.Streaming = true
	o.log.Info().Str("action", string(action)).Msg("turn resumed")
	return o.request(question, action, clarificationText), nil
}

func (o *Orchestrator) request(question string, action workflow.Action, clarificationText string) api.AskRequest {
	return api.AskRequest{
		Question:            question,
		ConversationID:      o.conversationID,
		SessionID:           o.opts.SessionID,
		DocumentIDs:         o.opts.DocumentIDs,
		ContextLimit:        o.opts.ContextLimit,
		UseSemanticSearch:   o.opts.UseSemanticSearch,
		UseStructuredFilter: o.opts.UseStructuredFilter,
		WorkflowAction:      action,
		ClarificationText:   clarificationText,
	}
}

// Apply folds one decoded event into the turn. Events arrive in server
// order and are processed synchronously.
func (o *Orchestrator) Apply(ev protocol.Event) Effect {
	if o.active == nil || !o.machine.InFlight() {
		o.log.Warn().Str("type", string(ev.Type)).Msg("dropping event with no turn in flight")
		return Effect{Kind: EffectNone}
	}
	switch ev.Type {
	case protocol.EventChunk:
		o.active.appendText(ev.Text)
		return Effect{Kind: EffectAnswerDelta}

	case protocol.EventProgress:
		o.steps.Append(string(ev.Type), ev.Stage, ev.Message, ev.Detail)
		o.active.Steps = o.steps.Freeze()
		return Effect{Kind: EffectTraceUpdated}

	case protocol.EventMetadata:
		if len(ev.DocumentPool) > 0 {
			o.pool.Replace(ev.DocumentPool)
		}
		if len(ev.CurrentRoundDocuments) > 0 {
			o.pool.ReplaceRound(ev.CurrentRoundDocuments)
		}
		if len(ev.SourceDocuments) > 0 {
			o.active.SourceDocuments = ev.SourceDocuments
		}
		if ev.TokensUsed > 0 {
			o.active.TokensUsed = ev.TokensUsed
		}
		if ev.ProcessingTime > 0 {
			o.active.ProcessingTime = ev.ProcessingTime
		}
		return Effect{Kind: EffectPoolUpdated}

	case protocol.EventApprovalNeeded:
		return o.park(ev.WorkflowState)

	case protocol.EventComplete:
		if ev.WorkflowState.Pending() {
			// A complete that still carries a step is a pause, not an end.
			return o.park(ev.WorkflowState)
		}
		return o.finalize(ev)

	case protocol.EventError:
		return o.fail(ev.Message)
	}
	return Effect{Kind: EffectNone}
}

func (o *Orchestrator) park(ws *protocol.WorkflowState) Effect {
	if err := o.machine.ApplyPending(ws); err != nil {
		o.log.Warn().Err(err).Msg("rejecting workflow pause")
		return o.fail("backend sent an invalid workflow step")
	}
	o.active.Pending = ws
	o.active.Streaming = false
	o.log.Info().Str("step", string(ws.CurrentStep)).Msg("turn paused for input")
	return Effect{Kind: EffectAwaitingInput}
}

func (o *Orchestrator) finalize(ev protocol.Event) Effect {
	if err := o.machine.Complete(); err != nil {
		o.log.Warn().Err(err).Msg("rejecting completion")
		return o.fail("backend completed a turn that was not streaming")
	}
	o.SetConversationID(ev.ConversationID)
	turn := o.active
	turn.ConversationID = o.conversationID
	if turn.Answer() == "" && ev.Answer != "" {
		turn.setAnswer(ev.Answer)
	}
	o.steps.CloseActive()
	turn.Steps = o.steps.Freeze()
	turn.PoolSnapshot = o.pool.Snapshot()
	turn.Pending = nil
	turn.Streaming = false
	turn.CompletedAt = o.now()
	o.history = append(o.history, turn)
	o.active = nil
	o.log.Info().Int("history", len(o.history)).Msg("turn completed")
	return Effect{Kind: EffectCompleted}
}

func (o *Orchestrator) fail(message string) Effect {
	if message == "" {
		message = "the answer stream failed"
	}
	o.steps.CloseActive()
	if o.active != nil {
		o.active.Steps = o.steps.Freeze()
		o.active.Streaming = false
		o.active.Failed = true
		o.active.FailureMsg = message
	}
	o.machine.Fail()
	o.log.Error().Str("reason", message).Msg("turn failed")
	return Effect{Kind: EffectFailed, Notice: message}
}

// StreamClosed reports the end of one HTTP request cycle. Transport end is
// expected while a workflow step is pending (the server pauses by closing
// the segment) and after completion; anywhere else it fails the turn.
func (o *Orchestrator) StreamClosed(err error) Effect {
	switch o.machine.Phase() {
	case workflow.PhaseStreaming:
		if err != nil {
			return o.fail(err.Error())
		}
		return o.fail("the answer stream ended before completing")
	default:
		return Effect{Kind: EffectNone}
	}
}

// Abort cancels the active turn without touching history. Used when the
// user interrupts or navigates away.
func (o *Orchestrator) Abort(reason string) Effect {
	if !o.machine.InFlight() {
		return Effect{Kind: EffectNone}
	}
	return o.fail(reason)
}

// ResolveCitation resolves a 1-based index for the given turn, preferring
// its frozen snapshot and falling back to the live pool.
func (o *Orchestrator) ResolveCitation(turn *Turn, index int) (protocol.DocumentRef, error) {
	var snapshot []protocol.DocumentRef
	if turn != nil {
		snapshot = turn.PoolSnapshot
	}
	return docpool.Resolve(index, snapshot, o.pool.Live())
}

// Active returns the in-flight (or just-failed) turn, nil when none.
func (o *Orchestrator) Active() *Turn {
	return o.active
}

// ClearActive drops a failed turn once the UI has shown its notice.
func (o *Orchestrator) ClearActive() {
	if o.active != nil && o.active.Failed {
		o.active = nil
		o.machine.Reset()
	}
}

// History returns the completed turns in order.
func (o *Orchestrator) History() []*Turn {
	return o.history
}

// Pool exposes the live pool for rendering the sidebar.
func (o *Orchestrator) Pool() *docpool.Pool {
	return o.pool
}

func (o *Orchestrator) Phase() workflow.Phase {
	return o.machine.Phase()
}

func (o *Orchestrator) Pending() *protocol.WorkflowState {
	return o.machine.Pending()
}

func (o *Orchestrator) InFlight() bool {
	return o.machine.InFlight()
}

func (o *Orchestrator) ConversationID() string {
	return o.conversationID
}

// SetConversationID adopts the id the backend assigned on the first turn.
func (o *Orchestrator) SetConversationID(id string) {
	if id != "" {
		o.conversationID = id
	}
}
