package session

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"sift/internal/docpool"
	"sift/internal/protocol"
	"sift/internal/trace"
	"sift/internal/workflow"
)

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator("conv-1", Options{SessionID: "sess-1"}, zerolog.Nop())
}

func chunk(text string) protocol.Event {
	return protocol.Event{Type: protocol.EventChunk, Text: text}
}

func progress(stage, message string) protocol.Event {
	return protocol.Event{Type: protocol.EventProgress, Stage: stage, Message: message}
}

func approvalNeeded(step protocol.WorkflowStep) protocol.Event {
	return protocol.Event{
		Type:          protocol.EventApprovalNeeded,
		WorkflowState: &protocol.WorkflowState{CurrentStep: step},
	}
}

func complete(answer string) protocol.Event {
	return protocol.Event{Type: protocol.EventComplete, Answer: answer}
}

func TestChunksConcatenateIntoAnswer(t *testing.T) {
	o := newTestOrchestrator()
	if _, err := o.Begin("what is attention?"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	o.Apply(chunk("Attention "))
	o.Apply(chunk("is "))
	o.Apply(chunk("weighting."))
	eff := o.Apply(complete("ignored, chunks win"))
	if eff.Kind != EffectCompleted {
		t.Fatalf("expected completion, got %v", eff.Kind)
	}
	history := o.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Answer() != "Attention is weighting." {
		t.Fatalf("unexpected answer: %q", history[0].Answer())
	}
}

func TestCompleteAnswerUsedWhenNoChunks(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(complete("full answer"))
	if got := o.History()[0].Answer(); got != "full answer" {
		t.Fatalf("expected complete.answer fallback, got %q", got)
	}
}

func TestBeginRejectedWhileInFlight(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("first")
	if _, err := o.Begin("second"); !errors.Is(err, workflow.ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}

	o.Apply(approvalNeeded(protocol.StepAwaitingSearchApproval))
	if _, err := o.Begin("third"); !errors.Is(err, workflow.ErrTurnInFlight) {
		t.Fatalf("expected rejection while awaiting approval, got %v", err)
	}
}

func TestApprovalRoundsYieldExactlyOneHistoryEntry(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("compare the two reports")

	o.Apply(progress("classify", "classifying"))
	eff := o.Apply(approvalNeeded(protocol.StepAwaitingSearchApproval))
	if eff.Kind != EffectAwaitingInput {
		t.Fatalf("expected awaiting input, got %v", eff.Kind)
	}
	if len(o.History()) != 0 {
		t.Fatalf("turn must not be in history while paused")
	}

	req, err := o.Resume(workflow.ActionApproveSearch, "")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if req.WorkflowAction != workflow.ActionApproveSearch {
		t.Fatalf("unexpected continuation action: %q", req.WorkflowAction)
	}
	if req.Question != "compare the two reports" {
		t.Fatalf("continuation must carry the original question, got %q", req.Question)
	}

	o.Apply(progress("retrieve", "searching"))
	o.Apply(approvalNeeded(protocol.StepAwaitingDetailQueryApproval))
	if _, err := o.Resume(workflow.ActionApproveDetailQuery, ""); err != nil {
		t.Fatalf("resume detail: %v", err)
	}

	o.Apply(chunk("both agree"))
	eff = o.Apply(complete(""))
	if eff.Kind != EffectCompleted {
		t.Fatalf("expected completion, got %v", eff.Kind)
	}
	if len(o.History()) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(o.History()))
	}
	turn := o.History()[0]
	if turn.Answer() != "both agree" {
		t.Fatalf("answer buffer did not survive the pauses: %q", turn.Answer())
	}
	if len(turn.Steps) != 2 {
		t.Fatalf("trace did not survive the pauses: %d steps", len(turn.Steps))
	}
}

func TestCompleteCarryingPendingStepDoesNotFinalize(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	eff := o.Apply(protocol.Event{
		Type: protocol.EventComplete,
		WorkflowState: &protocol.WorkflowState{
			CurrentStep:           protocol.StepNeedClarification,
			ClarificationQuestion: "which year?",
		},
	})
	if eff.Kind != EffectAwaitingInput {
		t.Fatalf("complete with pending step must pause, got %v", eff.Kind)
	}
	if len(o.History()) != 0 {
		t.Fatalf("paused turn leaked into history")
	}
	if o.Pending() == nil || o.Pending().ClarificationQuestion != "which year?" {
		t.Fatalf("pending payload not exposed")
	}
}

func TestCombinedQuestionHonoredVerbatim(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("revenue?")
	o.Apply(protocol.Event{
		Type: protocol.EventApprovalNeeded,
		WorkflowState: &protocol.WorkflowState{
			CurrentStep:      protocol.StepNeedClarification,
			CombinedQuestion: "revenue for FY2024, consolidated",
		},
	})
	req, err := o.Resume(workflow.ActionProvideClarification, "FY2024")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if req.Question != "revenue for FY2024, consolidated" {
		t.Fatalf("combined question not honored: %q", req.Question)
	}
	if req.ClarificationText != "FY2024" {
		t.Fatalf("clarification text missing: %q", req.ClarificationText)
	}
}

func TestSnapshotKeepsCitationsStableAcrossTurns(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("first question")
	o.Apply(protocol.Event{
		Type: protocol.EventMetadata,
		DocumentPool: []protocol.DocumentRef{
			{DocumentID: "A"}, {DocumentID: "B"}, {DocumentID: "C"},
		},
	})
	o.Apply(chunk("see [2]"))
	o.Apply(complete(""))
	first := o.History()[0]

	doc, err := o.ResolveCitation(first, 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if doc.DocumentID != "B" {
		t.Fatalf("expected B, got %q", doc.DocumentID)
	}

	// A later turn reshuffles the live pool; the old citation must not move.
	_, _ = o.Begin("second question")
	o.Apply(protocol.Event{
		Type: protocol.EventMetadata,
		DocumentPool: []protocol.DocumentRef{
			{DocumentID: "Z"}, {DocumentID: "A"}, {DocumentID: "B"},
		},
	})
	o.Apply(complete("done"))

	doc, err = o.ResolveCitation(first, 2)
	if err != nil {
		t.Fatalf("resolve after growth: %v", err)
	}
	if doc.DocumentID != "B" {
		t.Fatalf("citation drifted to %q after pool growth", doc.DocumentID)
	}

	if _, err := o.ResolveCitation(first, 5); !errors.Is(err, docpool.ErrCitationOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestRoundDocumentsPreferredForSnapshot(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(protocol.Event{
		Type:                  protocol.EventMetadata,
		DocumentPool:          []protocol.DocumentRef{{DocumentID: "old"}, {DocumentID: "fresh"}},
		CurrentRoundDocuments: []protocol.DocumentRef{{DocumentID: "fresh"}},
	})
	o.Apply(complete("answer [1]"))
	turn := o.History()[0]
	if len(turn.PoolSnapshot) != 1 || turn.PoolSnapshot[0].DocumentID != "fresh" {
		t.Fatalf("expected round list snapshot, got %+v", turn.PoolSnapshot)
	}
}

func TestDuplicateProgressStageUpdatesInPlace(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(progress("query_rewriting", "rewriting"))
	o.Apply(progress("query_rewriting", "rewriting again"))
	if got := len(o.Active().Steps); got != 1 {
		t.Fatalf("expected trace length 1, got %d", got)
	}
	if o.Active().Steps[0].Message != "rewriting again" {
		t.Fatalf("step not updated in place: %+v", o.Active().Steps[0])
	}
}

func TestErrorEventFailsTurnWithOneNotice(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(progress("generate", "writing"))
	o.Apply(chunk("partial "))

	eff := o.Apply(protocol.Event{Type: protocol.EventError, Message: "model overloaded"})
	if eff.Kind != EffectFailed || eff.Notice != "model overloaded" {
		t.Fatalf("expected failure notice, got %+v", eff)
	}
	if len(o.History()) != 0 {
		t.Fatalf("failed turn must not enter history")
	}
	turn := o.Active()
	if turn == nil || !turn.Failed {
		t.Fatalf("failed turn should stay visible for display")
	}
	if turn.Answer() != "partial " {
		t.Fatalf("partial answer lost: %q", turn.Answer())
	}
	if turn.Steps[0].Status != trace.StatusDone {
		t.Fatalf("active step not closed on error: %+v", turn.Steps[0])
	}

	// The transport closing afterwards must not emit a second notice.
	if eff := o.StreamClosed(io.ErrUnexpectedEOF); eff.Kind != EffectNone {
		t.Fatalf("expected silent stream close after failure, got %+v", eff)
	}
}

func TestTransportEOFWhilePausedIsHarmless(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(approvalNeeded(protocol.StepAwaitingSearchApproval))
	if eff := o.StreamClosed(nil); eff.Kind != EffectNone {
		t.Fatalf("segment end while awaiting approval must be harmless, got %+v", eff)
	}
	if !o.InFlight() {
		t.Fatalf("turn must still be in flight")
	}
}

func TestTransportEOFWhileStreamingFailsTurn(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(chunk("par"))
	eff := o.StreamClosed(nil)
	if eff.Kind != EffectFailed || eff.Notice == "" {
		t.Fatalf("expected failure with notice, got %+v", eff)
	}
}

func TestAbortDiscardsActiveTurn(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	eff := o.Abort("cancelled")
	if eff.Kind != EffectFailed {
		t.Fatalf("expected failure effect, got %+v", eff)
	}
	o.ClearActive()
	if o.Active() != nil {
		t.Fatalf("expected active slot cleared")
	}
	if _, err := o.Begin("next"); err != nil {
		t.Fatalf("begin after abort: %v", err)
	}
}

func TestResumeViolationLeavesTurnPaused(t *testing.T) {
	o := newTestOrchestrator()
	_, _ = o.Begin("q")
	o.Apply(approvalNeeded(protocol.StepAwaitingSearchApproval))
	if _, err := o.Resume(workflow.ActionProvideClarification, "text"); !errors.Is(err, workflow.ErrWorkflowViolation) {
		t.Fatalf("expected violation, got %v", err)
	}
	if o.Phase() != workflow.PhaseAwaitingSearch {
		t.Fatalf("violation must not change phase, got %s", o.Phase())
	}
}

func TestEventsWithNoTurnAreDropped(t *testing.T) {
	o := newTestOrchestrator()
	if eff := o.Apply(chunk("ghost")); eff.Kind != EffectNone {
		t.Fatalf("expected drop, got %+v", eff)
	}
}
