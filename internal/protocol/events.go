package protocol

import "strings"

// EventType discriminates the records the QA backend streams over SSE.
type EventType string

const (
	EventChunk          EventType = "chunk"
	EventComplete       EventType = "complete"
	EventApprovalNeeded EventType = "approval_needed"
	EventMetadata       EventType = "metadata"
	EventProgress       EventType = "progress"
	EventError          EventType = "error"
)

// WorkflowStep names the pause point the backend is waiting on. A non-none
// step means the turn is not finalized yet.
type WorkflowStep string

const (
	StepNone                        WorkflowStep = "none"
	StepNeedClarification           WorkflowStep = "need_clarification"
	StepAwaitingSearchApproval      WorkflowStep = "awaiting_search_approval"
	StepAwaitingDetailQueryApproval WorkflowStep = "awaiting_detail_query_approval"
)

// WorkflowState is the step payload embedded in approval_needed and complete
// records. CombinedQuestion, when set, is the backend-composed question a
// continuation request must carry verbatim.
type WorkflowState struct {
	CurrentStep           WorkflowStep `json:"current_step"`
	ClarificationQuestion string       `json:"clarification_question,omitempty"`
	SuggestedReplies      []string     `json:"suggested_replies,omitempty"`
	SearchPreview         string       `json:"search_preview,omitempty"`
	TargetDocuments       []string     `json:"target_documents,omitempty"`
	CombinedQuestion      string       `json:"combined_question,omitempty"`
}

// Pending reports whether the state names a step that blocks finalization.
func (w *WorkflowState) Pending() bool {
	if w == nil {
		return false
	}
	step := WorkflowStep(strings.TrimSpace(string(w.CurrentStep)))
	return step != "" && step != StepNone
}

// DocumentRef is one entry of the ordered document pool. Position in the
// pool slice is the citation index (1-based), so order is load-bearing.
type DocumentRef struct {
	DocumentID     string   `json:"document_id"`
	Filename       string   `json:"filename"`
	RelevanceScore float64  `json:"relevance_score"`
	Summary        string   `json:"summary,omitempty"`
	KeyConcepts    []string `json:"key_concepts,omitempty"`
	AccessCount    int      `json:"access_count"`
}

// Event is the decoded form of one SSE data record. The backend emits a flat
// object with a type tag; fields not belonging to the tagged type are left
// zero.
type Event struct {
	Type EventType `json:"type"`

	// chunk
	Text string `json:"text,omitempty"`

	// complete
	Answer         string `json:"answer,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	// complete / approval_needed
	WorkflowState *WorkflowState `json:"workflow_state,omitempty"`

	// metadata
	TokensUsed            int           `json:"tokens_used,omitempty"`
	SourceDocuments       []string      `json:"source_documents,omitempty"`
	DocumentPool          []DocumentRef `json:"document_pool,omitempty"`
	CurrentRoundDocuments []DocumentRef `json:"current_round_documents,omitempty"`
	ProcessingTime        float64       `json:"processing_time,omitempty"`

	// progress
	Stage  string `json:"stage,omitempty"`
	Detail string `json:"detail,omitempty"`

	// progress / error
	Message string `json:"message,omitempty"`
}

func (e Event) known() bool {
	switch e.Type {
	case EventChunk, EventComplete, EventApprovalNeeded, EventMetadata, EventProgress, EventError:
		return true
	default:
		return false
	}
}
