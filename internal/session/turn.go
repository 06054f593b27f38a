package session

import (
	"strings"
	"time"

	"sift/internal/protocol"
	"sift/internal/trace"
)

// Turn is one logical question-and-answer exchange. It may span several
// HTTP requests when the backend pauses for approval; the answer buffer,
// trace and original question carry across every segment.
type Turn struct {
	Question       string
	ConversationID string

	answer strings.Builder

	Steps     []trace.Step
	Pending   *protocol.WorkflowState
	Streaming bool

	// PoolSnapshot is fixed at completion: the ordered documents the turn's
	// citations resolve against, immune to later pool growth.
	PoolSnapshot    []protocol.DocumentRef
	SourceDocuments []string

	TokensUsed     int
	ProcessingTime float64

	StartedAt   time.Time
	CompletedAt time.Time

	Failed     bool
	FailureMsg string
}

func (t *Turn) appendText(text string) {
	t.answer.WriteString(text)
}

// Answer returns the accumulated answer text so far.
func (t *Turn) Answer() string {
	return t.answer.String()
}

func (t *Turn) setAnswer(text string) {
	t.answer.Reset()
	t.answer.WriteString(text)
}
