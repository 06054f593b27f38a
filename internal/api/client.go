// Package api issues QA stream requests against the backend and hands the
// caller a decoded SSE stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"sift/internal/protocol"
	"sift/internal/workflow"
)

const streamPath = "/api/qa/stream"

// ErrMissingToken is a hard precondition failure: without a bearer token no
// request leaves the client.
var ErrMissingToken = errors.New("api: bearer token not configured")

// AskRequest is the JSON body of one turn segment: either a fresh question
// or a workflow continuation of a paused turn.
type AskRequest struct {
	Question            string          `json:"question"`
	ConversationID      string          `json:"conversation_id,omitempty"`
	SessionID           string          `json:"session_id,omitempty"`
	DocumentIDs         []string        `json:"document_ids,omitempty"`
	ContextLimit        int             `json:"context_limit,omitempty"`
	UseSemanticSearch   bool            `json:"use_semantic_search,omitempty"`
	UseStructuredFilter bool            `json:"use_structured_filter,omitempty"`
	WorkflowAction      workflow.Action `json:"workflow_action,omitempty"`
	ClarificationText   string          `json:"clarification_text,omitempty"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient builds a client for the given backend. No timeout is set on the
// http.Client: a streaming response stays open as long as the turn segment
// runs, and cancellation flows through the request context instead.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{},
		log:        log,
	}
}

// Stream is one open turn-segment response. Next yields decoded events;
// Close releases the transport.
type Stream struct {
	body io.ReadCloser
	dec  *protocol.Decoder
}

func (s *Stream) Next(ctx context.Context) (protocol.Event, error) {
	return s.dec.Next(ctx)
}

func (s *Stream) Close() error {
	return s.body.Close()
}

// Ask posts the request and returns the event stream. Non-2xx responses are
// immediate errors; nothing is sent without a token or a question.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*Stream, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("api: question must not be empty")
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	c.log.Debug().
		Str("conversation_id", req.ConversationID).
		Str("workflow_action", string(req.WorkflowAction)).
		Msg("starting qa stream request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qa stream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("qa stream http %d: %s", resp.StatusCode, compactSingleLine(string(payload), 240))
	}
	return &Stream{
		body: resp.Body,
		dec:  protocol.NewDecoder(resp.Body, c.log),
	}, nil
}

func compactSingleLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit > 0 && len(s) > limit {
		return s[:limit] + "…"
	}
	return s
}
