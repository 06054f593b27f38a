package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ErrDone signals the logical end of a stream: the server wrote the [DONE]
// sentinel. It is distinct from io.EOF, which means the transport ended
// without the server saying goodbye. Consumers that pause for workflow
// approval see ErrDone at the end of every request cycle and must not treat
// it as turn completion.
var ErrDone = errors.New("protocol: stream done")

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	// maxRecordBytes bounds a single SSE record. Metadata records carry the
	// whole document pool, so this is generous.
	maxRecordBytes = 4 << 20
)

// Decoder turns a newline-framed "data: <json>" byte stream into Events.
// Malformed records are logged and skipped; the stream survives them.
type Decoder struct {
	scanner *bufio.Scanner
	log     zerolog.Logger
	done    bool
}

func NewDecoder(r io.Reader, log zerolog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)
	return &Decoder{scanner: scanner, log: log}
}

// Next returns the next decoded event. It returns ErrDone once the sentinel
// line arrives, io.EOF if the transport closes first, the context error if
// ctx is cancelled, and any other read error verbatim. After ErrDone every
// call returns ErrDone again.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	if d.done {
		return Event{}, ErrDone
	}
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return Event{}, err
			}
			return Event{}, io.EOF
		}
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == doneSentinel {
			d.done = true
			return Event{}, ErrDone
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			d.log.Warn().Err(err).Str("record", truncate(payload, 200)).Msg("skipping malformed stream record")
			continue
		}
		if !ev.known() {
			d.log.Warn().Str("type", string(ev.Type)).Msg("skipping stream record with unknown type")
			continue
		}
		return ev, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
