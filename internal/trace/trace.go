// Package trace accumulates the ordered reasoning/progress log shown next
// to a streaming answer.
package trace

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// Step is one entry of the trace. Stage is the stable key: the backend may
// report the same stage several times and each report updates the existing
// step instead of appending a duplicate.
type Step struct {
	Type      string
	Stage     string
	Message   string
	Detail    string
	Status    Status
	Timestamp time.Time
}

// Accumulator keeps at most one active step at a time. It is not safe for
// concurrent use; the orchestrator drives it from a single event loop.
type Accumulator struct {
	steps []Step
	now   func() time.Time
}

func NewAccumulator() *Accumulator {
	return &Accumulator{now: time.Now}
}

// NewAccumulatorWithClock pins the timestamp source for tests.
func NewAccumulatorWithClock(now func() time.Time) *Accumulator {
	return &Accumulator{now: now}
}

// Append records a progress report. A report for an already-present stage
// updates that step in place. A report for a new stage closes the currently
// active step and appends; a report that carries a detail payload is
// terminal for its stage and lands done.
func (a *Accumulator) Append(stepType, stage, message, detail string) {
	status := StatusActive
	if detail != "" {
		status = StatusDone
	}
	for i := range a.steps {
		if a.steps[i].Stage != stage {
			continue
		}
		if status == StatusActive && a.steps[i].Status == StatusDone {
			// Reactivating a closed stage; some other step holds the active
			// slot now and must yield it first.
			a.CloseActive()
		}
		a.steps[i].Message = message
		if detail != "" {
			a.steps[i].Detail = detail
		}
		a.steps[i].Status = status
		a.steps[i].Timestamp = a.now()
		return
	}
	a.CloseActive()
	a.steps = append(a.steps, Step{
		Type:      stepType,
		Stage:     stage,
		Message:   message,
		Detail:    detail,
		Status:    status,
		Timestamp: a.now(),
	})
}

// CloseActive marks the active step done, if any. Steps are never deleted:
// an interrupted trace still shows where the pipeline stopped.
func (a *Accumulator) CloseActive() {
	for i := len(a.steps) - 1; i >= 0; i-- {
		if a.steps[i].Status == StatusActive {
			a.steps[i].Status = StatusDone
			return
		}
	}
}

// Freeze returns an immutable ordered copy for attaching to a finished turn.
func (a *Accumulator) Freeze() []Step {
	if len(a.steps) == 0 {
		return nil
	}
	out := make([]Step, len(a.steps))
	copy(out, a.steps)
	return out
}

// Reset clears the accumulator for the next turn.
func (a *Accumulator) Reset() {
	a.steps = nil
}

func (a *Accumulator) Len() int {
	return len(a.steps)
}
