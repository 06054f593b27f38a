// Package docpool keeps the ordered registry of documents visible to the
// current conversation. Citation markers in generated text are positional,
// so the pool is only ever replaced wholesale in the order the backend sent
// it. Re-sorting or merging would silently retarget every rendered citation.
package docpool

import (
	"errors"

	"sift/internal/protocol"
)

var ErrCitationOutOfRange = errors.New("docpool: citation index out of range")

// Pool holds the cumulative conversation pool plus the per-turn round list.
// The round list, when present, matches the citation numbering of the turn
// in flight and is preferred for snapshots.
type Pool struct {
	entries []protocol.DocumentRef
	round   []protocol.DocumentRef
}

func New() *Pool {
	return &Pool{}
}

// Replace wholesale-sets the cumulative pool to exactly the given order.
func (p *Pool) Replace(entries []protocol.DocumentRef) {
	p.entries = copyRefs(entries)
}

// ReplaceRound wholesale-sets the per-turn document list.
func (p *Pool) ReplaceRound(entries []protocol.DocumentRef) {
	p.round = copyRefs(entries)
}

// ClearRound drops the per-turn list; called when a new turn begins.
func (p *Pool) ClearRound() {
	p.round = nil
}

// Snapshot returns an immutable ordered copy for freezing into a completed
// turn, preferring the round list because cumulative pool order stops
// matching per-turn citation numbers once later turns add documents.
func (p *Pool) Snapshot() []protocol.DocumentRef {
	if len(p.round) > 0 {
		return copyRefs(p.round)
	}
	return copyRefs(p.entries)
}

// Live returns a copy of the cumulative pool.
func (p *Pool) Live() []protocol.DocumentRef {
	return copyRefs(p.entries)
}

func (p *Pool) Len() int {
	return len(p.entries)
}

// Resolve maps a 1-based citation index to a document: the snapshot wins
// when supplied and in range, the live pool backs it up, and anything else
// is ErrCitationOutOfRange.
func Resolve(index int, snapshot, live []protocol.DocumentRef) (protocol.DocumentRef, error) {
	if index >= 1 && index <= len(snapshot) {
		return snapshot[index-1], nil
	}
	if index >= 1 && index <= len(live) {
		return live[index-1], nil
	}
	return protocol.DocumentRef{}, ErrCitationOutOfRange
}

func copyRefs(entries []protocol.DocumentRef) []protocol.DocumentRef {
	if len(entries) == 0 {
		return nil
	}
	out := make([]protocol.DocumentRef, len(entries))
	copy(out, entries)
	return out
}
