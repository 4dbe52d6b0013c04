// Package negotiate picks the codec a listener opens its sink with. Candidates
// are tried in order; the first one the sink accepts stays selected until the
// next Reset.
package negotiate

import (
	"errors"
	"fmt"
)

var ErrExhausted = errors.New("no supported codec")

// DefaultCandidates is ordered most compatible first.
var DefaultCandidates = []string{
	"audio/webm;codecs=opus",
	"audio/ogg;codecs=opus",
	"audio/opus",
	"audio/L16",
}

type State int

const (
	StateUntried State = iota
	StateOpen
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateUntried:
		return "untried"
	case StateOpen:
		return "open"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Negotiator is not safe for concurrent use; the playback loop owns it.
type Negotiator struct {
	candidates []string
	idx        int
	state      State
	selected   string
	attempts   int
	lastErr    error
}

func New(candidates []string) *Negotiator {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	return &Negotiator{candidates: append([]string(nil), candidates...)}
}

// Reset starts over from the first candidate.
func (n *Negotiator) Reset() {
	n.idx = 0
	n.state = StateUntried
	n.selected = ""
	n.attempts = 0
	n.lastErr = nil
}

// Next returns the candidate to attempt. It returns the selected codec while
// Open and false once every candidate has failed.
func (n *Negotiator) Next() (string, bool) {
	switch n.state {
	case StateOpen:
		return n.selected, true
	case StateExhausted:
		return "", false
	}
	if n.idx >= len(n.candidates) {
		n.state = StateExhausted
		return "", false
	}
	n.attempts++
	return n.candidates[n.idx], true
}

// Opened locks the current candidate.
func (n *Negotiator) Opened() string {
	if n.state == StateUntried && n.idx < len(n.candidates) {
		n.state = StateOpen
		n.selected = n.candidates[n.idx]
	}
	return n.selected
}

// Failed records that the current candidate could not be opened and moves
// to the next one. It has no effect once Open or Exhausted.
func (n *Negotiator) Failed(err error) {
	if n.state != StateUntried {
		return
	}
	n.lastErr = err
	n.idx++
	if n.idx >= len(n.candidates) {
		n.state = StateExhausted
	}
}

// Err reports exhaustion wrapping the last failure, or nil.
func (n *Negotiator) Err() error {
	if n.state != StateExhausted {
		return nil
	}
	if n.lastErr == nil {
		return ErrExhausted
	}
	return fmt.Errorf("%w: %w", ErrExhausted, n.lastErr)
}

func (n *Negotiator) State() State         { return n.state }
func (n *Negotiator) Selected() string     { return n.selected }
func (n *Negotiator) Attempts() int        { return n.attempts }
func (n *Negotiator) Candidates() []string { return append([]string(nil), n.candidates...) }
