// Package mode tracks whether the process is running in degraded mode.
//
// The flag starts from the operator's opt-in (DEGRADED_MODE) and can only move
// from false to true. Once a resolver enters degraded mode the process stays
// there until it exits.
package mode

import (
	"sync"
	"sync/atomic"
)

// Entry records why a component pushed the process into degraded mode.
type Entry struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

// Snapshot is a point-in-time copy of the State.
type Snapshot struct {
	Degraded      bool    `json:"degraded"`
	OperatorOptIn bool    `json:"operator_opt_in"`
	Entries       []Entry `json:"entries,omitempty"`
}

// State holds the process-wide degraded flag.
type State struct {
	degraded atomic.Bool
	optIn    bool

	mu      sync.Mutex
	entries []Entry
}

// New returns a State seeded with the operator opt-in.
func New(optIn bool) *State {
	s := &State{optIn: optIn}
	s.degraded.Store(optIn)
	return s
}

// Degraded reports whether degraded mode is active.
func (s *State) Degraded() bool {
	return s.degraded.Load()
}

// OperatorOptIn reports whether degraded mode was requested before any resolver ran.
func (s *State) OperatorOptIn() bool {
	return s.optIn
}

// EnterDegraded sets the flag and records the cause. It returns true when this
// call flipped the flag from false to true.
func (s *State) EnterDegraded(component, reason string) bool {
	s.mu.Lock()
	s.entries = append(s.entries, Entry{Component: component, Reason: reason})
	s.mu.Unlock()
	return s.degraded.CompareAndSwap(false, true)
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	entries := append([]Entry(nil), s.entries...)
	s.mu.Unlock()
	return Snapshot{
		Degraded:      s.Degraded(),
		OperatorOptIn: s.optIn,
		Entries:       entries,
	}
}
