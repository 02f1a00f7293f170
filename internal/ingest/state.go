package ingest

// State is a step of the ingestion state machine:
//
//	pending -> fetching -> encoding -> publishing -> linking -> source_cleanup -> done
//
// Any non-terminal state may move to failed.
type State string

const (
	StatePending       State = "pending"
	StateFetching      State = "fetching"
	StateEncoding      State = "encoding"
	StatePublishing    State = "publishing"
	StateLinking       State = "linking"
	StateSourceCleanup State = "source_cleanup"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

var successor = map[State]State{
	StatePending:       StateFetching,
	StateFetching:      StateEncoding,
	StateEncoding:      StatePublishing,
	StatePublishing:    StateLinking,
	StateLinking:       StateSourceCleanup,
	StateSourceCleanup: StateDone,
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether to directly follows s.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	return to == StateFailed || successor[s] == to
}

func (s State) String() string { return string(s) }
