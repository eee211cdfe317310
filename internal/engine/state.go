package engine

import (
	"fmt"
	"strings"
)

// State is a tag from the engine lifecycle state machine. Stable states
// (WaitToStart, Running, Terminated, ErrorClean) await external input. Wait
// states (WaitToTerminate, ErrorWaitToClean) encode pending user intent not
// yet claimed by a monitor. In-flight states (TriggerStart, StartInProgress,
// TriggerTermination, TerminateInProgress, ErrorTriggerClean,
// ErrorCleanInProgress) mean a monitor is or was executing a side effect.
type State string

const (
	WaitToStart          State = "WaitToStart"
	TriggerStart         State = "TriggerStart"
	StartInProgress      State = "StartInProgress"
	Running              State = "Running"
	WaitToTerminate      State = "WaitToTerminate"
	TriggerTermination   State = "TriggerTermination"
	TerminateInProgress  State = "TerminateInProgress"
	Terminated           State = "Terminated"
	ErrorWaitToClean     State = "ErrorWaitToClean"
	ErrorTriggerClean    State = "ErrorTriggerClean"
	ErrorCleanInProgress State = "ErrorCleanInProgress"
	ErrorClean           State = "ErrorClean"
)

// errorReasonSep separates the bare state tag from its reason when an
// error-prefixed state is rendered for display, e.g.
// "ErrorClean: resource create failed: image pull backoff".
const errorReasonSep = ": "

// isErrorState reports whether s is one of the four error-prefixed tags
// that carry a reason.
func isErrorState(s State) bool {
	switch s {
	case ErrorWaitToClean, ErrorTriggerClean, ErrorCleanInProgress, ErrorClean:
		return true
	default:
		return false
	}
}

// actionableStates is the set the state monitor scans on every tick. The
// three Trigger* states are included for crash recovery: a monitor that
// dies between the CAS-in and the CAS-out of a handler leaves a record
// parked in one of them, and only a later tick rescanning it can resume
// the idempotent side effect and finish the transition.
var actionableStates = []State{
	WaitToStart,
	TriggerStart,
	StartInProgress,
	WaitToTerminate,
	TriggerTermination,
	TerminateInProgress,
	ErrorWaitToClean,
	ErrorTriggerClean,
	ErrorCleanInProgress,
}

// ActionableStates returns the states a monitor tick must scan for.
func ActionableStates() []State {
	out := make([]State, len(actionableStates))
	copy(out, actionableStates)
	return out
}

// deletableStates is the set from which the API server allows unconditional
// deletion (the engine owns no orchestrator resource in any of them).
var deletableStates = map[State]bool{
	WaitToStart: true,
	Terminated:  true,
	ErrorClean:  true,
}

// Deletable reports whether an engine currently in s may be deleted.
func Deletable(s State) bool {
	return deletableStates[s]
}

// WithReason renders an error-prefixed state together with its reason for
// display, e.g. ErrorClean.WithReason("image pull backoff") ->
// "ErrorClean: image pull backoff". Non-error states ignore the reason.
// The stores keep the reason in its own field, not in this rendering.
func (s State) WithReason(reason string) string {
	if !isErrorState(s) || reason == "" {
		return string(s)
	}
	return string(s) + errorReasonSep + reason
}

// ParseStored splits a string rendered by WithReason back into its bare tag
// and reason, inverting WithReason. Non-error tags always return an empty
// reason.
func ParseStored(stored string) (State, string) {
	tag, reason, found := strings.Cut(stored, errorReasonSep)
	s := State(tag)
	if !found || !isErrorState(s) {
		return State(stored), ""
	}
	return s, reason
}

// transitions maps each state to the set of states directly reachable from
// it, keyed by who may trigger the move: "api" or "monitor". This is the
// canonical transition table from the engine lifecycle state machine; every
// CAS in this codebase targets one of these edges.
type trigger string

const (
	triggerAPI     trigger = "api"
	triggerMonitor trigger = "monitor"
)

type edge struct {
	to      State
	trigger trigger
}

var transitions = map[State][]edge{
	WaitToStart:          {{Terminated, triggerAPI}, {TriggerStart, triggerMonitor}},
	TriggerStart:         {{StartInProgress, triggerMonitor}, {ErrorClean, triggerMonitor}},
	StartInProgress:      {{Running, triggerMonitor}, {ErrorWaitToClean, triggerMonitor}, {WaitToTerminate, triggerAPI}},
	Running:              {{WaitToTerminate, triggerAPI}},
	WaitToTerminate:      {{Running, triggerAPI}, {TriggerTermination, triggerMonitor}},
	TriggerTermination:   {{TerminateInProgress, triggerMonitor}},
	TerminateInProgress:  {{Terminated, triggerMonitor}},
	Terminated:           {{WaitToStart, triggerAPI}},
	ErrorWaitToClean:     {{ErrorTriggerClean, triggerMonitor}},
	ErrorTriggerClean:    {{ErrorCleanInProgress, triggerMonitor}},
	ErrorCleanInProgress: {{ErrorClean, triggerMonitor}},
	ErrorClean:           {},
}

// CanTransition reports whether from -> to is a legal edge in the state
// machine, regardless of trigger. Deletion (state removal) is not an edge
// and is governed separately by Deletable.
func CanTransition(from, to State) bool {
	for _, e := range transitions[from] {
		if e.to == to {
			return true
		}
	}
	return false
}

// String satisfies fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the twelve defined tags.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ErrUnknownState is returned by validation helpers that reject an
// unrecognized state tag.
type ErrUnknownState struct {
	State string
}

func (e *ErrUnknownState) Error() string {
	return fmt.Sprintf("unknown engine state %q", e.State)
}
