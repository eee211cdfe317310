// Package engine defines the engine lifecycle state machine: the record
// shape, the state set and its legal transitions, and the validation rules
// applied at creation. It has no dependency on the store or resource client
// abstractions that operate on it.
package engine

import (
	"time"

	"github.com/HaoYang670/rucat/internal/apperrors"
)

// Type identifies an engine family. Only Spark is defined today; adding a
// family is a new tag plus a new resource-client driver, not a change to
// the state machine.
type Type string

const (
	Spark Type = "Spark"
)

// versionWhitelist constrains Version per Type. A version not present in
// its type's list is rejected at creation.
var versionWhitelist = map[Type][]string{
	Spark: {"3.4.0", "3.4.1", "3.4.2", "3.4.3", "3.4.4", "3.5.0", "3.5.1", "3.5.2", "3.5.3", "3.5.4"},
}

// Configs is a free-form string map interpreted by the resource client
// driver for the engine's type (e.g. Spark configuration keys).
type Configs map[string]string

// Record is the full engine record persisted by the store. Only State is
// mutated after creation.
type Record struct {
	ID         string
	Name       string
	EngineType Type
	Version    string
	Configs    Configs
	State      State
	// Reason holds the detail behind an error-prefixed State. Empty for
	// every other state.
	Reason     string
	CreateTime time.Time
}

// CreateRequest is the validated input to New.
type CreateRequest struct {
	Name       string
	EngineType Type
	Version    string
	Configs    Configs
}

// Validate checks name non-emptiness, engine type recognition, and version
// whitelisting, returning an *apperrors.Error on the first violation.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return apperrors.Validation("name", "name must not be empty")
	}

	versions, ok := versionWhitelist[r.EngineType]
	if !ok {
		return apperrors.Validation("engine_type", "unknown engine type: "+string(r.EngineType))
	}

	for _, v := range versions {
		if v == r.Version {
			return nil
		}
	}
	return apperrors.Validation("version", "version "+r.Version+" is not supported for engine type "+string(r.EngineType))
}

// New builds a fresh record in WaitToStart, the only state a freshly
// created engine may start in.
func New(id string, req CreateRequest, now time.Time) *Record {
	configs := req.Configs
	if configs == nil {
		configs = Configs{}
	}
	return &Record{
		ID:         id,
		Name:       req.Name,
		EngineType: req.EngineType,
		Version:    req.Version,
		Configs:    configs,
		State:      WaitToStart,
		CreateTime: now,
	}
}

// DisplayState renders State together with Reason, e.g. "ErrorClean:
// resource create failed". The REST API's state field carries the bare
// State tag, not this rendering.
func (r *Record) DisplayState() string {
	return r.State.WithReason(r.Reason)
}

// stopTargets maps the state a "stop" request observes to the state it CASes
// into, in the priority order spec.md describes. Only states present here
// are legal to stop.
var stopTargets = map[State]State{
	WaitToStart:     Terminated,
	StartInProgress: WaitToTerminate,
	Running:         WaitToTerminate,
}

// StopTarget returns the state a stop request should CAS into from the
// given observed state, and whether the observed state is stoppable at all.
func StopTarget(observed State) (State, bool) {
	to, ok := stopTargets[observed]
	return to, ok
}

// restartTargets maps the state a "restart" request observes to the state it
// CASes into.
var restartTargets = map[State]State{
	WaitToTerminate: Running,
	Terminated:      WaitToStart,
}

// RestartTarget returns the state a restart request should CAS into from the
// given observed state, and whether the observed state is restartable.
func RestartTarget(observed State) (State, bool) {
	to, ok := restartTargets[observed]
	return to, ok
}
