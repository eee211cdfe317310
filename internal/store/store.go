// Package store defines the Engine Store abstraction: conditional CRUD over
// engine records with compare-and-swap on the state field. Any backing
// store may implement EngineStore; this package also hosts the selector
// that picks a concrete implementation from configuration.
package store

import (
	"context"

	"github.com/HaoYang670/rucat/internal/engine"
)

// EngineStore is the abstract contract every backing store satisfies. All
// individual operations are atomic; no multi-record transactions are
// required.
type EngineStore interface {
	// Insert adds a new record. Returns an *apperrors.Error wrapping
	// ErrConflict if id is already present.
	Insert(ctx context.Context, rec *engine.Record) error

	// Get loads a record by id. Returns an *apperrors.Error wrapping
	// ErrNotFound if absent.
	Get(ctx context.Context, id string) (*engine.Record, error)

	// List enumerates every record's id.
	List(ctx context.Context) ([]string, error)

	// CASState performs a compare-and-swap on the state field: the write
	// succeeds iff the stored state equals expected, atomically. On
	// failure returns an *apperrors.Error wrapping ErrConflict with
	// Observed set to the state actually found. reason is persisted
	// alongside next when next is an error-prefixed state.
	CASState(ctx context.Context, id string, expected, next engine.State, reason string) error

	// DeleteIfState removes a record only if its current state is a
	// member of allowed. On failure returns an *apperrors.Error wrapping
	// ErrConflict with Observed set to the state actually found.
	DeleteIfState(ctx context.Context, id string, allowed []engine.State) error

	// ScanByStates returns every record whose state is a member of states.
	ScanByStates(ctx context.Context, states []engine.State) ([]*engine.Record, error)

	// Close releases any resources held by the store.
	Close() error

	// Ready reports whether the store is reachable, for readiness probes.
	Ready(ctx context.Context) error
}
