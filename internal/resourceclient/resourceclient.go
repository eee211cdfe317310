// Package resourceclient defines the Resource Client abstraction: create,
// delete, and inspect the orchestrator resource backing an engine (a pod,
// in the Kubernetes case this module's spec targets; a container, in this
// module's concrete Docker-backed implementation).
package resourceclient

import "context"

// Phase is the orchestrator-reported lifecycle phase of an engine's
// backing resource, modeled after Kubernetes pod phase.
type Phase string

const (
	NotFound Phase = "NotFound"
	Pending  Phase = "Pending"
	Running  Phase = "Running"
	Failed   Phase = "Failed"
)

// Status is the result of a Status call: a phase plus, for Failed, the
// reason the orchestrator gave.
type Status struct {
	Phase  Phase
	Reason string
}

// ResourceClient is the abstract contract any orchestrator backend
// satisfies. Create and Delete are idempotent on engineID: "already
// exists" and "not found" are both treated as success.
type ResourceClient interface {
	// Create provisions the resource backing engineID, rendering configs
	// as the engine-type driver's arguments/environment. Idempotent.
	Create(ctx context.Context, engineID string, engineType, version string, configs map[string]string) error

	// Delete tears down the resource backing engineID. Idempotent.
	Delete(ctx context.Context, engineID string) error

	// Status inspects the current phase of the resource backing engineID.
	Status(ctx context.Context, engineID string) (Status, error)

	// Ready reports whether the backend is reachable, for readiness probes.
	Ready(ctx context.Context) error
}

// StatusRetrier is an optional capability a ResourceClient backend may
// implement: a Status poll resilient to transient failures, so a single
// daemon hiccup does not abort a whole reconcile tick. Callers should type-
// assert for it and fall back to plain Status when a backend doesn't
// implement it.
type StatusRetrier interface {
	StatusWithRetry(ctx context.Context, engineID string, attempts int) (Status, error)
}
