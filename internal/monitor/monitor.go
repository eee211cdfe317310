// Package monitor implements the state monitor reconcile loop: on each
// tick, scan the engine store for actionable records and, per engine,
// run the handler for its current state, dispatching orchestrator side
// effects through a resourceclient.ResourceClient. A handler that claims
// an engine out of a wait state goes straight on to the matching side
// effect and its follow-up CAS in the same tick. Every write is a
// compare-and-swap guarded on the expected prior state, which is
// what gives "at most one monitor claims an engine" its guarantee without
// a distributed lock.
package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/HaoYang670/rucat/internal/apperrors"
	"github.com/HaoYang670/rucat/internal/engine"
	"github.com/HaoYang670/rucat/internal/observability"
	"github.com/HaoYang670/rucat/internal/resourceclient"
	"github.com/HaoYang670/rucat/internal/store"
)

// Monitor runs the reconcile loop against a store and a resource client.
type Monitor struct {
	store    store.EngineStore
	resource resourceclient.ResourceClient
	metrics  *observability.Metrics
	fanOut   int
}

// New builds a Monitor. fanOut bounds how many engines are reconciled
// concurrently within a single tick; values below 1 are treated as 1.
func New(s store.EngineStore, rc resourceclient.ResourceClient, metrics *observability.Metrics, fanOut int) *Monitor {
	if fanOut < 1 {
		fanOut = 1
	}
	return &Monitor{store: s, resource: rc, metrics: metrics, fanOut: fanOut}
}

// Run loops Tick at the given interval until ctx is cancelled, letting the
// current tick finish before returning.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one reconcile pass: scan actionable engines, then
// reconcile each with bounded concurrency. A single tick's engines are
// independent; ordering across engines is not guaranteed.
func (m *Monitor) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.RecordReconcileTick(ctx, time.Since(start).Seconds())
		}
	}()

	records, err := m.store.ScanByStates(ctx, engine.ActionableStates())
	if err != nil {
		slog.ErrorContext(ctx, "monitor tick: scan failed", "error", err)
		return
	}

	sem := make(chan struct{}, m.fanOut)
	var wg sync.WaitGroup
	for _, rec := range records {
		rec := rec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			m.reconcileOne(ctx, rec)
		}()
	}
	wg.Wait()
}

// reconcileOne dispatches a single engine's actionable state to its
// handler. A failed CAS at any point means another monitor already claimed
// this engine, or the record moved before this handler ran; either way the
// right response is to log and let the next tick re-evaluate.
func (m *Monitor) reconcileOne(ctx context.Context, rec *engine.Record) {
	var err error
	switch rec.State {
	case engine.WaitToStart:
		err = m.handleWaitToStart(ctx, rec)
	case engine.TriggerStart:
		err = m.handleTriggerStart(ctx, rec)
	case engine.StartInProgress:
		err = m.handleStartInProgress(ctx, rec)
	case engine.WaitToTerminate:
		err = m.handleWaitToTerminate(ctx, rec)
	case engine.TriggerTermination:
		err = m.handleTriggerTermination(ctx, rec)
	case engine.TerminateInProgress:
		err = m.handleTerminateInProgress(ctx, rec)
	case engine.ErrorWaitToClean:
		err = m.handleErrorWaitToClean(ctx, rec)
	case engine.ErrorTriggerClean:
		err = m.handleErrorTriggerClean(ctx, rec)
	case engine.ErrorCleanInProgress:
		err = m.handleErrorCleanInProgress(ctx, rec)
	default:
		return
	}

	if err == nil {
		return
	}
	if apperrors.HTTPStatus(err) == http.StatusConflict {
		slog.DebugContext(ctx, "monitor: lost claim race", "engine_id", rec.ID, "state", rec.State)
		return
	}
	slog.WarnContext(ctx, "monitor: reconcile step failed", "engine_id", rec.ID, "state", rec.State, "error", err)
	if m.metrics != nil {
		m.metrics.RecordReconcileError(ctx, string(rec.EngineType))
	}
}

// statusRetryAttempts bounds how many times a status poll is retried
// through resourceclient.StatusRetrier before the reconcile step gives up
// for this tick and leaves the record for the next one.
const statusRetryAttempts = 3

// status polls the resource backing rec, retrying transient failures
// through resourceclient.StatusRetrier when the backend implements it, so a
// single daemon hiccup doesn't fail an otherwise-healthy tick.
func (m *Monitor) status(ctx context.Context, rec *engine.Record) (resourceclient.Status, error) {
	if retrier, ok := m.resource.(resourceclient.StatusRetrier); ok {
		return retrier.StatusWithRetry(ctx, rec.ID, statusRetryAttempts)
	}
	return m.resource.Status(ctx, rec.ID)
}

// casTo performs a single CAS on rec's expected state, recording metrics on
// success.
func (m *Monitor) casTo(ctx context.Context, rec *engine.Record, expected, next engine.State, reason string) error {
	if err := m.store.CASState(ctx, rec.ID, expected, next, reason); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordTransition(ctx, string(rec.EngineType), string(next))
	}
	return nil
}

// handleWaitToStart claims the engine into TriggerStart, then runs the same
// provisioning step handleTriggerStart runs directly for a record found
// already parked there after a crash.
func (m *Monitor) handleWaitToStart(ctx context.Context, rec *engine.Record) error {
	if err := m.casTo(ctx, rec, engine.WaitToStart, engine.TriggerStart, ""); err != nil {
		return err
	}
	return m.handleTriggerStart(ctx, rec)
}

// handleTriggerStart provisions the engine's resource and reports the
// outcome. Idempotent: a retry that finds the resource already present
// treats it as success, per the resource client's idempotent Create
// contract, which is what makes it safe to re-run on a record a crashed
// monitor left parked in TriggerStart.
func (m *Monitor) handleTriggerStart(ctx context.Context, rec *engine.Record) error {
	if err := m.resource.Create(ctx, rec.ID, string(rec.EngineType), rec.Version, rec.Configs); err != nil {
		slog.WarnContext(ctx, "monitor: resource create failed", "engine_id", rec.ID, "error", err)
		return m.casTo(ctx, rec, engine.TriggerStart, engine.ErrorClean, "resource create failed: "+err.Error())
	}

	return m.casTo(ctx, rec, engine.TriggerStart, engine.StartInProgress, "")
}

// handleStartInProgress polls resource status: Running advances the engine,
// Failed routes it into the error-cleanup chain, anything else is left for
// the next tick.
func (m *Monitor) handleStartInProgress(ctx context.Context, rec *engine.Record) error {
	status, err := m.status(ctx, rec)
	if err != nil {
		return err
	}

	switch status.Phase {
	case resourceclient.Running:
		return m.casTo(ctx, rec, engine.StartInProgress, engine.Running, "")
	case resourceclient.Failed:
		return m.casTo(ctx, rec, engine.StartInProgress, engine.ErrorWaitToClean, status.Reason)
	default:
		return nil
	}
}

// handleWaitToTerminate claims the engine into TriggerTermination, then runs
// the same teardown step handleTriggerTermination runs directly for a
// record found already parked there after a crash.
func (m *Monitor) handleWaitToTerminate(ctx context.Context, rec *engine.Record) error {
	if err := m.casTo(ctx, rec, engine.WaitToTerminate, engine.TriggerTermination, ""); err != nil {
		return err
	}
	return m.handleTriggerTermination(ctx, rec)
}

// handleTriggerTermination issues resource-delete and advances the engine.
// Delete is idempotent, so re-running it against a record a crashed monitor
// left parked in TriggerTermination is safe.
func (m *Monitor) handleTriggerTermination(ctx context.Context, rec *engine.Record) error {
	if err := m.resource.Delete(ctx, rec.ID); err != nil {
		slog.WarnContext(ctx, "monitor: resource delete failed, will retry next tick", "engine_id", rec.ID, "error", err)
		return err
	}

	return m.casTo(ctx, rec, engine.TriggerTermination, engine.TerminateInProgress, "")
}

// handleTerminateInProgress polls resource status: NotFound advances the
// engine to Terminated.
func (m *Monitor) handleTerminateInProgress(ctx context.Context, rec *engine.Record) error {
	status, err := m.status(ctx, rec)
	if err != nil {
		return err
	}
	if status.Phase != resourceclient.NotFound {
		return nil
	}
	return m.casTo(ctx, rec, engine.TerminateInProgress, engine.Terminated, "")
}

// handleErrorWaitToClean claims the engine into ErrorTriggerClean, then runs
// the same teardown step handleErrorTriggerClean runs directly for a record
// found already parked there after a crash, mirroring handleWaitToTerminate
// for the error path.
func (m *Monitor) handleErrorWaitToClean(ctx context.Context, rec *engine.Record) error {
	if err := m.casTo(ctx, rec, engine.ErrorWaitToClean, engine.ErrorTriggerClean, rec.Reason); err != nil {
		return err
	}
	return m.handleErrorTriggerClean(ctx, rec)
}

// handleErrorTriggerClean issues resource-delete and advances the engine
// toward ErrorCleanInProgress. Delete is idempotent, so re-running it
// against a record a crashed monitor left parked in ErrorTriggerClean is
// safe.
func (m *Monitor) handleErrorTriggerClean(ctx context.Context, rec *engine.Record) error {
	if err := m.resource.Delete(ctx, rec.ID); err != nil {
		slog.WarnContext(ctx, "monitor: error-path resource delete failed, will retry next tick", "engine_id", rec.ID, "error", err)
		return err
	}

	return m.casTo(ctx, rec, engine.ErrorTriggerClean, engine.ErrorCleanInProgress, rec.Reason)
}

// handleErrorCleanInProgress polls resource status: NotFound advances the
// engine to the terminal ErrorClean state.
func (m *Monitor) handleErrorCleanInProgress(ctx context.Context, rec *engine.Record) error {
	status, err := m.status(ctx, rec)
	if err != nil {
		return err
	}
	if status.Phase != resourceclient.NotFound {
		return nil
	}
	return m.casTo(ctx, rec, engine.ErrorCleanInProgress, engine.ErrorClean, rec.Reason)
}
