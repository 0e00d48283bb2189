// Package deployments drives the deployment saga: it owns the processor
// loop, the per-state handlers and the retry scheduler. Every external call
// a handler makes is an unbounded-latency suspension point, so handlers
// re-read the record and re-check external state instead of trusting that a
// previous call did or did not happen.
package deployments

import (
	"context"
	"errors"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/store"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

const (
	processingLockDuration = 600_000
	delayAfterError        = 15_000
)

type taskKind int

const (
	taskContinue taskKind = iota
	taskStop
	taskDelay
)

type taskResult struct {
	kind  taskKind
	delay int64
}

func continueTask() taskResult { return taskResult{kind: taskContinue} }

func stopTask() taskResult { return taskResult{kind: taskStop} }

// yieldTask releases the lease for one millisecond so other entry points
// can run between steps.
func yieldTask() taskResult { return taskResult{kind: taskDelay, delay: 1} }

type handlerFunc func(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error)

// Driver walks a deployment's state machine forward under a lease lock.
type Driver struct {
	store *store.Store
	env   *enviro.Environment
}

// NewDriver binds the driver to the store and the capability environment.
func NewDriver(s *store.Store, env *enviro.Environment) *Driver {
	return &Driver{store: s, env: env}
}

func (d *Driver) handlerFor(state types.DeploymentState) handlerFunc {
	switch state.Kind {
	case types.StateStartDeployment:
		return processStartDeployment
	case types.StateTransferOwnerFundsToTransit:
		return processTransferOwnerFunds
	case types.StateTransferTopUpFunds:
		return processTransferTopUpFunds
	case types.StateNotifyCreditAuthority:
		return processNotifyCreditAuthority
	case types.StateCreateInstanceOverAuthority:
		return processCreateInstanceOverAuthority
	case types.StateCreateInstanceOverProvisoner:
		return processCreateInstanceOverProvisioner
	case types.StateGenerateCertificate:
		return processGenerateCertificate
	case types.StateWaitingReceiveCertificate:
		return nil
	case types.StateStartInstallBinary:
		return processStartInstallBinary
	case types.StateUploadBinary:
		return processUploadBinary
	case types.StateInstallBinary:
		return processInstallBinary
	case types.StateMakeInstanceSelfControlled:
		return processMakeSelfControlled
	case types.StateFinalizeDeployment:
		switch state.SubState {
		case types.FinalizeStart:
			return processStartFinalization
		case types.FinalizeTransferFunds:
			return processSweepTransitFunds
		}
		return nil
	}
	return nil
}

// NeedProcessing reports whether a handler exists for the state, which is
// exactly "calling Process would do work".
func (d *Driver) NeedProcessing(state types.DeploymentState) bool {
	return d.handlerFor(state) != nil
}

// Process acquires the lease and dispatches handlers until one signals stop
// or asks for a delay. It returns the expiration after which the deployment
// should be re-processed, or nil when no further work is pending. Lock
// contention is not an error: the winner's expiration is returned as the
// retry moment.
func (d *Driver) Process(ctx context.Context, id types.DeploymentID) *int64 {
	lock, err := d.store.LockDeployment(ctx, d.env.Clock.Now(), id, processingLockDuration)
	if err != nil {
		var locked *store.LockedError
		if errors.As(err, &locked) {
			return &locked.Expiration
		}
		d.env.Logger.Error("failed to lock deployment", "deployment_id", id, "error", err)
		return nil
	}

	for {
		result, err := d.step(ctx, id, lock)
		if err != nil {
			d.handleProcessingError(ctx, id, lock, err)
			d.unlock(ctx, id, lock)
			return d.relock(ctx, id, delayAfterError)
		}

		switch result.kind {
		case taskContinue:
		case taskStop:
			d.unlock(ctx, id, lock)
			return nil
		case taskDelay:
			d.unlock(ctx, id, lock)
			return d.relock(ctx, id, result.delay)
		}
	}
}

func (d *Driver) step(ctx context.Context, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}

	handler := d.handlerFor(record.State)
	if handler == nil {
		return stopTask(), nil
	}
	return handler(ctx, d, id, lock)
}

// UpdateWithLock applies one event under a short-lived lease. It is used by
// the public entry points (cancel, certificate hand-over) that mutate state
// outside the processor loop.
func (d *Driver) UpdateWithLock(ctx context.Context, id types.DeploymentID, event types.ProcessingEvent) error {
	now := d.env.Clock.Now()
	lock, err := d.store.LockDeployment(ctx, now, id, processingLockDuration)
	if err != nil {
		return err
	}

	applyErr := d.store.ApplyEvent(ctx, d.env.Clock.Now(), id, lock, event)
	d.unlock(ctx, id, lock)
	return applyErr
}

func (d *Driver) handleProcessingError(ctx context.Context, id types.DeploymentID, lock types.Lock, processingError error) {
	d.env.Logger.Error("deployment processing error", "deployment_id", id, "error", processingError)

	err := d.store.SetProcessingError(ctx, d.env.Clock.Now(), id, lock, processingError.Error())
	if err != nil {
		d.env.Logger.Error("failed to record processing error", "deployment_id", id, "error", err)
	}
}

func (d *Driver) unlock(ctx context.Context, id types.DeploymentID, lock types.Lock) {
	if !d.store.UnlockDeployment(ctx, id, lock) {
		d.env.Logger.Error("cannot unlock deployment", "deployment_id", id)
	}
}

func (d *Driver) relock(ctx context.Context, id types.DeploymentID, delay int64) *int64 {
	lock, err := d.store.LockDeployment(ctx, d.env.Clock.Now(), id, delay)
	if err != nil {
		var locked *store.LockedError
		if errors.As(err, &locked) {
			return &locked.Expiration
		}
		d.env.Logger.Error("failed to re-lock deployment", "deployment_id", id, "error", err)
		return nil
	}
	return &lock.Expiration
}

func (d *Driver) applyEvent(ctx context.Context, id types.DeploymentID, lock types.Lock, event types.ProcessingEvent) error {
	return d.store.ApplyEvent(ctx, d.env.Clock.Now(), id, lock, event)
}
