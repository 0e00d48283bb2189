package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

const maxLockDelay = 3_600_000

// NewDeployment carries everything the deploy entry point resolved before
// the record is created.
type NewDeployment struct {
	Owner           types.Principal
	Created         int64
	TemplateID      types.TemplateID
	Expenses        types.ExpenseBreakdown
	Amount          types.Tokens
	ApprovedAccount types.LedgerAccount
	PlacementHint   string
	ActivationCode  string
}

// CreateDeployment assigns the next sequential id, inserts the record in
// state StartDeployment and populates the secondary indices.
func (s *Store) CreateDeployment(ctx context.Context, args NewDeployment) (types.DeploymentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	record := &types.DeploymentRecord{
		ID:              id,
		Owner:           args.Owner,
		Created:         args.Created,
		TemplateID:      args.TemplateID,
		Expenses:        args.Expenses,
		Amount:          args.Amount,
		ApprovedAccount: args.ApprovedAccount,
		PlacementHint:   args.PlacementHint,
		ActivationCode:  args.ActivationCode,
		State: types.DeploymentState{
			Time: args.Created,
			Kind: types.StateStartDeployment,
		},
	}

	if err := s.backend.SaveDeployment(ctx, id, record); err != nil {
		return 0, err
	}

	s.deployments[id] = record
	s.nextID++
	s.indexDeployment(record)

	return id, nil
}

// Deployment returns a deep copy of the record.
func (s *Store) Deployment(id types.DeploymentID) (*types.DeploymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.deployments[id]
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return record.Clone(), nil
}

// DeploymentByInstance resolves a compute-instance handle to its deployment.
func (s *Store) DeploymentByInstance(instance types.InstanceID) (types.DeploymentID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byInstance[instance]
	return id, ok
}

// DeploymentsCount returns the number of records ever created.
func (s *Store) DeploymentsCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.deployments))
}

// IterateByOwner walks the owner index in id order. The receiver returns
// false to stop early, which is how callers paginate without materializing
// the index.
func (s *Store) IterateByOwner(owner types.Principal, descending bool, receiver func(types.DeploymentID) bool) {
	s.mu.Lock()
	ids := append([]types.DeploymentID(nil), s.byOwner[owner]...)
	s.mu.Unlock()

	iterate(ids, descending, receiver)
}

// IterateByTemplate walks the template index in id order.
func (s *Store) IterateByTemplate(template types.TemplateID, descending bool, receiver func(types.DeploymentID) bool) {
	s.mu.Lock()
	ids := append([]types.DeploymentID(nil), s.byTemplate[template]...)
	s.mu.Unlock()

	iterate(ids, descending, receiver)
}

// IterateByOwnerAndTemplate walks the compound index in id order.
func (s *Store) IterateByOwnerAndTemplate(owner types.Principal, template types.TemplateID, descending bool, receiver func(types.DeploymentID) bool) {
	s.mu.Lock()
	ids := append([]types.DeploymentID(nil), s.byOwnerTemplate[ownerTemplateKey{owner: owner, template: template}]...)
	s.mu.Unlock()

	iterate(ids, descending, receiver)
}

// Event returns one entry of the global event log.
func (s *Store) Event(id types.DeploymentEventID) (types.DeploymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= uint64(len(s.events)) {
		return types.DeploymentEvent{}, ErrEventNotFound
	}
	return s.events[id], nil
}

// IterateEvents walks one deployment's event ids in log order.
func (s *Store) IterateEvents(deployment types.DeploymentID, descending bool, receiver func(types.DeploymentEventID) bool) {
	s.mu.Lock()
	ids := append([]types.DeploymentEventID(nil), s.eventsByDeply[deployment]...)
	s.mu.Unlock()

	iterate(ids, descending, receiver)
}

// ApplyEvent is the sole mutation primitive for deployment state. It
// verifies the lease, clears any prior processing error, checks the event's
// source-state guard and replaces the whole record atomically. The
// read-modify-write is all-or-nothing: on any error the record is unchanged.
// The event is then appended to the log best-effort.
func (s *Store) ApplyEvent(ctx context.Context, now int64, id types.DeploymentID, lock types.Lock, event types.ProcessingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.deployments[id]
	if !ok {
		return ErrDeploymentNotFound
	}

	updated := record.Clone()

	if updated.Lock == nil || *updated.Lock != lock {
		var expiration int64
		if updated.Lock != nil {
			expiration = updated.Lock.Expiration
		}
		return &LockedError{Expiration: expiration}
	}

	updated.ProcessingError = nil

	if err := transition(now, updated, event); err != nil {
		return err
	}

	if err := s.backend.SaveDeployment(ctx, id, updated); err != nil {
		return err
	}

	s.deployments[id] = updated
	if updated.Instance != "" && record.Instance == "" {
		s.byInstance[updated.Instance] = id
	}

	s.appendEvent(ctx, now, id, event)

	return nil
}

func (s *Store) appendEvent(ctx context.Context, now int64, id types.DeploymentID, event types.ProcessingEvent) {
	entry := types.DeploymentEvent{
		ID:           uint64(len(s.events)),
		DeploymentID: id,
		Time:         now,
		Event:        event,
	}

	if err := s.backend.SaveEvent(ctx, entry); err != nil {
		s.logger.Error("failed to append deployment event",
			"deployment_id", id, "event", event.Kind, "error", err)
		return
	}

	s.events = append(s.events, entry)
	s.eventsByDeply[id] = append(s.eventsByDeply[id], entry.ID)
}

// SetProcessingError records a handler failure on the record, truncated to
// 1024 characters. The lease must still be held.
func (s *Store) SetProcessingError(ctx context.Context, now int64, id types.DeploymentID, lock types.Lock, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.deployments[id]
	if !ok {
		return ErrDeploymentNotFound
	}

	updated := record.Clone()

	if updated.Lock == nil || *updated.Lock != lock {
		var expiration int64
		if updated.Lock != nil {
			expiration = updated.Lock.Expiration
		}
		return &LockedError{Expiration: expiration}
	}

	if len(message) > 1024 {
		message = message[:1024]
	}
	updated.ProcessingError = &types.TimestampedText{Time: now, Text: message}

	if err := s.backend.SaveDeployment(ctx, id, updated); err != nil {
		return err
	}

	s.deployments[id] = updated
	return nil
}

// LockDeployment installs a fresh lease expiring at now+delay. It fails
// with a LockedError while an unexpired lease exists. Each successful
// acquisition takes the next value of the per-record lock sequence.
func (s *Store) LockDeployment(ctx context.Context, now int64, id types.DeploymentID, delay int64) (types.Lock, error) {
	if delay >= maxLockDelay {
		panic("lock delay must be below one hour")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.deployments[id]
	if !ok {
		return types.Lock{}, ErrDeploymentNotFound
	}

	if record.Lock != nil && now < record.Lock.Expiration {
		return types.Lock{}, &LockedError{Expiration: record.Lock.Expiration}
	}

	updated := record.Clone()
	lock := types.Lock{LockID: updated.LockSeq, Expiration: now + delay}
	updated.Lock = &lock
	updated.LockSeq++

	if err := s.backend.SaveDeployment(ctx, id, updated); err != nil {
		return types.Lock{}, err
	}

	s.deployments[id] = updated
	return lock, nil
}

// UnlockDeployment clears the lease if it still matches the given pair.
// It reports whether the lease was released.
func (s *Store) UnlockDeployment(ctx context.Context, id types.DeploymentID, lock types.Lock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.deployments[id]
	if !ok {
		return false
	}
	if record.Lock == nil || *record.Lock != lock {
		return false
	}

	updated := record.Clone()
	updated.Lock = nil

	if err := s.backend.SaveDeployment(ctx, id, updated); err != nil {
		s.logger.Error("failed to persist unlock", "deployment_id", id, "error", err)
		return false
	}

	s.deployments[id] = updated
	return true
}
