package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDeploymentNotFound is returned for lookups of unknown deployment ids.
	ErrDeploymentNotFound = errors.New("deployment not found")
	// ErrTemplateNotFound is returned for lookups of unknown template ids.
	ErrTemplateNotFound = errors.New("contract template not found")
	// ErrEventNotFound is returned for lookups of unknown event ids.
	ErrEventNotFound = errors.New("deployment event not found")
	// ErrWrongState is returned when an event's source-state guard does not
	// match the record's current state. The record is left untouched.
	ErrWrongState = errors.New("deployment is in the wrong state")
)

// LockedError reports that a deployment is held by another lease. It carries
// the other lease's expiration so the caller can schedule a retry.
type LockedError struct {
	Expiration int64
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("deployment is locked until %d", e.Expiration)
}
