package auth

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// SystemSession is used for internal operations (seeding, the retry
// scheduler). It bypasses access-rights checks.
type SystemSession struct{}

func (s *SystemSession) Caller() types.Principal {
	return "system"
}

// IsSystemSession checks if a session is the SystemSession type.
func IsSystemSession(s Session) bool {
	_, ok := s.(*SystemSession)
	return ok
}

// WithSystemContext creates a context for internal system operations.
func WithSystemContext(ctx context.Context) context.Context {
	return SessionTo(ctx, &SystemSession{})
}
