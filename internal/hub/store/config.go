package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// Config returns the current policy. Handlers re-read it at every step, so
// an operator change takes effect mid-saga.
func (s *Store) Config() types.HubConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.config
}

// SetConfig replaces the policy.
func (s *Store) SetConfig(ctx context.Context, config types.HubConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.SaveConfig(ctx, config); err != nil {
		return err
	}

	s.config = config
	return nil
}
