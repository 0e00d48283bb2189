package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// AppendHubEvent records one administrative audit entry.
func (s *Store) AppendHubEvent(ctx context.Context, event types.HubEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = uint64(len(s.hubEvents))
	if err := s.backend.SaveHubEvent(ctx, event); err != nil {
		return err
	}

	s.hubEvents = append(s.hubEvents, event)
	return nil
}

// HubEvents returns one page of the audit log, newest first by default,
// plus the total count.
func (s *Store) HubEvents(skip, take int, descending bool) ([]types.HubEvent, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.hubEvents)
	page := make([]types.HubEvent, 0, take)

	if descending {
		for i := total - 1 - skip; i >= 0 && len(page) < take; i-- {
			page = append(page, s.hubEvents[i])
		}
		return page, total
	}
	for i := skip; i < total && len(page) < take; i++ {
		page = append(page, s.hubEvents[i])
	}
	return page, total
}
