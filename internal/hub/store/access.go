package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// AccessRights returns the current ACL.
func (s *Store) AccessRights() []types.AccessRight {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]types.AccessRight(nil), s.accessRights...)
}

// SetAccessRights replaces the whole ACL.
func (s *Store) SetAccessRights(ctx context.Context, rights []types.AccessRight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rights = append([]types.AccessRight(nil), rights...)
	if err := s.backend.SaveAccessRights(ctx, rights); err != nil {
		return err
	}

	s.accessRights = rights
	return nil
}

// HasPermission reports whether the caller holds the permission. An empty
// ACL admits everyone; an entry with a nil permission set grants everything.
func (s *Store) HasPermission(caller types.Principal, permission types.AccessPermission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.accessRights) == 0 {
		return true
	}
	for _, right := range s.accessRights {
		if right.Caller != caller {
			continue
		}
		if right.Permissions == nil {
			return true
		}
		for _, p := range *right.Permissions {
			if p == permission {
				return true
			}
		}
	}
	return false
}
