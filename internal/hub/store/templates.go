package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// AddTemplate registers a template around an already staged binary and
// assigns the next sequential id.
func (s *Store) AddTemplate(ctx context.Context, registrar types.Principal, now int64, definition types.TemplateDefinition) (types.TemplateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextTemplateID
	template := &types.ContractTemplate{
		ID:         id,
		Registrar:  registrar,
		Registered: now,
		Definition: definition,
	}

	if err := s.backend.SaveTemplate(ctx, id, template); err != nil {
		return 0, err
	}

	s.templates[id] = template
	s.nextTemplateID++
	return id, nil
}

// Template returns a deep copy of the template.
func (s *Store) Template(id types.TemplateID) (*types.ContractTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	template, ok := s.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return template.Clone(), nil
}

// Templates returns one page of templates in id order plus the total count.
func (s *Store) Templates(skip, take int) ([]*types.ContractTemplate, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.templates)
	page := make([]*types.ContractTemplate, 0, take)
	for id := types.TemplateID(0); id < s.nextTemplateID; id++ {
		template, ok := s.templates[id]
		if !ok {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(page) >= take {
			break
		}
		page = append(page, template.Clone())
	}
	return page, total
}

// SetTemplateBlocked blocks or unblocks a template. Blocking destroys the
// staged binary as well, so a blocked template cannot be deployed even after
// an unblock until its binary is re-staged.
func (s *Store) SetTemplateBlocked(ctx context.Context, id types.TemplateID, now int64, reason string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	template, ok := s.templates[id]
	if !ok {
		return ErrTemplateNotFound
	}

	updated := template.Clone()
	if blocked {
		updated.Blocked = &types.TimestampedText{Time: now, Text: reason}
	} else {
		updated.Blocked = nil
	}

	if err := s.backend.SaveTemplate(ctx, id, updated); err != nil {
		return err
	}

	s.templates[id] = updated
	if blocked {
		if err := s.backend.DeleteBinary(ctx, updated.Definition.BinaryHash); err != nil {
			s.logger.Error("failed to delete blocked template binary",
				"template_id", id, "error", err)
		}
		delete(s.binaries, updated.Definition.BinaryHash)
	}
	return nil
}

// SetTemplateRetired hides a template from new deployments.
func (s *Store) SetTemplateRetired(ctx context.Context, id types.TemplateID, now int64, reason string, retired bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	template, ok := s.templates[id]
	if !ok {
		return ErrTemplateNotFound
	}

	updated := template.Clone()
	if retired {
		updated.Retired = &types.TimestampedText{Time: now, Text: reason}
	} else {
		updated.Retired = nil
	}

	if err := s.backend.SaveTemplate(ctx, id, updated); err != nil {
		return err
	}

	s.templates[id] = updated
	return nil
}

// IncrementTemplateDeployments bumps the deployment counter. Called once per
// finalized deployment.
func (s *Store) IncrementTemplateDeployments(ctx context.Context, id types.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	template, ok := s.templates[id]
	if !ok {
		return ErrTemplateNotFound
	}

	updated := template.Clone()
	updated.DeploymentsCount++

	if err := s.backend.SaveTemplate(ctx, id, updated); err != nil {
		return err
	}

	s.templates[id] = updated
	return nil
}
