package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// MemoryBackend keeps the persisted state in process memory. It backs tests
// and single-node development setups where durability is not required.
type MemoryBackend struct {
	snapshot Snapshot
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snapshot: Snapshot{
			Deployments: make(map[types.DeploymentID]*types.DeploymentRecord),
			Templates:   make(map[types.TemplateID]*types.ContractTemplate),
			Binaries:    make(map[string][]byte),
		},
	}
}

func (b *MemoryBackend) Load(context.Context) (Snapshot, error) {
	return b.snapshot, nil
}

func (b *MemoryBackend) SaveDeployment(_ context.Context, id types.DeploymentID, record *types.DeploymentRecord) error {
	b.snapshot.Deployments[id] = record.Clone()
	return nil
}

func (b *MemoryBackend) SaveEvent(_ context.Context, event types.DeploymentEvent) error {
	b.snapshot.Events = append(b.snapshot.Events, event)
	return nil
}

func (b *MemoryBackend) SaveTemplate(_ context.Context, id types.TemplateID, template *types.ContractTemplate) error {
	b.snapshot.Templates[id] = template.Clone()
	return nil
}

func (b *MemoryBackend) SaveBinary(_ context.Context, hash string, data []byte) error {
	b.snapshot.Binaries[hash] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) DeleteBinary(_ context.Context, hash string) error {
	delete(b.snapshot.Binaries, hash)
	return nil
}

func (b *MemoryBackend) SaveAccessRights(_ context.Context, rights []types.AccessRight) error {
	b.snapshot.AccessRights = append([]types.AccessRight(nil), rights...)
	return nil
}

func (b *MemoryBackend) SaveHubEvent(_ context.Context, event types.HubEvent) error {
	b.snapshot.HubEvents = append(b.snapshot.HubEvents, event)
	return nil
}

func (b *MemoryBackend) SaveConfig(_ context.Context, config types.HubConfig) error {
	b.snapshot.Config = &config
	return nil
}

func (b *MemoryBackend) Close() {}

var _ Backend = (*MemoryBackend)(nil)
