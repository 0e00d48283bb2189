package store

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// Snapshot is the full persisted state loaded into the store on start.
type Snapshot struct {
	Deployments  map[types.DeploymentID]*types.DeploymentRecord
	Events       []types.DeploymentEvent
	Templates    map[types.TemplateID]*types.ContractTemplate
	Binaries     map[string][]byte
	AccessRights []types.AccessRight
	HubEvents    []types.HubEvent
	Config       *types.HubConfig
}

// Backend is the durable write-through layer behind the in-memory store.
// Every mutation the store commits is forwarded to the backend; the full
// state is reloaded through Load on process start.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)

	SaveDeployment(ctx context.Context, id types.DeploymentID, record *types.DeploymentRecord) error
	SaveEvent(ctx context.Context, event types.DeploymentEvent) error
	SaveTemplate(ctx context.Context, id types.TemplateID, template *types.ContractTemplate) error
	SaveBinary(ctx context.Context, hash string, data []byte) error
	DeleteBinary(ctx context.Context, hash string) error
	SaveAccessRights(ctx context.Context, rights []types.AccessRight) error
	SaveHubEvent(ctx context.Context, event types.HubEvent) error
	SaveConfig(ctx context.Context, config types.HubConfig) error

	Close()
}
