// Package store is the durable heart of the hub: the deployment table with
// its secondary indices, the append-only deployment event log, the template
// registry, binary staging, access rights, the administrative audit log and
// the mutable policy config. All state lives in memory under one mutex and
// is written through to a pluggable backend; the backend is re-read on start.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

type ownerTemplateKey struct {
	owner    types.Principal
	template types.TemplateID
}

// Store is the single shared mutable structure. Every mutation happens under
// the mutex and replaces whole records, never handing out aliases.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *log.Logger

	deployments map[types.DeploymentID]*types.DeploymentRecord
	nextID      types.DeploymentID

	// Secondary indices. Deployment ids are assigned sequentially and
	// records are never deleted, so appending keeps each slice ascending.
	byOwner         map[types.Principal][]types.DeploymentID
	byTemplate      map[types.TemplateID][]types.DeploymentID
	byOwnerTemplate map[ownerTemplateKey][]types.DeploymentID
	byInstance      map[types.InstanceID]types.DeploymentID

	events        []types.DeploymentEvent
	eventsByDeply map[types.DeploymentID][]types.DeploymentEventID

	templates      map[types.TemplateID]*types.ContractTemplate
	nextTemplateID types.TemplateID

	binaries    map[string][]byte
	uploadGrant *types.UploadGrant
	staged      []byte

	accessRights []types.AccessRight
	hubEvents    []types.HubEvent
	config       types.HubConfig
}

// New loads the backend snapshot and builds the in-memory state around it.
func New(ctx context.Context, backend Backend, logger *log.Logger) (*Store, error) {
	snapshot, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}

	s := &Store{
		backend:         backend,
		logger:          logger,
		deployments:     make(map[types.DeploymentID]*types.DeploymentRecord),
		byOwner:         make(map[types.Principal][]types.DeploymentID),
		byTemplate:      make(map[types.TemplateID][]types.DeploymentID),
		byOwnerTemplate: make(map[ownerTemplateKey][]types.DeploymentID),
		byInstance:      make(map[types.InstanceID]types.DeploymentID),
		eventsByDeply:   make(map[types.DeploymentID][]types.DeploymentEventID),
		templates:       make(map[types.TemplateID]*types.ContractTemplate),
		binaries:        make(map[string][]byte),
		config:          types.DefaultHubConfig(),
	}

	ids := make([]types.DeploymentID, 0, len(snapshot.Deployments))
	for id := range snapshot.Deployments {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		record := snapshot.Deployments[id]
		s.deployments[id] = record.Clone()
		s.indexDeployment(record)
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	s.events = append(s.events, snapshot.Events...)
	for _, event := range s.events {
		s.eventsByDeply[event.DeploymentID] = append(s.eventsByDeply[event.DeploymentID], event.ID)
	}
	for id, template := range snapshot.Templates {
		s.templates[id] = template.Clone()
		if id >= s.nextTemplateID {
			s.nextTemplateID = id + 1
		}
	}
	for hash, data := range snapshot.Binaries {
		s.binaries[hash] = data
	}
	s.accessRights = append(s.accessRights, snapshot.AccessRights...)
	s.hubEvents = append(s.hubEvents, snapshot.HubEvents...)
	if snapshot.Config != nil {
		s.config = *snapshot.Config
	}

	logger.Info("store loaded",
		"deployments", len(s.deployments),
		"events", len(s.events),
		"templates", len(s.templates))

	return s, nil
}

func (s *Store) indexDeployment(record *types.DeploymentRecord) {
	s.byOwner[record.Owner] = append(s.byOwner[record.Owner], record.ID)
	s.byTemplate[record.TemplateID] = append(s.byTemplate[record.TemplateID], record.ID)
	key := ownerTemplateKey{owner: record.Owner, template: record.TemplateID}
	s.byOwnerTemplate[key] = append(s.byOwnerTemplate[key], record.ID)
	if record.Instance != "" {
		s.byInstance[record.Instance] = record.ID
	}
}

// Close releases the backend.
func (s *Store) Close() {
	s.backend.Close()
}

func iterate(ids []types.DeploymentID, descending bool, receiver func(types.DeploymentID) bool) {
	if descending {
		for i := len(ids) - 1; i >= 0; i-- {
			if !receiver(ids[i]) {
				return
			}
		}
		return
	}
	for _, id := range ids {
		if !receiver(id) {
			return
		}
	}
}
