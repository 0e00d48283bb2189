package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

type instance struct {
	settings    types.InstanceSettings
	controllers []types.Principal
	chunks      map[string][]byte
	moduleHash  string
	certificate *certificate.Signed
}

// Provisioner is an in-memory compute-provisioning authority.
type Provisioner struct {
	mu sync.Mutex

	hub       types.Principal
	instances map[types.InstanceID]*instance

	// DropChunks silently discards the next uploaded chunk, so the stored
	// set no longer matches what the orchestrator recorded.
	DropChunks int

	// FailSetController makes SetController fail once. When paired with
	// ApplyControllerAnyway the controller change still lands, modeling the
	// "already updated" race.
	FailSetController     bool
	ApplyControllerAnyway bool
}

// NewProvisioner builds a provisioner owned by the given hub principal.
func NewProvisioner(hub types.Principal) *Provisioner {
	return &Provisioner{hub: hub, instances: make(map[types.InstanceID]*instance)}
}

func (p *Provisioner) CreateInstance(_ context.Context, settings types.InstanceSettings, _ types.Credits) (types.InstanceID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := newInstanceID()
	p.instances[id] = &instance{
		settings:    settings,
		controllers: []types.Principal{p.hub},
		chunks:      make(map[string][]byte),
	}
	return id, nil
}

func (p *Provisioner) ClearChunkStore(_ context.Context, id types.InstanceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok {
		return fmt.Errorf("instance %s not found", id)
	}
	inst.chunks = make(map[string][]byte)
	return nil
}

func (p *Provisioner) UploadChunk(_ context.Context, id types.InstanceID, chunk []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok {
		return "", fmt.Errorf("instance %s not found", id)
	}

	sum := sha256.Sum256(chunk)
	hash := hex.EncodeToString(sum[:])

	if p.DropChunks > 0 {
		p.DropChunks--
		return hash, nil
	}

	inst.chunks[hash] = append([]byte(nil), chunk...)
	return hash, nil
}

func (p *Provisioner) StoredChunks(_ context.Context, id types.InstanceID) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", id)
	}

	hashes := make([]string, 0, len(inst.chunks))
	for hash := range inst.chunks {
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (p *Provisioner) InstallChunked(_ context.Context, args enviro.InstallArgs) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[args.Instance]
	if !ok {
		return fmt.Errorf("instance %s not found", args.Instance)
	}
	for _, hash := range args.ChunkHashes {
		if _, ok := inst.chunks[hash]; !ok {
			return fmt.Errorf("chunk %s not stored on instance", hash)
		}
	}

	inst.moduleHash = args.BinaryHash
	cert := args.Certificate
	inst.certificate = &cert
	return nil
}

func (p *Provisioner) SetController(_ context.Context, id types.InstanceID, controller types.Principal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok {
		return fmt.Errorf("instance %s not found", id)
	}

	if p.FailSetController {
		p.FailSetController = false
		if p.ApplyControllerAnyway {
			inst.controllers = []types.Principal{controller}
		}
		return &enviro.ControllersChangedError{Reason: "concurrent settings update"}
	}

	inst.controllers = []types.Principal{controller}
	return nil
}

func (p *Provisioner) InstanceInfo(_ context.Context, id types.InstanceID) (enviro.InstanceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok {
		return enviro.InstanceInfo{}, fmt.Errorf("instance %s not found", id)
	}
	return enviro.InstanceInfo{
		Controllers: append([]types.Principal(nil), inst.controllers...),
		ModuleHash:  inst.moduleHash,
	}, nil
}

func (p *Provisioner) FetchCertificate(_ context.Context, id types.InstanceID) (certificate.Signed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok || inst.certificate == nil {
		return certificate.Signed{}, fmt.Errorf("certificate unavailable on instance %s", id)
	}
	return *inst.certificate, nil
}

var _ enviro.Provisioner = (*Provisioner)(nil)
