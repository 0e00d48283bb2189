package deployments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/store"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

func processStartInstallBinary(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	template, err := d.store.Template(record.TemplateID)
	if err != nil {
		return taskResult{}, err
	}
	binary, err := d.store.Binary(template.Definition.BinaryHash)
	if err != nil {
		return taskResult{}, err
	}

	chunkSize := d.store.Config().BinaryUploadChunkSize
	chunkCount := (len(binary) + chunkSize - 1) / chunkSize

	if err := d.env.Provisioner.ClearChunkStore(ctx, record.Instance); err != nil {
		return taskResult{}, err
	}

	d.env.Logger.Info("binary installation started",
		"deployment_id", id, "chunk_size", chunkSize, "chunk_count", chunkCount)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:       types.EventInstallBinaryStarted,
		ChunkSize:  chunkSize,
		ChunkCount: chunkCount,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

// processUploadBinary uploads exactly one chunk per step, then verifies the
// full set against the provisioner. Chunk-size drift or a remote mismatch
// restarts the upload from scratch; prior hashes are worthless once the
// chunking changed.
func processUploadBinary(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	template, err := d.store.Template(record.TemplateID)
	if err != nil {
		return taskResult{}, err
	}
	binary, err := d.store.Binary(template.Definition.BinaryHash)
	if err != nil {
		return taskResult{}, err
	}

	state := record.State
	uploadedCount := len(state.UploadedHashes)

	if uploadedCount < state.ChunkCount {
		if state.ChunkSize != d.store.Config().BinaryUploadChunkSize {
			return d.reuploadBinary(ctx, id, lock, "upload chunk size changed")
		}

		chunkIndex := uploadedCount
		from := state.ChunkSize * chunkIndex
		to := min(from+state.ChunkSize, len(binary))

		chunkHash, err := d.env.Provisioner.UploadChunk(ctx, record.Instance, binary[from:to])
		if err != nil {
			return taskResult{}, err
		}

		d.env.Logger.Info("binary chunk uploaded",
			"deployment_id", id, "chunk_index", chunkIndex, "chunk_hash", chunkHash)

		if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
			Kind:       types.EventBinaryChunkUploaded,
			ChunkIndex: chunkIndex,
			ChunkHash:  chunkHash,
		}); err != nil {
			return taskResult{}, err
		}
		return yieldTask(), nil
	}

	stored, err := d.env.Provisioner.StoredChunks(ctx, record.Instance)
	if err != nil {
		return taskResult{}, err
	}

	storedSet := make(map[string]struct{}, len(stored))
	for _, hash := range stored {
		storedSet[hash] = struct{}{}
	}

	if len(storedSet) != uploadedCount {
		return d.reuploadBinary(ctx, id, lock, "stored chunk count mismatch")
	}
	for _, hash := range state.UploadedHashes {
		if _, ok := storedSet[hash]; !ok {
			return d.reuploadBinary(ctx, id, lock, "chunk hash mismatch")
		}
	}

	d.env.Logger.Info("all binary chunks uploaded", "deployment_id", id, "chunks", uploadedCount)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind: types.EventBinaryUploaded,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

func (d *Driver) reuploadBinary(ctx context.Context, id types.DeploymentID, lock types.Lock, reason string) (taskResult, error) {
	d.env.Logger.Info("re-uploading binary", "deployment_id", id, "reason", reason)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:   types.EventReUploadBinary,
		Reason: reason,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

func processInstallBinary(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	template, err := d.store.Template(record.TemplateID)
	if err != nil {
		return taskResult{}, err
	}
	if record.State.Certificate == nil {
		return taskResult{}, store.ErrWrongState
	}

	var activationCodeHash string
	if record.ActivationCode != "" {
		sum := sha256.Sum256([]byte(record.ActivationCode))
		activationCodeHash = hex.EncodeToString(sum[:])
	}

	err = d.env.Provisioner.InstallChunked(ctx, enviro.InstallArgs{
		Instance:           record.Instance,
		ChunkHashes:        record.State.UploadedHashes,
		BinaryHash:         template.Definition.BinaryHash,
		Reinstall:          true,
		Certificate:        *record.State.Certificate,
		ActivationCodeHash: activationCodeHash,
	})
	if err != nil {
		return taskResult{}, err
	}

	d.env.Logger.Info("binary installed", "deployment_id", id, "instance", record.Instance)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind: types.EventBinaryInstalled,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}
