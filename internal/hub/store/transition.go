package store

import (
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// transition computes the record's next state from the current state and the
// event payload. It is a pure function of the two except for setting the
// instance handle on the record when an instance-created event lands. Any
// guard failure returns ErrWrongState without touching the record.
func transition(now int64, record *types.DeploymentRecord, event types.ProcessingEvent) error {
	state := &record.State

	next := func(kind types.StateKind) types.DeploymentState {
		return types.DeploymentState{Time: now, Kind: kind}
	}

	switch event.Kind {
	case types.EventDeploymentCanceled:
		if state.Kind == types.StateFinalizeDeployment {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:     now,
			Kind:     types.StateFinalizeDeployment,
			Result:   &types.DeploymentResult{Kind: types.ResultCancelled, Reason: event.Reason},
			SubState: types.FinalizeStart,
		}

	case types.EventDeploymentStarted:
		if state.Kind != types.StateStartDeployment {
			return ErrWrongState
		}
		record.State = next(types.StateTransferOwnerFundsToTransit)

	case types.EventOwnerFundsTransferred:
		if state.Kind != types.StateTransferOwnerFundsToTransit {
			return ErrWrongState
		}
		record.State = next(types.StateTransferTopUpFunds)

	case types.EventTopUpFundsTransferred:
		if state.Kind != types.StateTransferTopUpFunds {
			return ErrWrongState
		}
		var transferRef uint64
		if event.TransferRef != nil {
			transferRef = *event.TransferRef
		}
		record.State = types.DeploymentState{
			Time:            now,
			Kind:            types.StateNotifyCreditAuthority,
			CreditAuthority: event.CreditAuthority,
			TransferRef:     transferRef,
		}

	case types.EventTopUpAuthorityNotified:
		if state.Kind != types.StateNotifyCreditAuthority {
			return ErrWrongState
		}
		record.State = next(types.StateCreateInstanceOverAuthority)

	case types.EventUseExternalConverting:
		if state.Kind != types.StateTransferTopUpFunds && state.Kind != types.StateNotifyCreditAuthority {
			return ErrWrongState
		}
		record.State = next(types.StateCreateInstanceOverAuthority)

	case types.EventInstanceOverAuthorityMade:
		if state.Kind != types.StateCreateInstanceOverAuthority {
			return ErrWrongState
		}
		record.Instance = event.Instance
		record.State = next(types.StateGenerateCertificate)

	case types.EventUseProvisionerCreation:
		if state.Kind != types.StateCreateInstanceOverAuthority {
			return ErrWrongState
		}
		record.State = next(types.StateCreateInstanceOverProvisoner)

	case types.EventInstanceOverProvisonerMade:
		if state.Kind != types.StateCreateInstanceOverProvisoner {
			return ErrWrongState
		}
		record.Instance = event.Instance
		record.State = next(types.StateGenerateCertificate)

	case types.EventCertificateGenerated:
		if state.Kind != types.StateGenerateCertificate {
			return ErrWrongState
		}
		record.State = next(types.StateWaitingReceiveCertificate)

	case types.EventRetryGenerateCertificate:
		if state.Kind != types.StateWaitingReceiveCertificate {
			return ErrWrongState
		}
		record.State = next(types.StateGenerateCertificate)

	case types.EventCertificateReceived:
		if state.Kind != types.StateWaitingReceiveCertificate {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:        now,
			Kind:        types.StateStartInstallBinary,
			Certificate: event.Certificate,
		}

	case types.EventInstallBinaryStarted:
		if state.Kind != types.StateStartInstallBinary {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:           now,
			Kind:           types.StateUploadBinary,
			Certificate:    state.Certificate,
			ChunkSize:      event.ChunkSize,
			ChunkCount:     event.ChunkCount,
			UploadedHashes: []string{},
		}

	case types.EventReUploadBinary:
		if state.Kind != types.StateUploadBinary {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:        now,
			Kind:        types.StateStartInstallBinary,
			Certificate: state.Certificate,
		}

	case types.EventBinaryChunkUploaded:
		if state.Kind != types.StateUploadBinary {
			return ErrWrongState
		}
		// An index the upload did not expect means the view of the upload
		// has drifted; restart from scratch instead of failing.
		if event.ChunkIndex != len(state.UploadedHashes) || event.ChunkIndex >= state.ChunkCount {
			record.State = types.DeploymentState{
				Time:        now,
				Kind:        types.StateStartInstallBinary,
				Certificate: state.Certificate,
			}
			return nil
		}
		uploaded := append(append([]string(nil), state.UploadedHashes...), event.ChunkHash)
		record.State = types.DeploymentState{
			Time:           now,
			Kind:           types.StateUploadBinary,
			Certificate:    state.Certificate,
			ChunkSize:      state.ChunkSize,
			ChunkCount:     state.ChunkCount,
			UploadedHashes: uploaded,
		}

	case types.EventBinaryUploaded:
		if state.Kind != types.StateUploadBinary {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:           now,
			Kind:           types.StateInstallBinary,
			Certificate:    state.Certificate,
			UploadedHashes: state.UploadedHashes,
		}

	case types.EventBinaryInstalled:
		if state.Kind != types.StateInstallBinary {
			return ErrWrongState
		}
		record.State = next(types.StateMakeInstanceSelfControlled)

	case types.EventInstanceSelfControlledMade:
		if state.Kind != types.StateMakeInstanceSelfControlled {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:     now,
			Kind:     types.StateFinalizeDeployment,
			Result:   &types.DeploymentResult{Kind: types.ResultSuccess},
			SubState: types.FinalizeStart,
		}

	case types.EventStartCompleteDeployment:
		if state.Kind != types.StateFinalizeDeployment || state.SubState != types.FinalizeStart {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:     now,
			Kind:     types.StateFinalizeDeployment,
			Result:   state.Result,
			SubState: types.FinalizeTransferFunds,
		}

	case types.EventTransitFundsSweptToFallback:
		if state.Kind != types.StateFinalizeDeployment || state.SubState != types.FinalizeTransferFunds {
			return ErrWrongState
		}
		record.State = types.DeploymentState{
			Time:     now,
			Kind:     types.StateFinalizeDeployment,
			Result:   state.Result,
			SubState: types.Finalized,
		}

	default:
		return ErrWrongState
	}

	return nil
}
