package types

import "github.com/contracthub-dev/contracthub/pkg/certificate"

// StateKind tags the variants of the deployment state machine, ordered as
// the saga progresses.
type StateKind string

const (
	StateStartDeployment              StateKind = "start_deployment"
	StateTransferOwnerFundsToTransit  StateKind = "transfer_owner_funds_to_transit"
	StateTransferTopUpFunds           StateKind = "transfer_top_up_funds_to_credit_authority"
	StateNotifyCreditAuthority        StateKind = "notify_credit_authority"
	StateCreateInstanceOverAuthority  StateKind = "create_instance_over_credit_authority"
	StateCreateInstanceOverProvisoner StateKind = "create_instance_over_provisioner"
	StateGenerateCertificate          StateKind = "generate_certificate"
	StateWaitingReceiveCertificate    StateKind = "waiting_receive_certificate"
	StateStartInstallBinary           StateKind = "start_install_binary"
	StateUploadBinary                 StateKind = "upload_binary"
	StateInstallBinary                StateKind = "install_binary"
	StateMakeInstanceSelfControlled   StateKind = "make_instance_self_controlled"
	StateFinalizeDeployment           StateKind = "finalize_deployment"
)

// FinalizeSubState tags the finalization sub-states.
type FinalizeSubState string

const (
	FinalizeStart         FinalizeSubState = "start_finalization"
	FinalizeTransferFunds FinalizeSubState = "transfer_transit_funds_to_fallback"
	Finalized             FinalizeSubState = "finalized"
)

// ResultKind tags the deployment outcome carried by the finalize state.
type ResultKind string

const (
	ResultSuccess   ResultKind = "success"
	ResultCancelled ResultKind = "cancelled"
)

// DeploymentResult is the outcome recorded when finalization begins.
type DeploymentResult struct {
	Kind   ResultKind `json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

// DeploymentState is the tagged union of saga states. Kind selects the
// variant; only the fields belonging to that variant are populated.
type DeploymentState struct {
	Time int64     `json:"time"`
	Kind StateKind `json:"kind"`

	// NotifyCreditAuthority
	CreditAuthority Principal `json:"credit_authority,omitempty"`
	TransferRef     uint64    `json:"transfer_ref,omitempty"`

	// StartInstallBinary, UploadBinary, InstallBinary
	Certificate    *certificate.Signed `json:"certificate,omitempty"`
	ChunkSize      int                 `json:"chunk_size,omitempty"`
	ChunkCount     int                 `json:"chunk_count,omitempty"`
	UploadedHashes []string            `json:"uploaded_hashes,omitempty"`

	// FinalizeDeployment
	Result   *DeploymentResult `json:"result,omitempty"`
	SubState FinalizeSubState  `json:"sub_state,omitempty"`
}

// Terminal reports whether the state is the immutable terminal variant.
func (s DeploymentState) Terminal() bool {
	return s.Kind == StateFinalizeDeployment && s.SubState == Finalized
}

// DeploymentRecord is one saga instance. It is created once, mutated only
// through lock-guarded event application, and becomes read-only when its
// state reaches the terminal variant.
type DeploymentRecord struct {
	ID              DeploymentID     `json:"id"`
	Owner           Principal        `json:"owner"`
	Created         int64            `json:"created"`
	TemplateID      TemplateID       `json:"template_id"`
	Expenses        ExpenseBreakdown `json:"expenses"`
	Amount          Tokens           `json:"amount"`
	ApprovedAccount LedgerAccount    `json:"approved_account"`
	PlacementHint   string           `json:"placement_hint,omitempty"`
	ActivationCode  string           `json:"activation_code,omitempty"`
	Instance        InstanceID       `json:"instance,omitempty"`
	State           DeploymentState  `json:"state"`
	ProcessingError *TimestampedText `json:"processing_error,omitempty"`
	Lock            *Lock            `json:"lock,omitempty"`
	LockSeq         uint64           `json:"lock_seq"`
}

// Clone returns a deep copy so callers never alias the stored record across
// suspension points.
func (d *DeploymentRecord) Clone() *DeploymentRecord {
	cp := *d
	if d.Lock != nil {
		lock := *d.Lock
		cp.Lock = &lock
	}
	if d.ProcessingError != nil {
		pe := *d.ProcessingError
		cp.ProcessingError = &pe
	}
	cp.State = d.State.clone()
	return &cp
}

func (s DeploymentState) clone() DeploymentState {
	cp := s
	if s.Certificate != nil {
		cert := *s.Certificate
		cp.Certificate = &cert
	}
	if s.UploadedHashes != nil {
		cp.UploadedHashes = append([]string(nil), s.UploadedHashes...)
	}
	if s.Result != nil {
		result := *s.Result
		cp.Result = &result
	}
	return cp
}
