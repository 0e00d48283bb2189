package types

import "github.com/contracthub-dev/contracthub/pkg/certificate"

// EventKind tags the processing-event variants. Events are the only way the
// deployment state mutates; each is valid from a specific source-state set.
type EventKind string

const (
	EventDeploymentStarted           EventKind = "deployment_started"
	EventOwnerFundsTransferred       EventKind = "owner_funds_on_transit_transferred"
	EventTopUpFundsTransferred       EventKind = "top_up_funds_transferred"
	EventTopUpAuthorityNotified      EventKind = "top_up_authority_notified"
	EventUseExternalConverting       EventKind = "use_external_service_converting"
	EventInstanceOverAuthorityMade   EventKind = "instance_over_credit_authority_created"
	EventUseProvisionerCreation      EventKind = "use_provisioner_creation"
	EventInstanceOverProvisonerMade  EventKind = "instance_over_provisioner_created"
	EventCertificateGenerated        EventKind = "certificate_generated"
	EventRetryGenerateCertificate    EventKind = "retry_generate_certificate"
	EventCertificateReceived         EventKind = "certificate_received"
	EventInstallBinaryStarted        EventKind = "install_binary_started"
	EventReUploadBinary              EventKind = "re_upload_binary"
	EventBinaryChunkUploaded         EventKind = "binary_chunk_uploaded"
	EventBinaryUploaded              EventKind = "binary_uploaded"
	EventBinaryInstalled             EventKind = "binary_installed"
	EventInstanceSelfControlledMade  EventKind = "instance_self_controlled_made"
	EventStartCompleteDeployment     EventKind = "start_complete_deployment"
	EventTransitFundsSweptToFallback EventKind = "transit_funds_swept_to_fallback"
	EventDeploymentCanceled          EventKind = "deployment_canceled"
)

// ProcessingEvent is the tagged union of transition payloads. Kind selects
// the variant; only the fields belonging to that variant are populated.
type ProcessingEvent struct {
	Kind EventKind `json:"kind"`

	// OwnerFundsTransferred, TopUpFundsTransferred, TransitFundsSwept
	TransitBalance Tokens  `json:"transit_balance,omitempty"`
	TransferAmount Tokens  `json:"transfer_amount,omitempty"`
	TransferRef    *uint64 `json:"transfer_ref,omitempty"`

	// TopUpFundsTransferred
	CreditAuthority Principal `json:"credit_authority,omitempty"`

	// TopUpAuthorityNotified
	Credits Credits `json:"credits,omitempty"`

	// UseExternalConverting, UseProvisionerCreation, ReUploadBinary,
	// DeploymentCanceled
	Reason string `json:"reason,omitempty"`

	// Instance creation
	Settings *InstanceSettings `json:"settings,omitempty"`
	Instance InstanceID        `json:"instance,omitempty"`

	// CertificateReceived
	Certificate *certificate.Signed `json:"certificate,omitempty"`

	// InstallBinaryStarted
	ChunkSize  int `json:"chunk_size,omitempty"`
	ChunkCount int `json:"chunk_count,omitempty"`

	// BinaryChunkUploaded
	ChunkIndex int    `json:"chunk_index,omitempty"`
	ChunkHash  string `json:"chunk_hash,omitempty"`
}

// DeploymentEvent is a processing event as stored in the append-only log.
type DeploymentEvent struct {
	ID           DeploymentEventID `json:"id"`
	DeploymentID DeploymentID      `json:"deployment_id"`
	Time         int64             `json:"time"`
	Event        ProcessingEvent   `json:"event"`
}
