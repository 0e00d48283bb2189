// Package service implements the hub's operations on top of the store, the
// saga driver and the capability environment. Authorization happens here:
// handlers pass the request context through and the service resolves the
// caller, checks ownership or access rights, and maps failures onto the
// sentinel errors below.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

var (
	// ErrPermissionDenied is returned when the caller is anonymous, is not
	// the record owner, or lacks the required access right.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDeploymentNotFound is returned for unknown deployment ids and for
	// instance handles no deployment claimed.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrDeploymentWrongState is returned when an operation is not valid
	// from the deployment's current state.
	ErrDeploymentWrongState = errors.New("deployment is in the wrong state for this operation")

	// ErrDeploymentUnavailable is returned when deployments are switched
	// off by policy.
	ErrDeploymentUnavailable = errors.New("deployments are currently unavailable")

	// ErrActiveDeploymentExists is returned when the owner already has a
	// deployment in flight.
	ErrActiveDeploymentExists = errors.New("an active deployment already exists for this owner")

	// ErrTemplateNotFound is returned for unknown template ids.
	ErrTemplateNotFound = errors.New("contract template not found")

	// ErrTemplateUnavailable is returned for blocked or retired templates.
	ErrTemplateUnavailable = errors.New("contract template is not available for deployment")

	// ErrInsufficientBalance is returned when the approved account cannot
	// cover the reserved amount plus the transfer fee.
	ErrInsufficientBalance = errors.New("insufficient approved account balance")

	// ErrInsufficientAllowance is returned when the delegated allowance
	// cannot cover the reserved amount plus the transfer fee.
	ErrInsufficientAllowance = errors.New("insufficient approved account allowance")

	// ErrAllowanceExpiresTooEarly is returned when the allowance would
	// expire before the saga can be expected to finish.
	ErrAllowanceExpiresTooEarly = errors.New("approved account allowance expires too early")

	// ErrNoActivationCode is returned when the template did not require
	// activation.
	ErrNoActivationCode = errors.New("deployment has no activation code")

	// ErrInvalidTemplate is returned for template definitions or binary
	// staging calls that fail validation.
	ErrInvalidTemplate = errors.New("invalid contract template")

	// ErrInvalidConfig is returned for policy updates that fail validation.
	ErrInvalidConfig = errors.New("invalid hub config")

	// ErrLoseControl is returned when a set_access_rights call would strip
	// the caller of the right to manage access rights.
	ErrLoseControl = errors.New("caller would lose the manage-access-rights permission")

	// ErrCertificateInvalid is returned when a presented certificate fails
	// signature verification or does not match the canonical record.
	ErrCertificateInvalid = errors.New("certificate is invalid")

	// ErrUnknownInstanceURL is returned when an instance URL matches none of
	// the configured patterns.
	ErrUnknownInstanceURL = errors.New("instance URL does not match any configured pattern")
)

// DeploymentLockedError is returned when a deployment is leased by another
// processing run. RetryAfter is the lease expiration in unix milliseconds.
type DeploymentLockedError struct {
	RetryAfter int64
}

func (e *DeploymentLockedError) Error() string {
	return fmt.Sprintf("deployment is locked until %d", e.RetryAfter)
}

// DeployArgs is the input of DeployContract.
type DeployArgs struct {
	TemplateID      types.TemplateID
	ApprovedAccount types.LedgerAccount
	PlacementHint   string
}

// DeploymentInfo is the outward view of a deployment record.
type DeploymentInfo struct {
	ID              types.DeploymentID    `json:"id"`
	Owner           types.Principal       `json:"owner"`
	Created         int64                 `json:"created"`
	TemplateID      types.TemplateID      `json:"template_id"`
	Expenses        types.ExpenseBreakdown `json:"expenses"`
	Amount          types.Tokens          `json:"amount"`
	Instance        types.InstanceID      `json:"instance,omitempty"`
	State           types.DeploymentState `json:"state"`
	ProcessingError *types.TimestampedText `json:"processing_error,omitempty"`
	NeedProcessing  bool                  `json:"need_processing"`
	LockedUntil     *int64                `json:"locked_until,omitempty"`
}

// DeploymentsQuery selects and pages deployment listings.
type DeploymentsQuery struct {
	Owner      *types.Principal
	TemplateID *types.TemplateID
	Skip       int
	Take       int
	Descending bool
}

// HubService defines the hub's operations.
type HubService interface {
	// Deployment lifecycle
	DeployContract(ctx context.Context, args DeployArgs) (*DeploymentInfo, error)
	ProcessDeployment(ctx context.Context, id types.DeploymentID) (*DeploymentInfo, error)
	CancelDeployment(ctx context.Context, id types.DeploymentID, reason string) (*DeploymentInfo, error)

	// Deployment queries
	GetDeployment(ctx context.Context, id types.DeploymentID) (*DeploymentInfo, error)
	GetDeploymentByInstance(ctx context.Context, instance types.InstanceID) (*DeploymentInfo, error)
	GetActiveDeployment(ctx context.Context) (*DeploymentInfo, error)
	GetDeployments(ctx context.Context, query DeploymentsQuery) ([]*DeploymentInfo, error)
	GetDeploymentEvents(ctx context.Context, id types.DeploymentID, skip, take int, descending bool) ([]types.DeploymentEvent, error)
	GetActivationCode(ctx context.Context, id types.DeploymentID) (string, error)

	// Certificates
	ObtainCertificate(ctx context.Context, id types.DeploymentID) (certificate.Signed, error)
	InitializeCertificate(ctx context.Context, id types.DeploymentID, signed certificate.Signed) (*DeploymentInfo, error)
	RetryGenerateCertificate(ctx context.Context, id types.DeploymentID) (*DeploymentInfo, error)
	ValidateCertificate(ctx context.Context, instanceURL string) (certificate.Certificate, error)

	// Templates
	AddTemplate(ctx context.Context, definition types.TemplateDefinition) (*types.ContractTemplate, error)
	GetTemplate(ctx context.Context, id types.TemplateID) (*types.ContractTemplate, error)
	GetTemplates(ctx context.Context, skip, take int) ([]*types.ContractTemplate, int, error)
	BlockTemplate(ctx context.Context, id types.TemplateID, reason string, blocked bool) error
	RetireTemplate(ctx context.Context, id types.TemplateID, reason string, retired bool) error
	SetUploadGrant(ctx context.Context, binaryLength int) error
	UploadBinaryChunk(ctx context.Context, chunk []byte) error

	// Administration
	GetAccessRights(ctx context.Context) ([]types.AccessRight, error)
	SetAccessRights(ctx context.Context, rights []types.AccessRight) error
	GetConfig(ctx context.Context) (types.HubConfig, error)
	SetConfig(ctx context.Context, config types.HubConfig) error
	GetHubEvents(ctx context.Context, skip, take int, descending bool) ([]types.HubEvent, int, error)

	// ResumeProcessing re-schedules deployments that need processing, used
	// on startup.
	ResumeProcessing()

	Close()
}
