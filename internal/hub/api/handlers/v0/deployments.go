package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// DeployRequest represents the input for starting a deployment
type DeployRequest struct {
	TemplateID    uint64 `json:"template_id" doc:"Template to deploy" example:"1"`
	ApprovedOwner string `json:"approved_owner,omitempty" doc:"Funding account owner (defaults to the caller)"`
	ApprovedSub   string `json:"approved_subaccount,omitempty" doc:"Funding subaccount"`
	PlacementHint string `json:"placement_hint,omitempty" doc:"Opaque placement hint forwarded to the provisioner"`
}

// CancelRequest carries the operator-visible cancellation reason
type CancelRequest struct {
	Reason string `json:"reason" doc:"Why the deployment is being canceled" example:"changed my mind"`
}

// DeploymentResponse represents a single deployment
type DeploymentResponse struct {
	Body service.DeploymentInfo
}

// DeploymentsListResponse represents a page of deployments
type DeploymentsListResponse struct {
	Body struct {
		Deployments []service.DeploymentInfo `json:"deployments" doc:"Page of deployments"`
	}
}

// DeploymentEventsResponse represents a page of a deployment's event log
type DeploymentEventsResponse struct {
	Body struct {
		Events []types.DeploymentEvent `json:"events" doc:"Page of processing events"`
	}
}

// ActivationCodeResponse carries the owner-only activation code
type ActivationCodeResponse struct {
	Body struct {
		ActivationCode string `json:"activation_code" doc:"Hex activation code handed to the instance"`
	}
}

// DeploymentIDInput represents the deployment path parameter
type DeploymentIDInput struct {
	ID uint64 `path:"id" json:"id" doc:"Deployment identifier" example:"1"`
}

// DeploymentsListInput represents query parameters for listing deployments
type DeploymentsListInput struct {
	Owner      string  `query:"owner" json:"owner,omitempty" doc:"Filter by owner principal"`
	TemplateID *uint64 `query:"template_id" json:"template_id,omitempty" doc:"Filter by template"`
	Skip       int     `query:"skip" json:"skip,omitempty" doc:"Entries to skip" example:"0"`
	Take       int     `query:"take" json:"take,omitempty" doc:"Page size (0 means the configured maximum)" example:"100"`
	Descending bool    `query:"descending" json:"descending,omitempty" doc:"Newest first"`
}

// EventsPageInput represents query parameters for paging an event log
type EventsPageInput struct {
	Skip       int  `query:"skip" json:"skip,omitempty" doc:"Entries to skip" example:"0"`
	Take       int  `query:"take" json:"take,omitempty" doc:"Page size (0 means the configured maximum)" example:"100"`
	Descending bool `query:"descending" json:"descending,omitempty" doc:"Newest first"`
}

// RegisterDeploymentsEndpoints registers all deployment-related endpoints
func RegisterDeploymentsEndpoints(api huma.API, basePath string, hub service.HubService) {
	// Start a deployment
	huma.Register(api, huma.Operation{
		OperationID: "deploy-contract",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments",
		Summary:     "Deploy a contract",
		Description: "Reserve funds against the approved account and start the deployment workflow for a template. The caller becomes the deployment owner.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *struct {
		Body DeployRequest
	}) (*DeploymentResponse, error) {
		info, err := hub.DeployContract(ctx, service.DeployArgs{
			TemplateID: input.Body.TemplateID,
			ApprovedAccount: types.LedgerAccount{
				Owner:      types.Principal(input.Body.ApprovedOwner),
				Subaccount: input.Body.ApprovedSub,
			},
			PlacementHint: input.Body.PlacementHint,
		})
		if err != nil {
			return nil, mapServiceError(err, "Failed to start deployment")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// List deployments
	huma.Register(api, huma.Operation{
		OperationID: "list-deployments",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments",
		Summary:     "List deployments",
		Description: "Retrieve deployments, optionally filtered by owner and template, paged by skip/take.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentsListInput) (*DeploymentsListResponse, error) {
		query := service.DeploymentsQuery{
			Skip:       input.Skip,
			Take:       input.Take,
			Descending: input.Descending,
		}
		if input.Owner != "" {
			owner := types.Principal(input.Owner)
			query.Owner = &owner
		}
		if input.TemplateID != nil {
			id := *input.TemplateID
			query.TemplateID = &id
		}

		deployments, err := hub.GetDeployments(ctx, query)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve deployments")
		}

		resp := &DeploymentsListResponse{}
		resp.Body.Deployments = make([]service.DeploymentInfo, 0, len(deployments))
		for _, d := range deployments {
			resp.Body.Deployments = append(resp.Body.Deployments, *d)
		}
		return resp, nil
	})

	// The literal "active" segment takes precedence over {id} in the mux.
	huma.Register(api, huma.Operation{
		OperationID: "get-active-deployment",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/active",
		Summary:     "Get the caller's active deployment",
		Description: "Retrieve the caller's deployment that has not reached a terminal state, if any.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, _ *struct{}) (*DeploymentResponse, error) {
		info, err := hub.GetActiveDeployment(ctx)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve active deployment")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Get a deployment by id
	huma.Register(api, huma.Operation{
		OperationID: "get-deployment",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}",
		Summary:     "Get deployment details",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentIDInput) (*DeploymentResponse, error) {
		info, err := hub.GetDeployment(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve deployment")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Get a deployment by instance
	huma.Register(api, huma.Operation{
		OperationID: "get-deployment-by-instance",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/instance/{instance}",
		Summary:     "Get deployment by instance",
		Description: "Retrieve the deployment that created the given compute instance.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *struct {
		Instance string `path:"instance" json:"instance" doc:"Compute instance identifier"`
	}) (*DeploymentResponse, error) {
		info, err := hub.GetDeploymentByInstance(ctx, types.InstanceID(input.Instance))
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve deployment")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Drive one processing step
	huma.Register(api, huma.Operation{
		OperationID: "process-deployment",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments/{id}/process",
		Summary:     "Process a deployment step",
		Description: "Run the next workflow step for a deployment that needs processing. Safe to call concurrently; losers get the winner's lock expiration.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentIDInput) (*DeploymentResponse, error) {
		info, err := hub.ProcessDeployment(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(err, "Failed to process deployment")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Cancel a deployment
	huma.Register(api, huma.Operation{
		OperationID: "cancel-deployment",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments/{id}/cancel",
		Summary:     "Cancel a deployment",
		Description: "Cancel an in-flight deployment. Reserved funds still in transit are swept to the fallback account.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *struct {
		DeploymentIDInput
		Body CancelRequest
	}) (*DeploymentResponse, error) {
		info, err := hub.CancelDeployment(ctx, input.ID, input.Body.Reason)
		if err != nil {
			return nil, mapServiceError(err, "Failed to cancel deployment")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Deployment event log
	huma.Register(api, huma.Operation{
		OperationID: "list-deployment-events",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/events",
		Summary:     "List deployment events",
		Description: "Page through the append-only processing log of a deployment.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *struct {
		DeploymentIDInput
		EventsPageInput
	}) (*DeploymentEventsResponse, error) {
		events, err := hub.GetDeploymentEvents(ctx, input.ID, input.Skip, input.Take, input.Descending)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve deployment events")
		}
		resp := &DeploymentEventsResponse{}
		resp.Body.Events = events
		return resp, nil
	})

	// Activation code
	huma.Register(api, huma.Operation{
		OperationID: "get-activation-code",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/activation-code",
		Summary:     "Get the activation code",
		Description: "Retrieve the activation code for a deployment whose template requires activation. Owner only.",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, input *DeploymentIDInput) (*ActivationCodeResponse, error) {
		code, err := hub.GetActivationCode(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve activation code")
		}
		resp := &ActivationCodeResponse{}
		resp.Body.ActivationCode = code
		return resp, nil
	})
}
