package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// AccessRightsResponse represents the full access-rights list
type AccessRightsResponse struct {
	Body struct {
		AccessRights []types.AccessRight `json:"access_rights" doc:"Principals with administrative permissions"`
	}
}

// AccessRightsUpdate replaces the full access-rights list
type AccessRightsUpdate struct {
	AccessRights []types.AccessRight `json:"access_rights" doc:"New access-rights list"`
}

// ConfigResponse represents the hub runtime policy
type ConfigResponse struct {
	Body types.HubConfig
}

// HubEventsResponse represents a page of the administrative audit log
type HubEventsResponse struct {
	Body struct {
		Events []types.HubEvent `json:"events" doc:"Page of audit events"`
		Total  int              `json:"total" doc:"Total audit events"`
	}
}

// RegisterAdminEndpoints registers access-rights, config, and audit endpoints
func RegisterAdminEndpoints(api huma.API, basePath string, hub service.HubService) {
	// Read access rights
	huma.Register(api, huma.Operation{
		OperationID: "get-access-rights",
		Method:      http.MethodGet,
		Path:        basePath + "/access-rights",
		Summary:     "Get access rights",
		Tags:        []string{"admin"},
	}, func(ctx context.Context, _ *struct{}) (*AccessRightsResponse, error) {
		rights, err := hub.GetAccessRights(ctx)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve access rights")
		}
		resp := &AccessRightsResponse{}
		resp.Body.AccessRights = rights
		return resp, nil
	})

	// Replace access rights
	huma.Register(api, huma.Operation{
		OperationID: "set-access-rights",
		Method:      http.MethodPut,
		Path:        basePath + "/access-rights",
		Summary:     "Set access rights",
		Description: "Replace the access-rights list. A non-empty list must still grant the caller the right to manage it, so operators cannot lock themselves out by accident.",
		Tags:        []string{"admin"},
	}, func(ctx context.Context, input *struct {
		Body AccessRightsUpdate
	}) (*Response[EmptyResponse], error) {
		if err := hub.SetAccessRights(ctx, input.Body.AccessRights); err != nil {
			return nil, mapServiceError(err, "Failed to set access rights")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Access rights updated"}}, nil
	})

	// Read the runtime policy
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        basePath + "/config",
		Summary:     "Get hub configuration",
		Tags:        []string{"admin"},
	}, func(ctx context.Context, _ *struct{}) (*ConfigResponse, error) {
		cfg, err := hub.GetConfig(ctx)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve configuration")
		}
		return &ConfigResponse{Body: cfg}, nil
	})

	// Replace the runtime policy
	huma.Register(api, huma.Operation{
		OperationID: "set-config",
		Method:      http.MethodPut,
		Path:        basePath + "/config",
		Summary:     "Set hub configuration",
		Description: "Replace the runtime policy. Handlers read it mid-workflow, so changes affect in-flight deployments at their next step.",
		Tags:        []string{"admin"},
	}, func(ctx context.Context, input *struct {
		Body types.HubConfig
	}) (*Response[EmptyResponse], error) {
		if err := hub.SetConfig(ctx, input.Body); err != nil {
			return nil, mapServiceError(err, "Failed to set configuration")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Configuration updated"}}, nil
	})

	// Page the audit log
	huma.Register(api, huma.Operation{
		OperationID: "list-hub-events",
		Method:      http.MethodGet,
		Path:        basePath + "/hub-events",
		Summary:     "List administrative audit events",
		Tags:        []string{"admin"},
	}, func(ctx context.Context, input *EventsPageInput) (*HubEventsResponse, error) {
		events, total, err := hub.GetHubEvents(ctx, input.Skip, input.Take, input.Descending)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve audit events")
		}
		resp := &HubEventsResponse{}
		resp.Body.Events = events
		resp.Body.Total = total
		return resp, nil
	})
}
