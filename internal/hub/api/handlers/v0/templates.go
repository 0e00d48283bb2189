package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// TemplateResponse represents a registered contract template
type TemplateResponse struct {
	Body types.ContractTemplate
}

// TemplatesListResponse represents a page of templates with the total count
type TemplatesListResponse struct {
	Body struct {
		Templates []types.ContractTemplate `json:"templates" doc:"Page of templates"`
		Total     int                      `json:"total" doc:"Total registered templates"`
	}
}

// TemplateIDInput represents the template path parameter
type TemplateIDInput struct {
	ID uint64 `path:"id" json:"id" doc:"Template identifier" example:"1"`
}

// TemplateModerationRequest flips a moderation flag with an audit reason
type TemplateModerationRequest struct {
	Value  bool   `json:"value" doc:"New flag value" example:"true"`
	Reason string `json:"reason" doc:"Audit reason" example:"license violation"`
}

// UploadGrantRequest reserves the binary staging area
type UploadGrantRequest struct {
	BinaryLength int `json:"binary_length" doc:"Exact length of the binary to stage, in bytes" example:"1048576"`
}

// UploadChunkRequest appends bytes to the staged binary
type UploadChunkRequest struct {
	Chunk []byte `json:"chunk" doc:"Base64-encoded chunk of the binary"`
}

// RegisterTemplatesEndpoints registers template catalog endpoints
func RegisterTemplatesEndpoints(api huma.API, basePath string, hub service.HubService) {
	// List templates
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        basePath + "/templates",
		Summary:     "List contract templates",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		Skip int `query:"skip" json:"skip,omitempty" doc:"Entries to skip" example:"0"`
		Take int `query:"take" json:"take,omitempty" doc:"Page size (0 means the configured maximum)" example:"100"`
	}) (*TemplatesListResponse, error) {
		templates, total, err := hub.GetTemplates(ctx, input.Skip, input.Take)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve templates")
		}
		resp := &TemplatesListResponse{}
		resp.Body.Templates = make([]types.ContractTemplate, 0, len(templates))
		for _, t := range templates {
			resp.Body.Templates = append(resp.Body.Templates, *t)
		}
		resp.Body.Total = total
		return resp, nil
	})

	// Get a template
	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        basePath + "/templates/{id}",
		Summary:     "Get template details",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *TemplateIDInput) (*TemplateResponse, error) {
		template, err := hub.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retrieve template")
		}
		return &TemplateResponse{Body: *template}, nil
	})

	// Register a template around the staged binary
	huma.Register(api, huma.Operation{
		OperationID: "add-template",
		Method:      http.MethodPost,
		Path:        basePath + "/templates",
		Summary:     "Register a contract template",
		Description: "Register a template whose binary was previously staged through the upload grant. The staged binary is consumed and content-addressed by its hash.",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		Body types.TemplateDefinition
	}) (*TemplateResponse, error) {
		template, err := hub.AddTemplate(ctx, input.Body)
		if err != nil {
			return nil, mapServiceError(err, "Failed to register template")
		}
		return &TemplateResponse{Body: *template}, nil
	})

	// Block or unblock a template
	huma.Register(api, huma.Operation{
		OperationID: "block-template",
		Method:      http.MethodPost,
		Path:        basePath + "/templates/{id}/block",
		Summary:     "Block or unblock a template",
		Description: "Blocking a template deletes its binary, so deployments stay impossible even after an unblock.",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		TemplateIDInput
		Body TemplateModerationRequest
	}) (*Response[EmptyResponse], error) {
		if err := hub.BlockTemplate(ctx, input.ID, input.Body.Reason, input.Body.Value); err != nil {
			return nil, mapServiceError(err, "Failed to update template block flag")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Template block flag updated"}}, nil
	})

	// Retire or unretire a template
	huma.Register(api, huma.Operation{
		OperationID: "retire-template",
		Method:      http.MethodPost,
		Path:        basePath + "/templates/{id}/retire",
		Summary:     "Retire or unretire a template",
		Description: "Retired templates are hidden from new deployments; existing deployments are unaffected.",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		TemplateIDInput
		Body TemplateModerationRequest
	}) (*Response[EmptyResponse], error) {
		if err := hub.RetireTemplate(ctx, input.ID, input.Body.Reason, input.Body.Value); err != nil {
			return nil, mapServiceError(err, "Failed to update template retire flag")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Template retire flag updated"}}, nil
	})

	// Reserve the staging area
	huma.Register(api, huma.Operation{
		OperationID: "grant-binary-upload",
		Method:      http.MethodPost,
		Path:        basePath + "/templates/upload-grant",
		Summary:     "Reserve the binary staging area",
		Description: "Grant the caller exclusive rights to stage one binary of the given length. A new grant replaces any unfinished one.",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		Body UploadGrantRequest
	}) (*Response[EmptyResponse], error) {
		if err := hub.SetUploadGrant(ctx, input.Body.BinaryLength); err != nil {
			return nil, mapServiceError(err, "Failed to grant binary upload")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Upload grant reserved"}}, nil
	})

	// Append a chunk
	huma.Register(api, huma.Operation{
		OperationID: "upload-binary-chunk",
		Method:      http.MethodPost,
		Path:        basePath + "/templates/upload-chunk",
		Summary:     "Upload a binary chunk",
		Description: "Append a chunk to the staged binary. Chunks arrive in order; the total must match the granted length exactly.",
		Tags:        []string{"templates"},
	}, func(ctx context.Context, input *struct {
		Body UploadChunkRequest
	}) (*Response[EmptyResponse], error) {
		if err := hub.UploadBinaryChunk(ctx, input.Body.Chunk); err != nil {
			return nil, mapServiceError(err, "Failed to upload binary chunk")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Chunk accepted"}}, nil
	})
}
