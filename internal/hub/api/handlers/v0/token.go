package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/auth"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// MintTokenRequest names the principal to mint a token for
type MintTokenRequest struct {
	Principal string `json:"principal" doc:"Principal the token authenticates as" example:"alice"`
}

// RegisterTokenEndpoint registers the development-mode token minting endpoint.
// Only wired when token minting is enabled in the configuration; production
// deployments are expected to mint tokens out of band.
func RegisterTokenEndpoint(api huma.API, basePath string, manager *auth.JWTManager) {
	huma.Register(api, huma.Operation{
		OperationID: "mint-token",
		Method:      http.MethodPost,
		Path:        basePath + "/auth/token",
		Summary:     "Mint an API token",
		Description: "Mint a short-lived API token for a principal. Development convenience, disabled by default.",
		Tags:        []string{"auth"},
	}, func(ctx context.Context, input *struct {
		Body MintTokenRequest
	}) (*Response[auth.TokenResponse], error) {
		token, err := manager.GenerateTokenResponse(ctx, types.Principal(input.Body.Principal))
		if err != nil {
			return nil, huma.Error400BadRequest("Failed to mint token", err)
		}
		return &Response[auth.TokenResponse]{Body: *token}, nil
	})
}
