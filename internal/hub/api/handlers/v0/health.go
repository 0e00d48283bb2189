package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/config"
)

// HealthBody reports service liveness
type HealthBody struct {
	Status  string `json:"status" doc:"Service status" example:"ok"`
	Version string `json:"version" doc:"Service version" example:"dev"`
}

// VersionBody reports build metadata
type VersionBody struct {
	Version   string `json:"version" doc:"Service version" example:"1.0.0"`
	GitCommit string `json:"gitCommit" doc:"Git commit the binary was built from" example:"a1b2c3d"`
	BuildTime string `json:"buildTime" doc:"Build timestamp" example:"2024-01-01T00:00:00Z"`
}

// RegisterHealthEndpoint registers the health check endpoint
func RegisterHealthEndpoint(api huma.API, basePath string, cfg *config.Config) {
	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        basePath + "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*Response[HealthBody], error) {
		return &Response[HealthBody]{Body: HealthBody{Status: "ok", Version: cfg.Version}}, nil
	})
}

// RegisterPingEndpoint registers a minimal liveness probe
func RegisterPingEndpoint(api huma.API, basePath string) {
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        basePath + "/ping",
		Summary:     "Ping",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*Response[EmptyResponse], error) {
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "pong"}}, nil
	})
}

// RegisterVersionEndpoint registers the build metadata endpoint
func RegisterVersionEndpoint(api huma.API, basePath string, versionInfo *VersionBody) {
	huma.Register(api, huma.Operation{
		OperationID: "version",
		Method:      http.MethodGet,
		Path:        basePath + "/version",
		Summary:     "Version",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*Response[VersionBody], error) {
		return &Response[VersionBody]{Body: *versionInfo}, nil
	})
}
