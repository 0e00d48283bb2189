// Package router contains API routing logic
package router

import (
	"github.com/danielgtaylor/huma/v2"

	v0 "github.com/contracthub-dev/contracthub/internal/hub/api/handlers/v0"
	"github.com/contracthub-dev/contracthub/internal/hub/auth"
	"github.com/contracthub-dev/contracthub/internal/hub/config"
	"github.com/contracthub-dev/contracthub/internal/hub/service"
)

// RegisterRoutes registers all API routes for all versions
// This is the single entry point for all route registration
func RegisterRoutes(
	api huma.API,
	cfg *config.Config,
	hub service.HubService,
	versionInfo *v0.VersionBody,
	jwtManager *auth.JWTManager,
) {
	registerPublicRoutes(api, "/v0", cfg, hub, versionInfo, jwtManager)
}

// registerPublicRoutes registers API routes for a version
func registerPublicRoutes(
	api huma.API,
	pathPrefix string,
	cfg *config.Config,
	hub service.HubService,
	versionInfo *v0.VersionBody,
	jwtManager *auth.JWTManager,
) {
	registerCommonEndpoints(api, pathPrefix, cfg, versionInfo)
	v0.RegisterTemplatesEndpoints(api, pathPrefix, hub)
	v0.RegisterDeploymentsEndpoints(api, pathPrefix, hub)
	v0.RegisterCertificatesEndpoints(api, pathPrefix, hub)
	v0.RegisterAdminEndpoints(api, pathPrefix, hub)

	if cfg.EnableTokenMinting && jwtManager != nil {
		v0.RegisterTokenEndpoint(api, pathPrefix, jwtManager)
	}
}

// registerCommonEndpoints registers endpoints shared by every version prefix
func registerCommonEndpoints(
	api huma.API,
	pathPrefix string,
	cfg *config.Config,
	versionInfo *v0.VersionBody,
) {
	v0.RegisterHealthEndpoint(api, pathPrefix, cfg)
	v0.RegisterPingEndpoint(api, pathPrefix)
	v0.RegisterVersionEndpoint(api, pathPrefix, versionInfo)
}
