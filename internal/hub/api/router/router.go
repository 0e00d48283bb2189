// Package router contains API routing logic
package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	v0 "github.com/contracthub-dev/contracthub/internal/hub/api/handlers/v0"
	"github.com/contracthub-dev/contracthub/internal/hub/auth"
	"github.com/contracthub-dev/contracthub/internal/hub/config"
	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/internal/hub/telemetry"
)

// Middleware configuration options
type middlewareConfig struct {
	skipPaths map[string]bool
}

type MiddlewareOption func(*middlewareConfig)

// getRoutePath extracts the route pattern from the context
func getRoutePath(ctx huma.Context) string {
	if op := ctx.Operation().Path; op != "" {
		return ctx.Operation().Path
	}

	// Fallback to URL path (less ideal for metrics as it includes path parameters)
	return ctx.URL().Path
}

func MetricTelemetryMiddleware(metrics *telemetry.Metrics, options ...MiddlewareOption) func(huma.Context, func(huma.Context)) {
	config := &middlewareConfig{
		skipPaths: make(map[string]bool),
	}

	for _, opt := range options {
		opt(config)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		path := ctx.URL().Path

		// Skip instrumentation for specified paths
		// extract the last part of the path to match against skipPaths
		pathParts := strings.Split(path, "/")
		pathToMatch := "/" + pathParts[len(pathParts)-1]
		if config.skipPaths[pathToMatch] || config.skipPaths[path] {
			next(ctx)
			return
		}

		start := time.Now()
		method := ctx.Method()
		routePath := getRoutePath(ctx)

		next(ctx)

		duration := time.Since(start).Seconds()
		statusCode := ctx.Status()

		attrs := []attribute.KeyValue{
			attribute.String("method", method),
			attribute.String("path", routePath),
			attribute.Int("status_code", statusCode),
		}

		metrics.Requests.Add(ctx.Context(), 1, metric.WithAttributes(attrs...))

		if statusCode >= 400 {
			metrics.ErrorCount.Add(ctx.Context(), 1, metric.WithAttributes(attrs...))
		}

		metrics.RequestDuration.Record(ctx.Context(), duration, metric.WithAttributes(attrs...))
	}
}

// WithSkipPaths allows skipping instrumentation for specific paths
func WithSkipPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		for _, path := range paths {
			c.skipPaths[path] = true
		}
	}
}

// handle404 returns a helpful 404 error with suggestions for common mistakes
func handle404(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusNotFound)

	path := r.URL.Path
	detail := "Endpoint not found. See /docs for the API documentation."

	// Provide a suggestion for the common missing-version-prefix mistake
	if !strings.HasPrefix(path, "/v0/") {
		detail = fmt.Sprintf(
			"Endpoint not found. Did you mean '%s'? See /docs for the API documentation.",
			"/v0"+path,
		)
	}

	errorBody := map[string]any{
		"title":  "Not Found",
		"status": 404,
		"detail": detail,
	}

	jsonData, err := json.Marshal(errorBody)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, err = w.Write(jsonData)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// NewHumaAPI creates a new Huma API with all routes registered
// Note: authz is handled at the service layer, not at the API layer.
func NewHumaAPI(cfg *config.Config, hub service.HubService, mux *http.ServeMux, metrics *telemetry.Metrics, versionInfo *v0.VersionBody, jwtManager *auth.JWTManager, authnProvider auth.AuthnProvider) huma.API {
	humaConfig := huma.DefaultConfig("Contract Hub", "1.0.0")
	humaConfig.Info.Description = "Deployment hub for contract templates: registers versioned binaries, reserves owner funds, and drives each deployment through provisioning, certification, and hand-over."
	// Disable $schema property in responses: https://github.com/danielgtaylor/huma/issues/230
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	// Create a new API using humago adapter for standard library
	api := humago.New(mux, humaConfig)

	// Add authn middleware if configured
	if authnProvider != nil {
		api.UseMiddleware(auth.AuthnMiddleware(authnProvider))
	}

	// Add OpenAPI tag metadata with descriptions
	api.OpenAPI().Tags = []*huma.Tag{
		{
			Name:        "deployments",
			Description: "Operations for starting, processing, and inspecting contract deployments",
		},
		{
			Name:        "certificates",
			Description: "Certificate hand-over and validation for deployed instances",
		},
		{
			Name:        "templates",
			Description: "Contract template catalog and binary staging",
		},
		{
			Name:        "admin",
			Description: "Administrative operations for access rights, configuration, and the audit log (requires elevated permissions)",
		},
		{
			Name:        "auth",
			Description: "Authentication operations for obtaining hub API tokens",
		},
		{
			Name:        "system",
			Description: "Health, ping, and version endpoints for monitoring",
		},
	}

	// Add metrics middleware with options
	api.UseMiddleware(MetricTelemetryMiddleware(metrics,
		WithSkipPaths("/health", "/metrics", "/ping", "/docs"),
	))

	// Register all API routes for all versions
	RegisterRoutes(api, cfg, hub, versionInfo, jwtManager)

	// Add /metrics for Prometheus metrics using promhttp
	mux.Handle("/metrics", metrics.PrometheusHandler())

	// Redirect the root to the generated docs and handle 404 for everything else
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
			return
		}

		handle404(w, r)
	})
	return api
}
