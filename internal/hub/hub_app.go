// Package hub wires the contract hub together: store, capability
// environment, deployment driver, service, and HTTP API.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/contracthub-dev/contracthub/internal/hub/api"
	v0 "github.com/contracthub-dev/contracthub/internal/hub/api/handlers/v0"
	"github.com/contracthub-dev/contracthub/internal/hub/auth"
	"github.com/contracthub-dev/contracthub/internal/hub/config"
	"github.com/contracthub-dev/contracthub/internal/hub/deployments"
	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/enviro/sim"
	"github.com/contracthub-dev/contracthub/internal/hub/seed"
	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/internal/hub/store"
	"github.com/contracthub-dev/contracthub/internal/hub/telemetry"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/internal/version"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

// App runs the hub API server until the process receives SIGINT or SIGTERM.
func App(_ context.Context) error {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "hub",
	})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	// Context with timeout for the PostgreSQL connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var backend store.Backend
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory backend, state will not survive a restart")
		backend = store.NewMemoryBackend()
	} else {
		pg, err := store.NewPostgresBackend(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		backend = pg
	}

	st, err := store.New(ctx, backend, logger)
	if err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWTPrivateKey, "contract-hub")
	if err != nil {
		return fmt.Errorf("failed to build JWT manager: %w", err)
	}

	signer, err := certificate.NewSigner(cfg.CertificateSigningKey)
	if err != nil {
		return fmt.Errorf("failed to build certificate signer: %w", err)
	}

	// Capability backends. The simulated ledger, credit authority, and
	// provisioner stand in for the external services in local mode.
	hubID := types.Principal(cfg.HubID)
	provisioner := sim.NewProvisioner(hubID)
	env := &enviro.Environment{
		HubID:  hubID,
		Ledger: sim.NewLedger(cfg.SimLedgerFee),
		CreditAuthority: sim.NewCreditAuthority(types.ConversionRate{
			Kind:            types.RateFixed,
			CreditsPerToken: cfg.SimCreditsPerTok,
		}, provisioner),
		Provisioner: provisioner,
		Certifier:   certificate.NewAuthority(signer),
		Clock:       enviro.SystemClock{},
		Rand:        enviro.CryptoRand{},
		Logger:      logger,
	}

	driver := deployments.NewDriver(st, env)
	scheduler := deployments.NewScheduler(driver, env.Clock, logger)
	hubService := service.NewHubService(st, driver, scheduler, env)
	defer hubService.Close()

	if cfg.SeedFrom != "" {
		logger.Info("importing seed data", "path", cfg.SeedFrom)
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Minute)
		sctx = auth.WithSystemContext(sctx)
		if err := seed.ImportFromPath(sctx, hubService, cfg.SeedFrom); err != nil {
			logger.Error("failed to import seed data", "error", err)
		}
		scancel()
	}

	if cfg.ResumeOnStartup {
		logger.Info("resuming interrupted deployments")
		hubService.ResumeProcessing()
	}

	logger.Info("starting contract hub", "version", version.Version, "commit", version.GitCommit)

	versionInfo := &v0.VersionBody{
		Version:   version.Version,
		GitCommit: version.GitCommit,
		BuildTime: version.BuildDate,
	}

	shutdownTelemetry, metrics, err := telemetry.InitMetrics(cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %v", err)
	}

	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "error", err)
		}
	}()

	server := api.NewServer(cfg, hubService, metrics, versionInfo, jwtManager, jwtManager)

	// Start the server in a goroutine so it doesn't block signal handling
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)

	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()

	if err := server.Shutdown(sctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exiting")
	return nil
}
