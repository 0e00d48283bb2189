// Package config loads the process configuration from the environment.
// Runtime policy (chunk sizes, strategies, limits) lives in the store as
// HubConfig and is mutable through the API; this package only covers what
// the process needs before it can serve.
package config

import (
	"fmt"
	"log"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
// See .env.example for more documentation.
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	Version       string `env:"VERSION" envDefault:"dev"`
	Verbose       bool   `env:"VERBOSE" envDefault:"false"`

	// Empty DatabaseURL selects the in-memory backend. State then lives for
	// the lifetime of the process only.
	DatabaseURL string `env:"DATABASE_URL" envDefault:""`

	// HubID is the principal under which the hub holds transit subaccounts.
	HubID string `env:"HUB_ID" envDefault:"contract-hub"`

	// JWTPrivateKey is the hex-encoded Ed25519 seed for API tokens.
	JWTPrivateKey string `env:"JWT_PRIVATE_KEY" envDefault:""`

	// CertificateSigningKey is the hex-encoded Ed25519 seed for deployment
	// certificates. It is a separate key so API token rotation does not
	// invalidate issued certificates.
	CertificateSigningKey string `env:"CERTIFICATE_SIGNING_KEY" envDefault:""`

	// EnableTokenMinting exposes the local-mode endpoint that issues an API
	// token for any named principal. Never enable it outside development.
	EnableTokenMinting bool `env:"ENABLE_TOKEN_MINTING" envDefault:"false"`

	// SeedFrom points at a YAML file with initial templates, access rights
	// and policy, applied on startup when the store is empty.
	SeedFrom string `env:"SEED_FROM" envDefault:""`

	// ResumeOnStartup re-schedules processing for deployments that were
	// mid-saga when the previous process stopped.
	ResumeOnStartup bool `env:"RESUME_ON_STARTUP" envDefault:"true"`

	// Simulated capability backends for local mode.
	SimLedgerFee     uint64 `env:"SIM_LEDGER_FEE" envDefault:"10000"`
	SimCreditsPerTok uint64 `env:"SIM_CREDITS_PER_TOKEN" envDefault:"30000"`
}

// NewConfig creates a new configuration with default values.
func NewConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}
	var cfg Config
	err = env.ParseWithOptions(&cfg, env.Options{
		Prefix: "CONTRACT_HUB_",
	})
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return &cfg
}

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	if c.JWTPrivateKey == "" {
		return fmt.Errorf("CONTRACT_HUB_JWT_PRIVATE_KEY is required")
	}
	if c.CertificateSigningKey == "" {
		return fmt.Errorf("CONTRACT_HUB_CERTIFICATE_SIGNING_KEY is required")
	}
	if c.HubID == "" {
		return fmt.Errorf("CONTRACT_HUB_HUB_ID must not be empty")
	}
	return nil
}
