// Package enviro defines the capability interfaces the orchestrator consumes
// and the environment bundle injected through every operation. Concrete
// implementations talk to the real ledger and provisioning services; the sim
// sub-package provides in-process ones for development and tests.
package enviro

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/charmbracelet/log"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

// Allowance is a delegated spending approval on the funding ledger.
type Allowance struct {
	Amount    types.Tokens
	ExpiresAt *int64
}

// TransferFromArgs describes a delegated allowance transfer.
type TransferFromArgs struct {
	Spender types.Principal
	From    types.LedgerAccount
	To      types.LedgerAccount
	Amount  types.Tokens
	Fee     types.Tokens
	Memo    uint64
}

// Ledger is the funding-token ledger: balances, fees, transfers and
// delegated allowances.
type Ledger interface {
	Fee(ctx context.Context) (types.Tokens, error)
	AccountBalance(ctx context.Context, account types.LedgerAccount) (types.Tokens, error)
	SubaccountBalance(ctx context.Context, subaccount string) (types.Tokens, error)
	// TransferFrom moves approved funds via a delegated allowance and
	// returns the ledger transfer reference.
	TransferFrom(ctx context.Context, args TransferFromArgs) (uint64, error)
	// Transfer moves funds out of one of the hub's own subaccounts.
	Transfer(ctx context.Context, fromSubaccount string, to types.LedgerAccount, amount, fee types.Tokens, memo uint64) (uint64, error)
	Allowance(ctx context.Context, account types.LedgerAccount, spender types.Principal) (Allowance, error)
}

// CreditAuthority converts transferred funding tokens into compute credits
// and can create instances directly from a credit balance.
type CreditAuthority interface {
	ConversionRate(ctx context.Context) (types.ConversionRate, error)
	// NotifyTopUp reports a ledger transfer to the authority. Refusals are
	// returned as *TopUpRefusedError values; anything else is transient.
	NotifyTopUp(ctx context.Context, authority types.Principal, transferRef uint64) (types.Credits, error)
	// CreateInstance provisions an instance charging the hub's credit
	// balance. Refunds are returned as *CreationRefundedError values.
	CreateInstance(ctx context.Context, authority types.Principal, settings types.InstanceSettings, placementHint string) (types.InstanceID, error)
}

// InstanceInfo is the provisioner's view of a running instance.
type InstanceInfo struct {
	Controllers []types.Principal
	ModuleHash  string
}

// InstallArgs describes a chunked binary installation.
type InstallArgs struct {
	Instance    types.InstanceID
	ChunkHashes []string
	BinaryHash  string
	Reinstall   bool
	// Certificate is handed to the instance as its init argument.
	Certificate        certificate.Signed
	ActivationCodeHash string
}

// Provisioner is the compute-provisioning authority.
type Provisioner interface {
	CreateInstance(ctx context.Context, settings types.InstanceSettings, credits types.Credits) (types.InstanceID, error)
	ClearChunkStore(ctx context.Context, instance types.InstanceID) error
	UploadChunk(ctx context.Context, instance types.InstanceID, chunk []byte) (string, error)
	StoredChunks(ctx context.Context, instance types.InstanceID) ([]string, error)
	InstallChunked(ctx context.Context, args InstallArgs) error
	SetController(ctx context.Context, instance types.InstanceID, controller types.Principal) error
	InstanceInfo(ctx context.Context, instance types.InstanceID) (InstanceInfo, error)
	// FetchCertificate asks a running instance for the certificate it was
	// installed with.
	FetchCertificate(ctx context.Context, instance types.InstanceID) (certificate.Signed, error)
}

// Certifier signs canonical certificates and publishes the commitments so
// callers can fetch the signed form out-of-band.
type Certifier interface {
	Publish(cert certificate.Certificate) error
	Obtain(cert certificate.Certificate) (certificate.Signed, error)
	Verify(signed certificate.Signed) error
}

// Clock supplies the current time in unix milliseconds.
type Clock interface {
	Now() int64
}

// Rand supplies cryptographic randomness for activation codes.
type Rand interface {
	Bytes(n int) ([]byte, error)
}

// Environment bundles every capability a handler may touch. It is built once
// at the composition root and passed by reference everywhere.
type Environment struct {
	HubID           types.Principal
	Ledger          Ledger
	CreditAuthority CreditAuthority
	Provisioner     Provisioner
	Certifier       Certifier
	Clock           Clock
	Rand            Rand
	Logger          *log.Logger
}

// TransitSubaccount derives the per-deployment transit holding subaccount.
func TransitSubaccount(id types.DeploymentID) string {
	h := sha256.New()
	h.Write([]byte{0x0c})
	h.Write([]byte("deployment_transit"))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}
