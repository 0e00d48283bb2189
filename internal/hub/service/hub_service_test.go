package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub-dev/contracthub/internal/hub/auth"
	"github.com/contracthub-dev/contracthub/internal/hub/deployments"
	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/enviro/sim"
	"github.com/contracthub-dev/contracthub/internal/hub/store"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

type principalSession types.Principal

func (s principalSession) Caller() types.Principal { return types.Principal(s) }

func as(principal types.Principal) context.Context {
	return auth.SessionTo(context.Background(), principalSession(principal))
}

func system() context.Context {
	return auth.WithSystemContext(context.Background())
}

type fixture struct {
	service HubService
	store   *store.Store
	ledger  *sim.Ledger
	clock   *sim.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard)

	st, err := store.New(ctx, store.NewMemoryBackend(), logger)
	require.NoError(t, err)

	provisioner := sim.NewProvisioner("hub")
	credit := sim.NewCreditAuthority(types.ConversionRate{
		Kind:            types.RateFixed,
		CreditsPerToken: 30_000,
	}, provisioner)
	ledger := sim.NewLedger(10_000)
	clock := sim.NewClock(time.Now().UnixMilli())

	signer, err := certificate.NewSigner(strings.Repeat("ef", 32))
	require.NoError(t, err)

	env := &enviro.Environment{
		HubID:           "hub",
		Ledger:          ledger,
		CreditAuthority: credit,
		Provisioner:     provisioner,
		Certifier:       certificate.NewAuthority(signer),
		Clock:           clock,
		Rand:            enviro.CryptoRand{},
		Logger:          logger,
	}

	config := types.DefaultHubConfig()
	config.BinaryUploadChunkSize = 8
	config.ConvertStrategy = types.ConvertStrategy{Kind: types.ConvertTopUp, Authority: "cmc"}
	config.CreateStrategy = types.CreateStrategy{Kind: types.CreateOverCreditAuthority, Authority: "cmc"}
	config.FallbackAccount = "treasury"
	config.InstanceURLPatterns = []string{`^https://([^.]+)\.instances\.example\.com`}
	require.NoError(t, st.SetConfig(ctx, config))

	driver := deployments.NewDriver(st, env)
	scheduler := deployments.NewScheduler(driver, clock, logger)
	// Tests drive processing explicitly against the simulated clock, so the
	// wall-time retry timers stay disarmed.
	scheduler.Close()
	service := NewHubService(st, driver, scheduler, env)
	t.Cleanup(service.Close)

	return &fixture{service: service, store: st, ledger: ledger, clock: clock}
}

func (f *fixture) stageTemplate(t *testing.T, mutate func(*types.TemplateDefinition)) types.TemplateID {
	t.Helper()
	binary := []byte("contract binary image: twenty-nine")
	require.NoError(t, f.service.SetUploadGrant(system(), len(binary)))
	require.NoError(t, f.service.UploadBinaryChunk(system(), binary))

	definition := types.TemplateDefinition{
		Name:                "counter",
		CertificateDuration: 30 * 24 * int64(time.Hour/time.Millisecond),
		InstanceSettings:    types.InstanceSettings{InitialCredits: 1_000_000},
	}
	if mutate != nil {
		mutate(&definition)
	}
	template, err := f.service.AddTemplate(system(), definition)
	require.NoError(t, err)
	return template.ID
}

func (f *fixture) fund(owner types.Principal) {
	account := types.LedgerAccount{Owner: owner}
	f.ledger.SetBalance(account, 200_000_000)
	f.ledger.SetAllowance(account, owner, enviro.Allowance{Amount: 200_000_000})
}

func (f *fixture) deploy(t *testing.T, owner types.Principal, templateID types.TemplateID) *DeploymentInfo {
	t.Helper()
	f.fund(owner)
	info, err := f.service.DeployContract(as(owner), DeployArgs{TemplateID: templateID})
	require.NoError(t, err)
	if info.LockedUntil != nil && *info.LockedUntil > f.clock.Now() {
		f.clock.Set(*info.LockedUntil)
	}
	return info
}

// settle re-drives the deployment, jumping the simulated clock over lease
// delays, until processing pauses or finishes.
func (f *fixture) settle(t *testing.T, owner types.Principal, id types.DeploymentID) *DeploymentInfo {
	t.Helper()
	for i := 0; i < 500; i++ {
		info, err := f.service.ProcessDeployment(as(owner), id)
		require.NoError(t, err)
		if !info.NeedProcessing {
			return info
		}
		if info.LockedUntil != nil && *info.LockedUntil > f.clock.Now() {
			f.clock.Set(*info.LockedUntil)
		}
	}
	t.Fatal("deployment did not settle")
	return nil
}

func TestDeployContract(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)

	info := f.deploy(t, "alice", templateID)
	assert.Equal(t, types.Principal("alice"), info.Owner)
	assert.Equal(t, templateID, info.TemplateID)
	assert.NotZero(t, info.Amount)

	// The reserved amount covers the credit cost at the snapshot rate.
	assert.Equal(t, uint64(30_000), info.Expenses.ConversionRate.CreditsPerToken)

	info = f.settle(t, "alice", info.ID)
	assert.Equal(t, types.StateWaitingReceiveCertificate, info.State.Kind)
}

func TestDeployRejectsAnonymousCaller(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)

	_, err := f.service.DeployContract(context.Background(), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDeployChecksAvailabilityAndTemplate(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	f.fund("alice")

	_, err := f.service.DeployContract(as("alice"), DeployArgs{TemplateID: 99})
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	require.NoError(t, f.service.RetireTemplate(system(), templateID, "superseded", true))
	_, err = f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrTemplateUnavailable)
	require.NoError(t, f.service.RetireTemplate(system(), templateID, "", false))

	config, err := f.service.GetConfig(context.Background())
	require.NoError(t, err)
	config.IsDeploymentAvailable = false
	require.NoError(t, f.service.SetConfig(system(), config))

	_, err = f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrDeploymentUnavailable)
}

func TestBlockedTemplateCannotBeDeployedEvenAfterUnblock(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	f.fund("alice")

	require.NoError(t, f.service.BlockTemplate(system(), templateID, "malware", true))
	_, err := f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrTemplateUnavailable)

	// Unblocking does not restore the destroyed binary.
	require.NoError(t, f.service.BlockTemplate(system(), templateID, "", false))
	_, err = f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrTemplateUnavailable)
}

func TestDeployRejectsSecondActiveDeployment(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)

	f.deploy(t, "alice", templateID)
	_, err := f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrActiveDeploymentExists)
}

func TestDeployFundingChecks(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	account := types.LedgerAccount{Owner: "alice"}

	_, err := f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	f.ledger.SetBalance(account, 200_000_000)
	_, err = f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	soon := f.clock.Now() + 1_000
	f.ledger.SetAllowance(account, "alice", enviro.Allowance{Amount: 200_000_000, ExpiresAt: &soon})
	_, err = f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.ErrorIs(t, err, ErrAllowanceExpiresTooEarly)

	f.ledger.SetAllowance(account, "alice", enviro.Allowance{Amount: 200_000_000})
	_, err = f.service.DeployContract(as("alice"), DeployArgs{TemplateID: templateID})
	assert.NoError(t, err)
}

func TestActivationCode(t *testing.T) {
	f := newFixture(t)
	plainID := f.stageTemplate(t, nil)
	activatedID := f.stageTemplate(t, func(d *types.TemplateDefinition) {
		d.Name = "activated"
		d.ActivationRequired = true
	})

	plain := f.deploy(t, "alice", plainID)
	_, err := f.service.GetActivationCode(as("alice"), plain.ID)
	assert.ErrorIs(t, err, ErrNoActivationCode)

	activated := f.deploy(t, "bob", activatedID)
	code, err := f.service.GetActivationCode(as("bob"), activated.ID)
	require.NoError(t, err)
	assert.Len(t, code, 2*activationCodeBytes)

	_, err = f.service.GetActivationCode(as("mallory"), activated.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCancelDeployment(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	info := f.deploy(t, "alice", templateID)

	_, err := f.service.CancelDeployment(as("mallory"), info.ID, "not mine")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.service.CancelDeployment(as("alice"), info.ID, "changed my mind")
	require.NoError(t, err)

	final := f.settle(t, "alice", info.ID)
	require.True(t, final.State.Terminal())
	require.NotNil(t, final.State.Result)
	assert.Equal(t, types.ResultCancelled, final.State.Result.Kind)
	assert.Equal(t, "changed my mind", final.State.Result.Reason)

	// A finalized deployment cannot be canceled again.
	_, err = f.service.CancelDeployment(as("alice"), info.ID, "again")
	assert.ErrorIs(t, err, ErrDeploymentWrongState)
}

func TestCertificateLifecycle(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	info := f.deploy(t, "alice", templateID)

	// Certificate queries are owner-only and state-guarded.
	_, err := f.service.ObtainCertificate(as("alice"), info.ID)
	assert.ErrorIs(t, err, ErrDeploymentWrongState)

	waiting := f.settle(t, "alice", info.ID)
	require.Equal(t, types.StateWaitingReceiveCertificate, waiting.State.Kind)

	_, err = f.service.ObtainCertificate(as("mallory"), info.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	signed, err := f.service.ObtainCertificate(as("alice"), info.ID)
	require.NoError(t, err)
	assert.Equal(t, "hub", signed.Certificate.Hub)
	assert.Equal(t, "alice", signed.Certificate.Owner)

	// A tampered certificate is rejected.
	tampered := signed
	tampered.Certificate.Owner = "mallory"
	_, err = f.service.InitializeCertificate(as("alice"), info.ID, tampered)
	assert.ErrorIs(t, err, ErrCertificateInvalid)

	_, err = f.service.InitializeCertificate(as("alice"), info.ID, signed)
	require.NoError(t, err)

	final := f.settle(t, "alice", info.ID)
	require.True(t, final.State.Terminal())
	assert.Equal(t, types.ResultSuccess, final.State.Result.Kind)
	require.NotEmpty(t, final.Instance)

	// The installed instance serves a certificate that validates against
	// the canonical record, resolved from its public URL.
	url := "https://" + string(final.Instance) + ".instances.example.com/api"
	canonical, err := f.service.ValidateCertificate(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, signed.Certificate, canonical)

	_, err = f.service.ValidateCertificate(context.Background(), "https://elsewhere.example.org")
	assert.ErrorIs(t, err, ErrUnknownInstanceURL)
}

func TestRetryGenerateCertificate(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	info := f.deploy(t, "alice", templateID)
	f.settle(t, "alice", info.ID)

	updated, err := f.service.RetryGenerateCertificate(as("alice"), info.ID)
	require.NoError(t, err)

	// Regeneration runs and parks the saga back at the wait state.
	final := f.settle(t, "alice", updated.ID)
	assert.Equal(t, types.StateWaitingReceiveCertificate, final.State.Kind)
}

func TestDeploymentQueries(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)

	first := f.deploy(t, "alice", templateID)
	f.settle(t, "alice", first.ID)
	second := f.deploy(t, "bob", templateID)

	got, err := f.service.GetDeployment(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = f.service.GetDeployment(context.Background(), 99)
	assert.ErrorIs(t, err, ErrDeploymentNotFound)

	active, err := f.service.GetActiveDeployment(as("bob"))
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	owner := types.Principal("alice")
	page, err := f.service.GetDeployments(context.Background(), DeploymentsQuery{Owner: &owner})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	all, err := f.service.GetDeployments(context.Background(), DeploymentsQuery{Descending: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	events, err := f.service.GetDeploymentEvents(context.Background(), first.ID, 0, 0, false)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventDeploymentStarted, events[0].Event.Kind)
}

func TestAccessRights(t *testing.T) {
	f := newFixture(t)

	// Empty ACL admits everyone: ops can claim control.
	ops := []types.AccessRight{{Caller: "ops", Description: "operations"}}
	require.NoError(t, f.service.SetAccessRights(as("ops"), ops))

	// Now non-listed principals are denied.
	assert.ErrorIs(t, f.service.SetUploadGrant(as("mallory"), 10), ErrPermissionDenied)
	assert.ErrorIs(t, f.service.SetConfig(as("mallory"), types.DefaultHubConfig()), ErrPermissionDenied)

	// Dropping your own manage-access-rights entry is rejected.
	err := f.service.SetAccessRights(as("ops"), []types.AccessRight{{Caller: "other"}})
	assert.ErrorIs(t, err, ErrLoseControl)

	// Scoped permissions are honored.
	templatePerms := []types.AccessPermission{types.PermissionManageTemplates}
	require.NoError(t, f.service.SetAccessRights(as("ops"), []types.AccessRight{
		{Caller: "ops"},
		{Caller: "publisher", Permissions: &templatePerms},
	}))
	assert.NoError(t, f.service.SetUploadGrant(as("publisher"), 10))
	assert.ErrorIs(t, f.service.SetConfig(as("publisher"), types.DefaultHubConfig()), ErrPermissionDenied)

	rights, err := f.service.GetAccessRights(context.Background())
	require.NoError(t, err)
	assert.Len(t, rights, 2)
}

func TestSetConfigValidation(t *testing.T) {
	f := newFixture(t)

	config := types.DefaultHubConfig()
	config.ExpensesBufferPermyriad = 20_000
	assert.ErrorIs(t, f.service.SetConfig(system(), config), ErrInvalidConfig)

	config = types.DefaultHubConfig()
	config.ExpensesDecimalPlaces = 9
	assert.ErrorIs(t, f.service.SetConfig(system(), config), ErrInvalidConfig)

	config = types.DefaultHubConfig()
	config.BinaryUploadChunkSize = 0
	assert.ErrorIs(t, f.service.SetConfig(system(), config), ErrInvalidConfig)
}

func TestAddTemplateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.AddTemplate(system(), types.TemplateDefinition{})
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = f.service.AddTemplate(system(), types.TemplateDefinition{
		Name:                strings.Repeat("x", 500),
		CertificateDuration: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	// A valid definition without a staged binary is still rejected.
	_, err = f.service.AddTemplate(system(), types.TemplateDefinition{
		Name:                "counter",
		CertificateDuration: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestHubEventsAudit(t *testing.T) {
	f := newFixture(t)
	templateID := f.stageTemplate(t, nil)
	require.NoError(t, f.service.BlockTemplate(system(), templateID, "malware", true))

	events, total, err := f.service.GetHubEvents(context.Background(), 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, events, 2)
	assert.Equal(t, types.HubEventTemplateBlocked, events[0].Kind)
	assert.Equal(t, types.HubEventTemplateAdded, events[1].Kind)
	require.NotNil(t, events[0].TemplateID)
	assert.Equal(t, templateID, *events[0].TemplateID)
}
