package deployments

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/enviro/sim"
	"github.com/contracthub-dev/contracthub/internal/hub/store"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

const (
	testFee    = types.Tokens(10_000)
	testAmount = types.Tokens(105_000_000)
)

type harness struct {
	store       *store.Store
	ledger      *sim.Ledger
	credit      *sim.CreditAuthority
	provisioner *sim.Provisioner
	authority   *certificate.Authority
	clock       *sim.Clock
	driver      *Driver
	templateID  types.TemplateID
	binary      []byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard)

	s, err := store.New(ctx, store.NewMemoryBackend(), logger)
	require.NoError(t, err)

	provisioner := sim.NewProvisioner("hub")
	credit := sim.NewCreditAuthority(types.ConversionRate{
		Kind:            types.RateFixed,
		CreditsPerToken: 30_000,
	}, provisioner)
	ledger := sim.NewLedger(testFee)
	// Certificate tokens carry real expirations, so the clock starts at the
	// actual wall time instead of zero.
	clock := sim.NewClock(time.Now().UnixMilli())

	signer, err := certificate.NewSigner(strings.Repeat("ab", 32))
	require.NoError(t, err)
	authority := certificate.NewAuthority(signer)

	env := &enviro.Environment{
		HubID:           "hub",
		Ledger:          ledger,
		CreditAuthority: credit,
		Provisioner:     provisioner,
		Certifier:       authority,
		Clock:           clock,
		Rand:            enviro.CryptoRand{},
		Logger:          logger,
	}

	config := types.DefaultHubConfig()
	config.BinaryUploadChunkSize = 8
	config.ConvertStrategy = types.ConvertStrategy{Kind: types.ConvertTopUp, Authority: "cmc"}
	config.CreateStrategy = types.CreateStrategy{Kind: types.CreateOverCreditAuthority, Authority: "cmc"}
	config.FallbackAccount = "treasury"
	require.NoError(t, s.SetConfig(ctx, config))

	binary := []byte("contract binary image: twenty-nine")
	s.GrantUpload("operator", len(binary))
	require.NoError(t, s.AppendBinaryChunk("operator", binary))
	hash, err := s.CommitBinary(ctx, "operator")
	require.NoError(t, err)

	templateID, err := s.AddTemplate(ctx, "operator", clock.Now(), types.TemplateDefinition{
		Name:                "counter",
		BinaryHash:          hash,
		CertificateDuration: 30 * 24 * int64(time.Hour/time.Millisecond),
		InstanceSettings: types.InstanceSettings{
			InitialCredits: 1_000_000,
		},
	})
	require.NoError(t, err)

	return &harness{
		store:       s,
		ledger:      ledger,
		credit:      credit,
		provisioner: provisioner,
		authority:   authority,
		clock:       clock,
		driver:      NewDriver(s, env),
		templateID:  templateID,
		binary:      binary,
	}
}

func (h *harness) createDeployment(t *testing.T, owner types.Principal) types.DeploymentID {
	t.Helper()
	account := types.LedgerAccount{Owner: owner}
	h.ledger.SetBalance(account, 200_000_000)
	h.ledger.SetAllowance(account, owner, enviro.Allowance{Amount: 200_000_000})

	id, err := h.store.CreateDeployment(context.Background(), store.NewDeployment{
		Owner:      owner,
		Created:    h.clock.Now(),
		TemplateID: h.templateID,
		Expenses: types.ExpenseBreakdown{
			InstanceInitialCredits: 1_000_000,
		},
		Amount:          testAmount,
		ApprovedAccount: account,
	})
	require.NoError(t, err)
	return id
}

// drive re-invokes the processor, jumping the clock to each returned retry
// moment, until no further work is pending.
func (h *harness) drive(t *testing.T, id types.DeploymentID) {
	t.Helper()
	for i := 0; i < 500; i++ {
		next := h.driver.Process(context.Background(), id)
		if next == nil {
			return
		}
		if *next > h.clock.Now() {
			h.clock.Set(*next)
		}
	}
	t.Fatal("deployment did not settle")
}

func (h *harness) state(t *testing.T, id types.DeploymentID) types.DeploymentState {
	t.Helper()
	record, err := h.store.Deployment(id)
	require.NoError(t, err)
	return record.State
}

// handOverCertificate plays the instance's part: fetch the published signed
// certificate and report it back to the hub.
func (h *harness) handOverCertificate(t *testing.T, id types.DeploymentID) {
	t.Helper()
	record, err := h.store.Deployment(id)
	require.NoError(t, err)
	template, err := h.store.Template(record.TemplateID)
	require.NoError(t, err)

	signed, err := h.authority.Obtain(BuildCertificate("hub", record, template))
	require.NoError(t, err)

	require.NoError(t, h.driver.UpdateWithLock(context.Background(), id, types.ProcessingEvent{
		Kind:        types.EventCertificateReceived,
		Certificate: &signed,
	}))
}

func (h *harness) deployToCompletion(t *testing.T, owner types.Principal) types.DeploymentID {
	t.Helper()
	id := h.createDeployment(t, owner)

	h.drive(t, id)
	require.Equal(t, types.StateWaitingReceiveCertificate, h.state(t, id).Kind)

	h.handOverCertificate(t, id)
	h.drive(t, id)

	// Self-control hand-over stops the loop; finalization runs on the next
	// processing request.
	require.Equal(t, types.FinalizeStart, h.state(t, id).SubState)
	h.drive(t, id)
	return id
}

func TestHappyPathDeployment(t *testing.T) {
	h := newHarness(t)
	id := h.deployToCompletion(t, "alice")

	state := h.state(t, id)
	require.True(t, state.Terminal())
	require.NotNil(t, state.Result)
	assert.Equal(t, types.ResultSuccess, state.Result.Kind)

	// The transit subaccount is swept empty.
	assert.Equal(t, types.Tokens(0), h.ledger.SubaccountBalanceNow(enviro.TransitSubaccount(id)))

	// The template counter moved by exactly one.
	template, err := h.store.Template(h.templateID)
	require.NoError(t, err)
	assert.Equal(t, 1, template.DeploymentsCount)

	// The instance ended up self-controlled with the binary installed.
	record, err := h.store.Deployment(id)
	require.NoError(t, err)
	require.NotEmpty(t, record.Instance)
	info, err := h.provisioner.InstanceInfo(context.Background(), record.Instance)
	require.NoError(t, err)
	assert.Equal(t, []types.Principal{types.Principal(record.Instance)}, info.Controllers)

	assert.False(t, h.driver.NeedProcessing(record.State))
	assert.Nil(t, record.ProcessingError)
}

func TestOwnerFundsTransferIsIdempotent(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	// A previous attempt already moved the funds; only the transit balance
	// proves it. The handler must not charge the owner again.
	h.ledger.SetBalance(types.LedgerAccount{Owner: "alice"}, 42)
	transit := enviro.TransitSubaccount(id)
	h.ledger.Credit(transit, testAmount-testFee)

	h.drive(t, id)
	require.Equal(t, types.StateWaitingReceiveCertificate, h.state(t, id).Kind)

	balance, err := h.ledger.AccountBalance(context.Background(), types.LedgerAccount{Owner: "alice"})
	require.NoError(t, err)
	assert.Equal(t, types.Tokens(42), balance)
}

func TestTopUpRefusalFallsBackToExternalConverting(t *testing.T) {
	h := newHarness(t)
	h.credit.RefuseTopUp = &enviro.TopUpRefusedError{
		Kind:   enviro.RefusalTransactionTooOld,
		Reason: "transaction too old",
	}

	id := h.deployToCompletion(t, "alice")

	state := h.state(t, id)
	require.True(t, state.Terminal())
	assert.Equal(t, types.ResultSuccess, state.Result.Kind)

	// The refusal shows up as a forward-progressing event, not an error.
	kinds := eventKinds(h.store, id)
	assert.Contains(t, kinds, types.EventUseExternalConverting)
	assert.NotContains(t, kinds, types.EventTopUpAuthorityNotified)
}

func TestCreationRefundFallsBackToProvisioner(t *testing.T) {
	h := newHarness(t)
	h.credit.RefundCreation = &enviro.CreationRefundedError{
		RefundedCredits: 1_000_000,
		Reason:          "subnet full",
	}

	id := h.deployToCompletion(t, "alice")

	require.True(t, h.state(t, id).Terminal())
	kinds := eventKinds(h.store, id)
	assert.Contains(t, kinds, types.EventUseProvisionerCreation)
	assert.Contains(t, kinds, types.EventInstanceOverProvisonerMade)
}

func TestSkipStrategyUsesExternalConverting(t *testing.T) {
	h := newHarness(t)
	config := h.store.Config()
	config.ConvertStrategy = types.ConvertStrategy{Kind: types.ConvertSkip}
	require.NoError(t, h.store.SetConfig(context.Background(), config))

	id := h.createDeployment(t, "alice")
	h.drive(t, id)

	kinds := eventKinds(h.store, id)
	assert.Contains(t, kinds, types.EventUseExternalConverting)
	assert.NotContains(t, kinds, types.EventTopUpFundsTransferred)
}

func TestHandlerErrorIsRecordedAndRetried(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	// Step past the bookkeeping state so the next handler hits the ledger.
	next := h.driver.Process(context.Background(), id)
	require.NotNil(t, next)
	h.clock.Set(*next)
	require.Equal(t, types.StateTransferOwnerFundsToTransit, h.state(t, id).Kind)

	h.ledger.FailTransfers = true
	next = h.driver.Process(context.Background(), id)
	require.NotNil(t, next)
	assert.Equal(t, h.clock.Now()+delayAfterError, *next)

	record, err := h.store.Deployment(id)
	require.NoError(t, err)
	require.NotNil(t, record.ProcessingError)
	assert.Contains(t, record.ProcessingError.Text, "ledger unavailable")

	// Once the ledger recovers the retry clears the error and proceeds.
	h.ledger.FailTransfers = false
	h.clock.Set(*next)
	h.drive(t, id)

	record, err = h.store.Deployment(id)
	require.NoError(t, err)
	assert.Nil(t, record.ProcessingError)
	assert.Equal(t, types.StateWaitingReceiveCertificate, record.State.Kind)
}

func TestChunkSizeDriftRestartsUpload(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	h.drive(t, id)
	h.handOverCertificate(t, id)

	// Step until the first chunk is recorded, then change the chunk size.
	for h.state(t, id).Kind != types.StateUploadBinary || len(h.state(t, id).UploadedHashes) == 0 {
		next := h.driver.Process(context.Background(), id)
		require.NotNil(t, next)
		h.clock.Set(*next)
	}

	config := h.store.Config()
	config.BinaryUploadChunkSize = 16
	require.NoError(t, h.store.SetConfig(context.Background(), config))

	h.drive(t, id)

	kinds := eventKinds(h.store, id)
	assert.Contains(t, kinds, types.EventReUploadBinary)

	// The upload still converges with the new chunking.
	h.drive(t, id)
	require.True(t, h.state(t, id).Terminal())
}

func TestCancellationSweepsTransitFunds(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	// Stop after the owner funds landed on the transit subaccount.
	for h.state(t, id).Kind != types.StateTransferTopUpFunds {
		next := h.driver.Process(context.Background(), id)
		require.NotNil(t, next)
		h.clock.Set(*next)
	}

	transit := enviro.TransitSubaccount(id)
	require.NotZero(t, h.ledger.SubaccountBalanceNow(transit))

	require.NoError(t, h.driver.UpdateWithLock(context.Background(), id, types.ProcessingEvent{
		Kind:   types.EventDeploymentCanceled,
		Reason: "user request",
	}))

	h.drive(t, id)

	state := h.state(t, id)
	require.True(t, state.Terminal())
	require.NotNil(t, state.Result)
	assert.Equal(t, types.ResultCancelled, state.Result.Kind)
	assert.Equal(t, "user request", state.Result.Reason)

	// The remaining transit funds went to the fallback account.
	assert.Equal(t, types.Tokens(0), h.ledger.SubaccountBalanceNow(transit))
	fallback, err := h.ledger.AccountBalance(context.Background(), types.LedgerAccount{Owner: "treasury"})
	require.NoError(t, err)
	assert.NotZero(t, fallback)
}

func TestProcessContentionReportsWinnerExpiration(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	lock, err := h.store.LockDeployment(context.Background(), h.clock.Now(), id, 600_000)
	require.NoError(t, err)

	next := h.driver.Process(context.Background(), id)
	require.NotNil(t, next)
	assert.Equal(t, lock.Expiration, *next)

	record, err := h.store.Deployment(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateStartDeployment, record.State.Kind)
}

func TestSelfControlRaceIsTolerated(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	h.drive(t, id)
	h.handOverCertificate(t, id)

	// SetController fails once but the change actually lands.
	h.provisioner.FailSetController = true
	h.provisioner.ApplyControllerAnyway = true

	h.drive(t, id)
	require.Equal(t, types.FinalizeStart, h.state(t, id).SubState)
	h.drive(t, id)
	require.True(t, h.state(t, id).Terminal())
}

func TestDescribeDeployment(t *testing.T) {
	h := newHarness(t)
	id := h.createDeployment(t, "alice")

	record, err := h.store.Deployment(id)
	require.NoError(t, err)
	info := h.driver.DescribeDeployment(record)
	assert.True(t, info.NeedProcessing)
	assert.Nil(t, info.LockedUntil)

	lock, err := h.store.LockDeployment(context.Background(), h.clock.Now(), id, 600_000)
	require.NoError(t, err)
	record, err = h.store.Deployment(id)
	require.NoError(t, err)
	info = h.driver.DescribeDeployment(record)
	require.NotNil(t, info.LockedUntil)
	assert.Equal(t, lock.Expiration, *info.LockedUntil)
}

func TestFindActiveDeployment(t *testing.T) {
	h := newHarness(t)

	_, ok := h.driver.FindActiveDeployment("alice")
	assert.False(t, ok)

	done := h.deployToCompletion(t, "alice")
	require.True(t, h.state(t, done).Terminal())
	_, ok = h.driver.FindActiveDeployment("alice")
	assert.False(t, ok)

	active := h.createDeployment(t, "alice")
	record, ok := h.driver.FindActiveDeployment("alice")
	require.True(t, ok)
	assert.Equal(t, active, record.ID)
}

func eventKinds(s *store.Store, id types.DeploymentID) []types.EventKind {
	var kinds []types.EventKind
	s.IterateEvents(id, false, func(eventID types.DeploymentEventID) bool {
		event, err := s.Event(eventID)
		if err == nil {
			kinds = append(kinds, event.Event.Kind)
		}
		return true
	})
	return kinds
}
