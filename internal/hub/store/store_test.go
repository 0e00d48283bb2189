package store

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

var certFixture = certificate.Signed{
	Certificate: certificate.Certificate{
		Hub:        "hub",
		Owner:      "alice",
		Instance:   "inst-1",
		BinaryHash: "abc",
		Expiration: 9_000_000,
	},
	Token: "signed-token",
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), NewMemoryBackend(), log.New(io.Discard))
	require.NoError(t, err)
	return s
}

func createDeployment(t *testing.T, s *Store, owner types.Principal, template types.TemplateID) types.DeploymentID {
	t.Helper()
	id, err := s.CreateDeployment(context.Background(), NewDeployment{
		Owner:      owner,
		Created:    1000,
		TemplateID: template,
		Amount:     105_000_000,
		ApprovedAccount: types.LedgerAccount{
			Owner: owner,
		},
	})
	require.NoError(t, err)
	return id
}

func TestCreateDeploymentAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	first := createDeployment(t, s, "alice", 0)
	second := createDeployment(t, s, "bob", 0)

	assert.Equal(t, types.DeploymentID(0), first)
	assert.Equal(t, types.DeploymentID(1), second)
	assert.Equal(t, uint64(2), s.DeploymentsCount())

	record, err := s.Deployment(first)
	require.NoError(t, err)
	assert.Equal(t, types.Principal("alice"), record.Owner)
	assert.Equal(t, types.StateStartDeployment, record.State.Kind)
	assert.Nil(t, record.Lock)
}

func TestLockDeployment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lock.LockID)
	assert.Equal(t, int64(601_000), lock.Expiration)

	// A second acquisition before expiration reports the holder's
	// expiration.
	_, err = s.LockDeployment(ctx, 2000, id, 600_000)
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, int64(601_000), locked.Expiration)

	// After expiration the lease can be taken over with a strictly
	// increased lock id.
	next, err := s.LockDeployment(ctx, 601_000, id, 600_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.LockID)

	// The stale lease can no longer unlock.
	assert.False(t, s.UnlockDeployment(ctx, id, lock))
	assert.True(t, s.UnlockDeployment(ctx, id, next))

	taken, err := s.LockDeployment(ctx, 601_000, id, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), taken.LockID)
}

func TestLockDelayAssertion(t *testing.T) {
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	assert.Panics(t, func() {
		_, _ = s.LockDeployment(context.Background(), 1000, id, 3_600_000)
	})
}

func TestApplyEventRejectsForeignLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	stale := types.Lock{LockID: lock.LockID + 1, Expiration: lock.Expiration}
	err = s.ApplyEvent(ctx, 2000, id, stale, types.ProcessingEvent{Kind: types.EventDeploymentStarted})
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, lock.Expiration, locked.Expiration)

	record, err := s.Deployment(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateStartDeployment, record.State.Kind)
}

func TestApplyEventWrongStateLeavesRecordUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	before, err := s.Deployment(id)
	require.NoError(t, err)

	err = s.ApplyEvent(ctx, 2000, id, lock, types.ProcessingEvent{Kind: types.EventBinaryInstalled})
	require.ErrorIs(t, err, ErrWrongState)

	after, err := s.Deployment(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Nothing reached the event log either.
	_, err = s.Event(0)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestApplyEventClearsProcessingError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	require.NoError(t, s.SetProcessingError(ctx, 1500, id, lock, "ledger unreachable"))
	record, err := s.Deployment(id)
	require.NoError(t, err)
	require.NotNil(t, record.ProcessingError)
	assert.Equal(t, "ledger unreachable", record.ProcessingError.Text)

	require.NoError(t, s.ApplyEvent(ctx, 2000, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentStarted}))
	record, err = s.Deployment(id)
	require.NoError(t, err)
	assert.Nil(t, record.ProcessingError)
}

func TestSetProcessingErrorTruncates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, s.SetProcessingError(ctx, 1500, id, lock, string(long)))

	record, err := s.Deployment(id)
	require.NoError(t, err)
	require.NotNil(t, record.ProcessingError)
	assert.Len(t, record.ProcessingError.Text, 1024)
}

func applyEvent(t *testing.T, s *Store, id types.DeploymentID, lock types.Lock, event types.ProcessingEvent) {
	t.Helper()
	require.NoError(t, s.ApplyEvent(context.Background(), 2000, id, lock, event))
}

func stateOf(t *testing.T, s *Store, id types.DeploymentID) types.DeploymentState {
	t.Helper()
	record, err := s.Deployment(id)
	require.NoError(t, err)
	return record.State
}

func TestHappyPathTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	transferRef := uint64(7)
	cert := &certFixture

	steps := []struct {
		event types.ProcessingEvent
		want  types.StateKind
	}{
		{types.ProcessingEvent{Kind: types.EventDeploymentStarted}, types.StateTransferOwnerFundsToTransit},
		{types.ProcessingEvent{Kind: types.EventOwnerFundsTransferred, TransferAmount: 100}, types.StateTransferTopUpFunds},
		{types.ProcessingEvent{Kind: types.EventTopUpFundsTransferred, CreditAuthority: "cmc", TransferRef: &transferRef}, types.StateNotifyCreditAuthority},
		{types.ProcessingEvent{Kind: types.EventTopUpAuthorityNotified, Credits: 42}, types.StateCreateInstanceOverAuthority},
		{types.ProcessingEvent{Kind: types.EventInstanceOverAuthorityMade, Instance: "inst-1"}, types.StateGenerateCertificate},
		{types.ProcessingEvent{Kind: types.EventCertificateGenerated}, types.StateWaitingReceiveCertificate},
		{types.ProcessingEvent{Kind: types.EventCertificateReceived, Certificate: cert}, types.StateStartInstallBinary},
		{types.ProcessingEvent{Kind: types.EventInstallBinaryStarted, ChunkSize: 4, ChunkCount: 2}, types.StateUploadBinary},
		{types.ProcessingEvent{Kind: types.EventBinaryChunkUploaded, ChunkIndex: 0, ChunkHash: "h0"}, types.StateUploadBinary},
		{types.ProcessingEvent{Kind: types.EventBinaryChunkUploaded, ChunkIndex: 1, ChunkHash: "h1"}, types.StateUploadBinary},
		{types.ProcessingEvent{Kind: types.EventBinaryUploaded}, types.StateInstallBinary},
		{types.ProcessingEvent{Kind: types.EventBinaryInstalled}, types.StateMakeInstanceSelfControlled},
		{types.ProcessingEvent{Kind: types.EventInstanceSelfControlledMade}, types.StateFinalizeDeployment},
		{types.ProcessingEvent{Kind: types.EventStartCompleteDeployment}, types.StateFinalizeDeployment},
		{types.ProcessingEvent{Kind: types.EventTransitFundsSweptToFallback}, types.StateFinalizeDeployment},
	}

	for _, step := range steps {
		applyEvent(t, s, id, lock, step.event)
		assert.Equal(t, step.want, stateOf(t, s, id).Kind, "after %s", step.event.Kind)
	}

	state := stateOf(t, s, id)
	assert.True(t, state.Terminal())
	require.NotNil(t, state.Result)
	assert.Equal(t, types.ResultSuccess, state.Result.Kind)

	record, err := s.Deployment(id)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceID("inst-1"), record.Instance)

	resolved, ok := s.DeploymentByInstance("inst-1")
	require.True(t, ok)
	assert.Equal(t, id, resolved)
}

func TestUseExternalConvertingFromBothSourceStates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	transferRef := uint64(1)

	// From the transfer state.
	id := createDeployment(t, s, "alice", 0)
	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentStarted})
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventOwnerFundsTransferred})
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventUseExternalConverting, Reason: "refused"})
	assert.Equal(t, types.StateCreateInstanceOverAuthority, stateOf(t, s, id).Kind)

	// From the notify state.
	id = createDeployment(t, s, "bob", 0)
	lock, err = s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentStarted})
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventOwnerFundsTransferred})
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventTopUpFundsTransferred, CreditAuthority: "cmc", TransferRef: &transferRef})
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventUseExternalConverting, Reason: "too old"})
	assert.Equal(t, types.StateCreateInstanceOverAuthority, stateOf(t, s, id).Kind)
}

func TestChunkIndexMismatchRestartsUpload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	advanceToUpload(t, s, id, lock)

	// An out-of-order index silently restarts the whole upload.
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventBinaryChunkUploaded, ChunkIndex: 1, ChunkHash: "h1"})

	state := stateOf(t, s, id)
	assert.Equal(t, types.StateStartInstallBinary, state.Kind)
	require.NotNil(t, state.Certificate)
	assert.Empty(t, state.UploadedHashes)
}

func TestCancellation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := createDeployment(t, s, "alice", 0)

	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)

	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentStarted})
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentCanceled, Reason: "user request"})

	state := stateOf(t, s, id)
	assert.Equal(t, types.StateFinalizeDeployment, state.Kind)
	assert.Equal(t, types.FinalizeStart, state.SubState)
	require.NotNil(t, state.Result)
	assert.Equal(t, types.ResultCancelled, state.Result.Kind)
	assert.Equal(t, "user request", state.Result.Reason)

	// Cancelling a finalizing deployment is a state violation.
	err = s.ApplyEvent(ctx, 3000, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentCanceled, Reason: "again"})
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	first := createDeployment(t, s, "alice", 0)
	second := createDeployment(t, s, "bob", 0)

	lockFirst, err := s.LockDeployment(ctx, 1000, first, 600_000)
	require.NoError(t, err)
	lockSecond, err := s.LockDeployment(ctx, 1000, second, 600_000)
	require.NoError(t, err)

	applyEvent(t, s, first, lockFirst, types.ProcessingEvent{Kind: types.EventDeploymentStarted})
	applyEvent(t, s, second, lockSecond, types.ProcessingEvent{Kind: types.EventDeploymentStarted})
	applyEvent(t, s, first, lockFirst, types.ProcessingEvent{Kind: types.EventOwnerFundsTransferred, TransferAmount: 55})

	event, err := s.Event(2)
	require.NoError(t, err)
	assert.Equal(t, first, event.DeploymentID)
	assert.Equal(t, types.EventOwnerFundsTransferred, event.Event.Kind)
	assert.Equal(t, types.Tokens(55), event.Event.TransferAmount)
	assert.Equal(t, int64(2000), event.Time)

	var ascending []types.DeploymentEventID
	s.IterateEvents(first, false, func(id types.DeploymentEventID) bool {
		ascending = append(ascending, id)
		return true
	})
	assert.Equal(t, []types.DeploymentEventID{0, 2}, ascending)

	var descending []types.DeploymentEventID
	s.IterateEvents(first, true, func(id types.DeploymentEventID) bool {
		descending = append(descending, id)
		return true
	})
	assert.Equal(t, []types.DeploymentEventID{2, 0}, descending)
}

func TestIterateByOwner(t *testing.T) {
	s := newTestStore(t)
	a := createDeployment(t, s, "alice", 0)
	createDeployment(t, s, "bob", 0)
	c := createDeployment(t, s, "alice", 1)

	var ids []types.DeploymentID
	s.IterateByOwner("alice", true, func(id types.DeploymentID) bool {
		ids = append(ids, id)
		return true
	})
	assert.Equal(t, []types.DeploymentID{c, a}, ids)

	// Short-circuiting receiver stops the walk.
	ids = nil
	s.IterateByOwner("alice", false, func(id types.DeploymentID) bool {
		ids = append(ids, id)
		return false
	})
	assert.Equal(t, []types.DeploymentID{a}, ids)

	ids = nil
	s.IterateByOwnerAndTemplate("alice", 1, false, func(id types.DeploymentID) bool {
		ids = append(ids, id)
		return true
	})
	assert.Equal(t, []types.DeploymentID{c}, ids)

	ids = nil
	s.IterateByTemplate(0, false, func(id types.DeploymentID) bool {
		ids = append(ids, id)
		return true
	})
	assert.Len(t, ids, 2)
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	logger := log.New(io.Discard)

	s, err := New(ctx, backend, logger)
	require.NoError(t, err)

	id := createDeployment(t, s, "alice", 0)
	lock, err := s.LockDeployment(ctx, 1000, id, 600_000)
	require.NoError(t, err)
	applyEvent(t, s, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentStarted})

	templateID, err := s.AddTemplate(ctx, "operator", 1000, types.TemplateDefinition{Name: "counter"})
	require.NoError(t, err)

	// A restarted process sees the same state, including the held lease.
	reloaded, err := New(ctx, backend, logger)
	require.NoError(t, err)

	record, err := reloaded.Deployment(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateTransferOwnerFundsToTransit, record.State.Kind)
	require.NotNil(t, record.Lock)
	assert.Equal(t, lock, *record.Lock)

	event, err := reloaded.Event(0)
	require.NoError(t, err)
	assert.Equal(t, types.EventDeploymentStarted, event.Event.Kind)

	template, err := reloaded.Template(templateID)
	require.NoError(t, err)
	assert.Equal(t, "counter", template.Definition.Name)

	// The lock sequence keeps increasing across the restart.
	_, err = reloaded.LockDeployment(ctx, lock.Expiration, id, 1000)
	require.NoError(t, err)
	record, err = reloaded.Deployment(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.Lock.LockID)
}

func TestTemplates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.AddTemplate(ctx, "operator", 1000, types.TemplateDefinition{Name: "counter", BinaryHash: "abc"})
	require.NoError(t, err)

	require.NoError(t, s.SetTemplateRetired(ctx, id, 2000, "superseded", true))
	template, err := s.Template(id)
	require.NoError(t, err)
	require.NotNil(t, template.Retired)
	assert.Equal(t, "superseded", template.Retired.Text)

	require.NoError(t, s.SetTemplateBlocked(ctx, id, 3000, "malicious", true))
	template, err = s.Template(id)
	require.NoError(t, err)
	require.NotNil(t, template.Blocked)

	require.NoError(t, s.IncrementTemplateDeployments(ctx, id))
	template, err = s.Template(id)
	require.NoError(t, err)
	assert.Equal(t, 1, template.DeploymentsCount)

	page, total := s.Templates(0, 10)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)

	_, err = s.Template(id + 1)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestBinaryStaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("binary image payload")
	s.GrantUpload("operator", len(data))

	require.ErrorIs(t, s.AppendBinaryChunk("stranger", data[:4]), ErrNoUploadGrant)
	require.NoError(t, s.AppendBinaryChunk("operator", data[:10]))
	require.ErrorIs(t, s.AppendBinaryChunk("operator", data), ErrBinaryLength)

	_, err := s.CommitBinary(ctx, "operator")
	require.ErrorIs(t, err, ErrBinaryLength)

	require.NoError(t, s.AppendBinaryChunk("operator", data[10:]))
	hash, err := s.CommitBinary(ctx, "operator")
	require.NoError(t, err)

	stored, err := s.Binary(hash)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	// The grant is consumed.
	_, err = s.CommitBinary(ctx, "operator")
	assert.ErrorIs(t, err, ErrNoUploadGrant)
}

func TestBlockedTemplateLosesBinary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("payload")
	s.GrantUpload("operator", len(data))
	require.NoError(t, s.AppendBinaryChunk("operator", data))
	hash, err := s.CommitBinary(ctx, "operator")
	require.NoError(t, err)

	id, err := s.AddTemplate(ctx, "operator", 1000, types.TemplateDefinition{Name: "counter", BinaryHash: hash})
	require.NoError(t, err)

	require.NoError(t, s.SetTemplateBlocked(ctx, id, 2000, "malicious", true))
	_, err = s.Binary(hash)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestAccessRights(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// An empty ACL admits everyone.
	assert.True(t, s.HasPermission("anyone", types.PermissionManageConfig))

	manage := []types.AccessPermission{types.PermissionManageTemplates}
	require.NoError(t, s.SetAccessRights(ctx, []types.AccessRight{
		{Caller: "root", Permissions: nil},
		{Caller: "operator", Permissions: &manage},
	}))

	assert.True(t, s.HasPermission("root", types.PermissionManageConfig))
	assert.True(t, s.HasPermission("operator", types.PermissionManageTemplates))
	assert.False(t, s.HasPermission("operator", types.PermissionManageConfig))
	assert.False(t, s.HasPermission("anyone", types.PermissionManageTemplates))
}

func TestHubEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendHubEvent(ctx, types.HubEvent{
			Time:   int64(1000 * (i + 1)),
			Caller: "operator",
			Kind:   types.HubEventConfigSet,
		}))
	}

	page, total := s.HubEvents(0, 2, true)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(1), page[1].ID)

	page, _ = s.HubEvents(1, 2, false)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].ID)
}

func advanceToUpload(t *testing.T, s *Store, id types.DeploymentID, lock types.Lock) {
	t.Helper()
	transferRef := uint64(1)
	for _, event := range []types.ProcessingEvent{
		{Kind: types.EventDeploymentStarted},
		{Kind: types.EventOwnerFundsTransferred},
		{Kind: types.EventTopUpFundsTransferred, CreditAuthority: "cmc", TransferRef: &transferRef},
		{Kind: types.EventTopUpAuthorityNotified},
		{Kind: types.EventInstanceOverAuthorityMade, Instance: "inst-1"},
		{Kind: types.EventCertificateGenerated},
		{Kind: types.EventCertificateReceived, Certificate: &certFixture},
		{Kind: types.EventInstallBinaryStarted, ChunkSize: 4, ChunkCount: 2},
	} {
		applyEvent(t, s, id, lock, event)
	}
}
