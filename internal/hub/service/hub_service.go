package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/charmbracelet/log"

	"github.com/contracthub-dev/contracthub/internal/hub/auth"
	"github.com/contracthub-dev/contracthub/internal/hub/deployments"
	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/expenses"
	"github.com/contracthub-dev/contracthub/internal/hub/store"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

const activationCodeBytes = 16

type hubService struct {
	store     *store.Store
	driver    *deployments.Driver
	scheduler *deployments.Scheduler
	env       *enviro.Environment
	logger    *log.Logger
}

// NewHubService wires the service over the store, the saga driver and the
// retry scheduler.
func NewHubService(st *store.Store, driver *deployments.Driver, scheduler *deployments.Scheduler, env *enviro.Environment) HubService {
	return &hubService{
		store:     st,
		driver:    driver,
		scheduler: scheduler,
		env:       env,
		logger:    env.Logger,
	}
}

// caller resolves the request principal. The second return is true for the
// internal system session, which bypasses ownership and ACL checks.
func (s *hubService) caller(ctx context.Context) (types.Principal, bool) {
	session, ok := auth.SessionFrom(ctx)
	if !ok {
		return "", false
	}
	return session.Caller(), auth.IsSystemSession(session)
}

func (s *hubService) requirePermission(ctx context.Context, permission types.AccessPermission) (types.Principal, error) {
	caller, system := s.caller(ctx)
	if system {
		return caller, nil
	}
	if caller.Anonymous() {
		return "", ErrPermissionDenied
	}
	if !s.store.HasPermission(caller, permission) {
		return "", ErrPermissionDenied
	}
	return caller, nil
}

// ownedDeployment loads the record and checks the caller owns it.
func (s *hubService) ownedDeployment(ctx context.Context, id types.DeploymentID) (*types.DeploymentRecord, error) {
	record, err := s.store.Deployment(id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	caller, system := s.caller(ctx)
	if !system && caller != record.Owner {
		return nil, ErrPermissionDenied
	}
	return record, nil
}

func mapStoreError(err error) error {
	var locked *store.LockedError
	switch {
	case errors.Is(err, store.ErrDeploymentNotFound):
		return ErrDeploymentNotFound
	case errors.Is(err, store.ErrWrongState):
		return ErrDeploymentWrongState
	case errors.As(err, &locked):
		return &DeploymentLockedError{RetryAfter: locked.Expiration}
	}
	return err
}

func (s *hubService) info(id types.DeploymentID) (*DeploymentInfo, error) {
	record, err := s.store.Deployment(id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return s.infoFromRecord(record), nil
}

func (s *hubService) infoFromRecord(record *types.DeploymentRecord) *DeploymentInfo {
	derived := s.driver.DescribeDeployment(record)
	return &DeploymentInfo{
		ID:              derived.ID,
		Owner:           derived.Owner,
		Created:         derived.Created,
		TemplateID:      derived.TemplateID,
		Expenses:        derived.Expenses,
		Amount:          derived.Amount,
		Instance:        derived.Instance,
		State:           derived.State,
		ProcessingError: derived.ProcessingError,
		NeedProcessing:  derived.NeedProcessing,
		LockedUntil:     derived.LockedUntil,
	}
}

// drive runs the processor once and hands the retry moment to the scheduler.
func (s *hubService) drive(ctx context.Context, id types.DeploymentID) {
	next := s.driver.Process(ctx, id)
	s.scheduler.ScheduleRetry(id, next)
}

func (s *hubService) DeployContract(ctx context.Context, args DeployArgs) (*DeploymentInfo, error) {
	caller, system := s.caller(ctx)
	if caller.Anonymous() && !system {
		return nil, ErrPermissionDenied
	}

	config := s.store.Config()
	if !config.IsDeploymentAvailable {
		return nil, ErrDeploymentUnavailable
	}

	template, err := s.store.Template(args.TemplateID)
	if err != nil {
		return nil, ErrTemplateNotFound
	}
	if template.Blocked != nil || template.Retired != nil {
		return nil, ErrTemplateUnavailable
	}
	if _, err := s.store.Binary(template.Definition.BinaryHash); err != nil {
		return nil, ErrTemplateUnavailable
	}

	if _, exists := s.driver.FindActiveDeployment(caller); exists {
		return nil, ErrActiveDeploymentExists
	}

	now := s.env.Clock.Now()

	rate, err := s.conversionRate(ctx, config, now)
	if err != nil {
		return nil, err
	}

	breakdown := types.ExpenseBreakdown{
		DeploymentCreditsCost:  config.DeploymentCreditsCost,
		InstanceInitialCredits: template.Definition.InstanceSettings.InitialCredits,
		BufferPermyriad:        config.ExpensesBufferPermyriad,
		DecimalPlaces:          config.ExpensesDecimalPlaces,
		ConversionRate:         rate,
	}

	calculator := expenses.NewCalculator(breakdown)
	base, err := calculator.BaseAmount()
	if err != nil {
		return nil, err
	}
	amount, err := calculator.ReservedAmount(base)
	if err != nil {
		return nil, err
	}

	account := args.ApprovedAccount
	if account.Owner.Anonymous() {
		account.Owner = caller
	}

	if err := s.checkFunding(ctx, caller, account, amount, now); err != nil {
		return nil, err
	}

	activationCode := ""
	if template.Definition.ActivationRequired {
		raw, err := s.env.Rand.Bytes(activationCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to generate activation code: %w", err)
		}
		activationCode = hex.EncodeToString(raw)
	}

	id, err := s.store.CreateDeployment(ctx, store.NewDeployment{
		Owner:           caller,
		Created:         now,
		TemplateID:      args.TemplateID,
		Expenses:        breakdown,
		Amount:          amount,
		ApprovedAccount: account,
		PlacementHint:   args.PlacementHint,
		ActivationCode:  activationCode,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deployment created",
		"deployment_id", id, "owner", caller, "template_id", args.TemplateID, "amount", amount)

	s.drive(ctx, id)
	return s.info(id)
}

func (s *hubService) conversionRate(ctx context.Context, config types.HubConfig, now int64) (types.ConversionRate, error) {
	switch config.RateStrategy.Kind {
	case types.RateAuthority:
		rate, err := s.env.CreditAuthority.ConversionRate(ctx)
		if err != nil {
			return types.ConversionRate{}, fmt.Errorf("failed to fetch conversion rate: %w", err)
		}
		return rate, nil
	default:
		return types.ConversionRate{
			Kind:             types.RateFixed,
			CreditsPerToken:  config.RateStrategy.CreditsPerToken,
			TimestampSeconds: now / 1000,
		}, nil
	}
}

func (s *hubService) checkFunding(ctx context.Context, caller types.Principal, account types.LedgerAccount, amount types.Tokens, now int64) error {
	fee, err := s.env.Ledger.Fee(ctx)
	if err != nil {
		return err
	}
	required := amount + fee

	balance, err := s.env.Ledger.AccountBalance(ctx, account)
	if err != nil {
		return err
	}
	if balance < required {
		return ErrInsufficientBalance
	}

	allowance, err := s.env.Ledger.Allowance(ctx, account, caller)
	if err != nil {
		return err
	}
	if allowance.Amount < required {
		return ErrInsufficientAllowance
	}
	timeout := s.store.Config().AllowanceExpirationTimeout
	if allowance.ExpiresAt != nil && *allowance.ExpiresAt < now+timeout {
		return ErrAllowanceExpiresTooEarly
	}
	return nil
}

func (s *hubService) ProcessDeployment(ctx context.Context, id types.DeploymentID) (*DeploymentInfo, error) {
	if _, err := s.ownedDeployment(ctx, id); err != nil {
		return nil, err
	}
	s.drive(ctx, id)
	return s.info(id)
}

func (s *hubService) CancelDeployment(ctx context.Context, id types.DeploymentID, reason string) (*DeploymentInfo, error) {
	if _, err := s.ownedDeployment(ctx, id); err != nil {
		return nil, err
	}

	err := s.driver.UpdateWithLock(ctx, id, types.ProcessingEvent{
		Kind:   types.EventDeploymentCanceled,
		Reason: reason,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("deployment canceled", "deployment_id", id, "reason", reason)
	s.drive(ctx, id)
	return s.info(id)
}

func (s *hubService) GetDeployment(ctx context.Context, id types.DeploymentID) (*DeploymentInfo, error) {
	return s.info(id)
}

func (s *hubService) GetDeploymentByInstance(ctx context.Context, instance types.InstanceID) (*DeploymentInfo, error) {
	id, ok := s.store.DeploymentByInstance(instance)
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return s.info(id)
}

func (s *hubService) GetActiveDeployment(ctx context.Context) (*DeploymentInfo, error) {
	caller, _ := s.caller(ctx)
	if caller.Anonymous() {
		return nil, ErrPermissionDenied
	}
	record, ok := s.driver.FindActiveDeployment(caller)
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return s.infoFromRecord(record), nil
}

func (s *hubService) GetDeployments(ctx context.Context, query DeploymentsQuery) ([]*DeploymentInfo, error) {
	take := clampTake(query.Take, s.store.Config().MaxDeploymentsPerChunk)
	skip := query.Skip

	page := make([]*DeploymentInfo, 0, take)
	collect := func(id types.DeploymentID) bool {
		if skip > 0 {
			skip--
			return true
		}
		if len(page) >= take {
			return false
		}
		info, err := s.info(id)
		if err != nil {
			return true
		}
		page = append(page, info)
		return true
	}

	switch {
	case query.Owner != nil && query.TemplateID != nil:
		s.store.IterateByOwnerAndTemplate(*query.Owner, *query.TemplateID, query.Descending, collect)
	case query.Owner != nil:
		s.store.IterateByOwner(*query.Owner, query.Descending, collect)
	case query.TemplateID != nil:
		s.store.IterateByTemplate(*query.TemplateID, query.Descending, collect)
	default:
		count := s.store.DeploymentsCount()
		if query.Descending {
			for id := count; id > 0; id-- {
				if !collect(id - 1) {
					break
				}
			}
		} else {
			for id := types.DeploymentID(0); id < count; id++ {
				if !collect(id) {
					break
				}
			}
		}
	}
	return page, nil
}

func (s *hubService) GetDeploymentEvents(ctx context.Context, id types.DeploymentID, skip, take int, descending bool) ([]types.DeploymentEvent, error) {
	if _, err := s.store.Deployment(id); err != nil {
		return nil, mapStoreError(err)
	}

	take = clampTake(take, s.store.Config().MaxDeploymentEventsPerChunk)
	page := make([]types.DeploymentEvent, 0, take)
	s.store.IterateEvents(id, descending, func(eventID types.DeploymentEventID) bool {
		if skip > 0 {
			skip--
			return true
		}
		if len(page) >= take {
			return false
		}
		event, err := s.store.Event(eventID)
		if err != nil {
			return true
		}
		page = append(page, event)
		return true
	})
	return page, nil
}

func (s *hubService) GetActivationCode(ctx context.Context, id types.DeploymentID) (string, error) {
	record, err := s.ownedDeployment(ctx, id)
	if err != nil {
		return "", err
	}
	if record.ActivationCode == "" {
		return "", ErrNoActivationCode
	}
	return record.ActivationCode, nil
}

func (s *hubService) ObtainCertificate(ctx context.Context, id types.DeploymentID) (certificate.Signed, error) {
	record, err := s.ownedDeployment(ctx, id)
	if err != nil {
		return certificate.Signed{}, err
	}
	if record.State.Kind != types.StateWaitingReceiveCertificate {
		return certificate.Signed{}, ErrDeploymentWrongState
	}

	canonical, err := s.canonicalCertificate(record)
	if err != nil {
		return certificate.Signed{}, err
	}
	signed, err := s.env.Certifier.Obtain(canonical)
	if err != nil {
		return certificate.Signed{}, fmt.Errorf("%w: %w", ErrCertificateInvalid, err)
	}
	return signed, nil
}

func (s *hubService) InitializeCertificate(ctx context.Context, id types.DeploymentID, signed certificate.Signed) (*DeploymentInfo, error) {
	record, err := s.ownedDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.State.Kind != types.StateWaitingReceiveCertificate {
		return nil, ErrDeploymentWrongState
	}

	canonical, err := s.canonicalCertificate(record)
	if err != nil {
		return nil, err
	}
	if signed.Certificate != canonical {
		return nil, ErrCertificateInvalid
	}
	if err := s.env.Certifier.Verify(signed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateInvalid, err)
	}

	err = s.driver.UpdateWithLock(ctx, id, types.ProcessingEvent{
		Kind:        types.EventCertificateReceived,
		Certificate: &signed,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.drive(ctx, id)
	return s.info(id)
}

func (s *hubService) RetryGenerateCertificate(ctx context.Context, id types.DeploymentID) (*DeploymentInfo, error) {
	if _, err := s.ownedDeployment(ctx, id); err != nil {
		return nil, err
	}

	err := s.driver.UpdateWithLock(ctx, id, types.ProcessingEvent{
		Kind: types.EventRetryGenerateCertificate,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.drive(ctx, id)
	return s.info(id)
}

func (s *hubService) ValidateCertificate(ctx context.Context, instanceURL string) (certificate.Certificate, error) {
	instance, err := s.instanceFromURL(instanceURL)
	if err != nil {
		return certificate.Certificate{}, err
	}

	id, ok := s.store.DeploymentByInstance(instance)
	if !ok {
		return certificate.Certificate{}, ErrDeploymentNotFound
	}
	record, err := s.store.Deployment(id)
	if err != nil {
		return certificate.Certificate{}, mapStoreError(err)
	}

	canonical, err := s.canonicalCertificate(record)
	if err != nil {
		return certificate.Certificate{}, err
	}

	signed, err := s.env.Provisioner.FetchCertificate(ctx, instance)
	if err != nil {
		return certificate.Certificate{}, fmt.Errorf("failed to fetch certificate from instance: %w", err)
	}
	if err := s.env.Certifier.Verify(signed); err != nil {
		return certificate.Certificate{}, fmt.Errorf("%w: %w", ErrCertificateInvalid, err)
	}
	if signed.Certificate != canonical {
		return certificate.Certificate{}, ErrCertificateInvalid
	}
	return canonical, nil
}

func (s *hubService) canonicalCertificate(record *types.DeploymentRecord) (certificate.Certificate, error) {
	template, err := s.store.Template(record.TemplateID)
	if err != nil {
		return certificate.Certificate{}, ErrTemplateNotFound
	}
	return deployments.BuildCertificate(s.env.HubID, record, template), nil
}

// instanceFromURL extracts the instance handle from a public instance URL
// using the configured patterns. Each pattern is a regular expression with
// the handle as its first capture group.
func (s *hubService) instanceFromURL(raw string) (types.InstanceID, error) {
	for _, pattern := range s.store.Config().InstanceURLPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			s.logger.Error("invalid instance URL pattern", "pattern", pattern, "error", err)
			continue
		}
		if match := re.FindStringSubmatch(raw); len(match) >= 2 {
			return types.InstanceID(match[1]), nil
		}
	}
	return "", ErrUnknownInstanceURL
}

func (s *hubService) AddTemplate(ctx context.Context, definition types.TemplateDefinition) (*types.ContractTemplate, error) {
	caller, err := s.requirePermission(ctx, types.PermissionManageTemplates)
	if err != nil {
		return nil, err
	}
	if err := validateTemplateDefinition(definition, s.store.Config()); err != nil {
		return nil, err
	}

	hash, err := s.store.CommitBinary(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	definition.BinaryHash = hash

	now := s.env.Clock.Now()
	id, err := s.store.AddTemplate(ctx, caller, now, definition)
	if err != nil {
		return nil, err
	}

	s.appendHubEvent(ctx, types.HubEvent{
		Time:       now,
		Caller:     caller,
		Kind:       types.HubEventTemplateAdded,
		TemplateID: &id,
	})
	s.logger.Info("template added", "template_id", id, "name", definition.Name, "binary_hash", hash)

	return s.store.Template(id)
}

func validateTemplateDefinition(definition types.TemplateDefinition, config types.HubConfig) error {
	switch {
	case definition.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	case len(definition.Name) > config.NameMaxLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidTemplate, config.NameMaxLength)
	case len(definition.ShortDescription) > config.ShortDescriptionMaxLength:
		return fmt.Errorf("%w: short description exceeds %d characters", ErrInvalidTemplate, config.ShortDescriptionMaxLength)
	case len(definition.LongDescription) > config.LongDescriptionMaxLength:
		return fmt.Errorf("%w: long description exceeds %d characters", ErrInvalidTemplate, config.LongDescriptionMaxLength)
	case definition.CertificateDuration <= 0:
		return fmt.Errorf("%w: certificate duration must be positive", ErrInvalidTemplate)
	}
	return nil
}

func (s *hubService) GetTemplate(ctx context.Context, id types.TemplateID) (*types.ContractTemplate, error) {
	template, err := s.store.Template(id)
	if err != nil {
		return nil, ErrTemplateNotFound
	}
	return template, nil
}

func (s *hubService) GetTemplates(ctx context.Context, skip, take int) ([]*types.ContractTemplate, int, error) {
	take = clampTake(take, s.store.Config().MaxTemplatesPerChunk)
	page, total := s.store.Templates(skip, take)
	return page, total, nil
}

func (s *hubService) BlockTemplate(ctx context.Context, id types.TemplateID, reason string, blocked bool) error {
	caller, err := s.requirePermission(ctx, types.PermissionBlockTemplates)
	if err != nil {
		return err
	}

	now := s.env.Clock.Now()
	if err := s.store.SetTemplateBlocked(ctx, id, now, reason, blocked); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}

	s.appendHubEvent(ctx, types.HubEvent{
		Time:       now,
		Caller:     caller,
		Kind:       types.HubEventTemplateBlocked,
		TemplateID: &id,
	})
	s.logger.Info("template block state changed", "template_id", id, "blocked", blocked, "reason", reason)
	return nil
}

func (s *hubService) RetireTemplate(ctx context.Context, id types.TemplateID, reason string, retired bool) error {
	caller, err := s.requirePermission(ctx, types.PermissionManageTemplates)
	if err != nil {
		return err
	}

	now := s.env.Clock.Now()
	if err := s.store.SetTemplateRetired(ctx, id, now, reason, retired); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}

	s.appendHubEvent(ctx, types.HubEvent{
		Time:       now,
		Caller:     caller,
		Kind:       types.HubEventTemplateRetired,
		TemplateID: &id,
	})
	return nil
}

func (s *hubService) SetUploadGrant(ctx context.Context, binaryLength int) error {
	caller, err := s.requirePermission(ctx, types.PermissionManageTemplates)
	if err != nil {
		return err
	}
	if binaryLength <= 0 || binaryLength > s.store.Config().BinaryMaxSize {
		return fmt.Errorf("%w: binary length out of range", ErrInvalidTemplate)
	}

	s.store.GrantUpload(caller, binaryLength)
	return nil
}

func (s *hubService) UploadBinaryChunk(ctx context.Context, chunk []byte) error {
	caller, system := s.caller(ctx)
	if caller.Anonymous() && !system {
		return ErrPermissionDenied
	}
	if err := s.store.AppendBinaryChunk(caller, chunk); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return nil
}

func (s *hubService) GetAccessRights(ctx context.Context) ([]types.AccessRight, error) {
	return s.store.AccessRights(), nil
}

func (s *hubService) SetAccessRights(ctx context.Context, rights []types.AccessRight) error {
	caller, err := s.requirePermission(ctx, types.PermissionManageAccessRights)
	if err != nil {
		return err
	}

	// A non-empty ACL that drops the caller's own manage-access-rights
	// permission would leave nobody able to revert the change.
	_, system := s.caller(ctx)
	if !system && len(rights) > 0 && !retainsAccessControl(caller, rights) {
		return ErrLoseControl
	}

	if err := s.store.SetAccessRights(ctx, rights); err != nil {
		return err
	}

	s.appendHubEvent(ctx, types.HubEvent{
		Time:         s.env.Clock.Now(),
		Caller:       caller,
		Kind:         types.HubEventAccessRightsSet,
		AccessRights: rights,
	})
	s.logger.Info("access rights replaced", "caller", caller, "entries", len(rights))
	return nil
}

func retainsAccessControl(caller types.Principal, rights []types.AccessRight) bool {
	for _, right := range rights {
		if right.Caller != caller {
			continue
		}
		if right.Permissions == nil {
			return true
		}
		for _, p := range *right.Permissions {
			if p == types.PermissionManageAccessRights {
				return true
			}
		}
	}
	return false
}

func (s *hubService) GetConfig(ctx context.Context) (types.HubConfig, error) {
	return s.store.Config(), nil
}

func (s *hubService) SetConfig(ctx context.Context, config types.HubConfig) error {
	caller, err := s.requirePermission(ctx, types.PermissionManageConfig)
	if err != nil {
		return err
	}
	if err := validateConfig(config); err != nil {
		return err
	}

	if err := s.store.SetConfig(ctx, config); err != nil {
		return err
	}

	s.appendHubEvent(ctx, types.HubEvent{
		Time:   s.env.Clock.Now(),
		Caller: caller,
		Kind:   types.HubEventConfigSet,
		Config: &config,
	})
	s.logger.Info("hub config replaced", "caller", caller)
	return nil
}

func validateConfig(config types.HubConfig) error {
	switch {
	case config.BinaryMaxSize <= 0:
		return fmt.Errorf("%w: binary max size must be positive", ErrInvalidConfig)
	case config.BinaryUploadChunkSize <= 0:
		return fmt.Errorf("%w: binary upload chunk size must be positive", ErrInvalidConfig)
	case config.ExpensesBufferPermyriad > 10_000:
		return fmt.Errorf("%w: expense buffer exceeds 10000 permyriad", ErrInvalidConfig)
	case config.ExpensesDecimalPlaces > 8:
		return fmt.Errorf("%w: decimal places exceed token precision", ErrInvalidConfig)
	case config.AllowanceExpirationTimeout < 0:
		return fmt.Errorf("%w: allowance expiration timeout must not be negative", ErrInvalidConfig)
	case config.MaxHubEventsPerChunk <= 0,
		config.MaxTemplatesPerChunk <= 0,
		config.MaxDeploymentsPerChunk <= 0,
		config.MaxDeploymentEventsPerChunk <= 0:
		return fmt.Errorf("%w: chunk limits must be positive", ErrInvalidConfig)
	}
	return nil
}

func (s *hubService) GetHubEvents(ctx context.Context, skip, take int, descending bool) ([]types.HubEvent, int, error) {
	take = clampTake(take, s.store.Config().MaxHubEventsPerChunk)
	page, total := s.store.HubEvents(skip, take, descending)
	return page, total, nil
}

func (s *hubService) ResumeProcessing() {
	s.scheduler.Resume()
}

func (s *hubService) Close() {
	s.scheduler.Close()
	s.store.Close()
}

// appendHubEvent records an audit entry. Audit failures are logged but do
// not fail the operation they describe.
func (s *hubService) appendHubEvent(ctx context.Context, event types.HubEvent) {
	if err := s.store.AppendHubEvent(ctx, event); err != nil {
		s.logger.Error("failed to append hub event", "kind", event.Kind, "error", err)
	}
}

func clampTake(take, max int) int {
	if take <= 0 || take > max {
		return max
	}
	return take
}
