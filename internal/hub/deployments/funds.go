package deployments

import (
	"context"
	"errors"
	"fmt"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

func processStartDeployment(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	d.env.Logger.Info("deployment processing started", "deployment_id", id)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{Kind: types.EventDeploymentStarted}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

// processTransferOwnerFunds moves the reserved amount from the owner's
// approved account to the per-deployment transit subaccount. The transit
// balance is re-checked first so a crash mid-transfer resumes without
// charging the owner twice.
func processTransferOwnerFunds(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	ledger := d.env.Ledger

	fee, err := ledger.Fee(ctx)
	if err != nil {
		return taskResult{}, err
	}

	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}

	transit := enviro.TransitSubaccount(id)
	transitBalance, err := ledger.SubaccountBalance(ctx, transit)
	if err != nil {
		return taskResult{}, err
	}

	d.env.Logger.Info("transferring owner funds",
		"deployment_id", id,
		"transit_balance", transitBalance,
		"amount", record.Amount,
		"ledger_fee", fee)

	transferAmount := record.Amount - fee
	if transitBalance >= transferAmount {
		if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
			Kind:           types.EventOwnerFundsTransferred,
			TransitBalance: transitBalance,
		}); err != nil {
			return taskResult{}, err
		}
		return yieldTask(), nil
	}

	transferAmount -= transitBalance
	transferRef, err := ledger.TransferFrom(ctx, enviro.TransferFromArgs{
		Spender: record.Owner,
		From:    record.ApprovedAccount,
		To: types.LedgerAccount{
			Owner:      d.env.HubID,
			Subaccount: transit,
		},
		Amount: transferAmount,
		Fee:    fee,
		Memo:   id,
	})
	if err != nil {
		return taskResult{}, err
	}

	d.env.Logger.Info("owner funds received on transit account",
		"deployment_id", id, "transfer_ref", transferRef)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:           types.EventOwnerFundsTransferred,
		TransitBalance: transitBalance,
		TransferAmount: transferAmount,
		TransferRef:    &transferRef,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

// processTransferTopUpFunds moves the transit balance to the credit
// authority. Anything that prevents the top-up falls back to external
// conversion rather than failing the deployment.
func processTransferTopUpFunds(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	strategy := d.store.Config().ConvertStrategy
	if strategy.Kind == types.ConvertSkip {
		return d.useExternalConverting(ctx, id, lock, "skip strategy")
	}

	ledger := d.env.Ledger
	transit := enviro.TransitSubaccount(id)

	transitBalance, err := ledger.SubaccountBalance(ctx, transit)
	if err != nil {
		return taskResult{}, err
	}
	fee, err := ledger.Fee(ctx)
	if err != nil {
		return taskResult{}, err
	}

	if transitBalance <= fee {
		return d.useExternalConverting(ctx, id, lock,
			fmt.Sprintf("insufficient funds on transit account (balance: %d)", transitBalance))
	}

	transferAmount := transitBalance - fee

	d.env.Logger.Info("transferring transit funds to credit authority",
		"deployment_id", id, "authority", strategy.Authority, "amount", transferAmount)

	transferRef, err := ledger.Transfer(ctx, transit,
		types.LedgerAccount{Owner: strategy.Authority}, transferAmount, fee, id)
	if err != nil {
		return taskResult{}, err
	}

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:            types.EventTopUpFundsTransferred,
		CreditAuthority: strategy.Authority,
		TransferAmount:  transferAmount,
		TransferRef:     &transferRef,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

func processNotifyCreditAuthority(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	if d.store.Config().ConvertStrategy.Kind == types.ConvertSkip {
		return d.useExternalConverting(ctx, id, lock, "strategy switched to skip")
	}

	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	authority := record.State.CreditAuthority
	transferRef := record.State.TransferRef

	d.env.Logger.Info("notifying credit authority about top-up",
		"deployment_id", id, "authority", authority, "transfer_ref", transferRef)

	credits, err := d.env.CreditAuthority.NotifyTopUp(ctx, authority, transferRef)
	if err != nil {
		var refused *enviro.TopUpRefusedError
		if errors.As(err, &refused) {
			return d.useExternalConverting(ctx, id, lock, refused.Error())
		}
		return taskResult{}, err
	}

	d.env.Logger.Info("top-up successful", "deployment_id", id, "credits", credits)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:    types.EventTopUpAuthorityNotified,
		Credits: credits,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

func (d *Driver) useExternalConverting(ctx context.Context, id types.DeploymentID, lock types.Lock, reason string) (taskResult, error) {
	d.env.Logger.Info("switching to external conversion service",
		"deployment_id", id, "reason", reason)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:   types.EventUseExternalConverting,
		Reason: reason,
	}); err != nil {
		return taskResult{}, err
	}
	return continueTask(), nil
}
