package deployments

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

func processStartFinalization(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	d.env.Logger.Info("deployment finalization started", "deployment_id", id)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind: types.EventStartCompleteDeployment,
	}); err != nil {
		return taskResult{}, err
	}
	return continueTask(), nil
}

// processSweepTransitFunds moves whatever is left on the transit subaccount
// to the fallback account, or records a zero transfer when the balance is
// below the ledger fee. Either way the template's deployment counter is
// bumped and the record turns terminal on the next step.
func processSweepTransitFunds(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
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
		d.env.Logger.Info("no transit funds to sweep",
			"deployment_id", id, "transit_balance", transitBalance)
		return d.sweepDone(ctx, id, lock, 0, nil)
	}

	transferAmount := transitBalance - fee
	fallback := types.LedgerAccount{Owner: types.Principal(d.store.Config().FallbackAccount)}

	d.env.Logger.Info("sweeping transit funds to fallback account",
		"deployment_id", id, "amount", transferAmount, "fallback", fallback.Owner)

	transferRef, err := ledger.Transfer(ctx, transit, fallback, transferAmount, fee, id)
	if err != nil {
		return taskResult{}, err
	}

	return d.sweepDone(ctx, id, lock, transferAmount, &transferRef)
}

func (d *Driver) sweepDone(ctx context.Context, id types.DeploymentID, lock types.Lock, transferAmount types.Tokens, transferRef *uint64) (taskResult, error) {
	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:           types.EventTransitFundsSweptToFallback,
		TransferAmount: transferAmount,
		TransferRef:    transferRef,
	}); err != nil {
		return taskResult{}, err
	}

	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	if err := d.store.IncrementTemplateDeployments(ctx, record.TemplateID); err != nil {
		d.env.Logger.Error("failed to bump template deployment counter",
			"deployment_id", id, "template_id", record.TemplateID, "error", err)
	}

	return yieldTask(), nil
}
