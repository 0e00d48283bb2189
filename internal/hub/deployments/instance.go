package deployments

import (
	"context"
	"errors"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

func processCreateInstanceOverAuthority(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	strategy := d.store.Config().CreateStrategy
	if strategy.Kind == types.CreateOverProvisioner {
		return d.useProvisionerCreation(ctx, id, lock, "strategy switched to provisioner")
	}

	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	template, err := d.store.Template(record.TemplateID)
	if err != nil {
		return taskResult{}, err
	}

	settings := template.Definition.InstanceSettings
	settings.InitialCredits = record.Expenses.InstanceInitialCredits

	instance, err := d.env.CreditAuthority.CreateInstance(ctx, strategy.Authority, settings, record.PlacementHint)
	if err != nil {
		var refunded *enviro.CreationRefundedError
		if errors.As(err, &refunded) {
			return d.useProvisionerCreation(ctx, id, lock, refunded.Error())
		}
		return taskResult{}, err
	}

	d.env.Logger.Info("instance created via credit authority",
		"deployment_id", id, "instance", instance,
		"initial_credits", settings.InitialCredits)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:     types.EventInstanceOverAuthorityMade,
		Settings: &settings,
		Instance: instance,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

func processCreateInstanceOverProvisioner(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	template, err := d.store.Template(record.TemplateID)
	if err != nil {
		return taskResult{}, err
	}

	settings := template.Definition.InstanceSettings
	settings.InitialCredits = record.Expenses.InstanceInitialCredits

	instance, err := d.env.Provisioner.CreateInstance(ctx, settings, settings.InitialCredits)
	if err != nil {
		return taskResult{}, err
	}

	d.env.Logger.Info("instance created via provisioner",
		"deployment_id", id, "instance", instance,
		"initial_credits", settings.InitialCredits)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:     types.EventInstanceOverProvisonerMade,
		Settings: &settings,
		Instance: instance,
	}); err != nil {
		return taskResult{}, err
	}
	return yieldTask(), nil
}

func (d *Driver) useProvisionerCreation(ctx context.Context, id types.DeploymentID, lock types.Lock, reason string) (taskResult, error) {
	d.env.Logger.Info("using provisioner to create instance",
		"deployment_id", id, "reason", reason)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind:   types.EventUseProvisionerCreation,
		Reason: reason,
	}); err != nil {
		return taskResult{}, err
	}
	return continueTask(), nil
}

// processMakeSelfControlled revokes the hub's control and sets the instance
// as its own controller. A failed call is tolerated when the instance
// metadata shows the change already landed.
func processMakeSelfControlled(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	instance := record.Instance

	if err := d.env.Provisioner.SetController(ctx, instance, types.Principal(instance)); err != nil {
		if !isInstanceSelfControlled(ctx, d.env.Provisioner, instance) {
			return taskResult{}, err
		}
	}

	d.env.Logger.Info("instance made self controlled", "deployment_id", id, "instance", instance)

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind: types.EventInstanceSelfControlledMade,
	}); err != nil {
		return taskResult{}, err
	}
	return stopTask(), nil
}

func isInstanceSelfControlled(ctx context.Context, provisioner enviro.Provisioner, instance types.InstanceID) bool {
	info, err := provisioner.InstanceInfo(ctx, instance)
	if err != nil {
		return false
	}
	return len(info.Controllers) == 1 && info.Controllers[0] == types.Principal(instance)
}
