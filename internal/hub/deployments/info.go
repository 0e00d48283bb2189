package deployments

import (
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// Info is the reader-facing view of a deployment record. NeedProcessing and
// LockedUntil are derived, never stored.
type Info struct {
	ID              types.DeploymentID
	Owner           types.Principal
	Created         int64
	TemplateID      types.TemplateID
	Expenses        types.ExpenseBreakdown
	Amount          types.Tokens
	PlacementHint   string
	Instance        types.InstanceID
	State           types.DeploymentState
	ProcessingError *types.TimestampedText
	NeedProcessing  bool
	LockedUntil     *int64
}

// DescribeDeployment derives the reader view from a record.
func (d *Driver) DescribeDeployment(record *types.DeploymentRecord) Info {
	info := Info{
		ID:              record.ID,
		Owner:           record.Owner,
		Created:         record.Created,
		TemplateID:      record.TemplateID,
		Expenses:        record.Expenses,
		Amount:          record.Amount,
		PlacementHint:   record.PlacementHint,
		Instance:        record.Instance,
		State:           record.State,
		ProcessingError: record.ProcessingError,
		NeedProcessing:  d.NeedProcessing(record.State),
	}
	if record.Lock != nil && d.env.Clock.Now() < record.Lock.Expiration {
		expiration := record.Lock.Expiration
		info.LockedUntil = &expiration
	}
	return info
}

// FindActiveDeployment returns the owner's most recent non-finalized
// deployment, if any. One owner may only run one deployment at a time.
func (d *Driver) FindActiveDeployment(owner types.Principal) (*types.DeploymentRecord, bool) {
	var active *types.DeploymentRecord
	d.store.IterateByOwner(owner, true, func(id types.DeploymentID) bool {
		record, err := d.store.Deployment(id)
		if err != nil {
			return false
		}
		if !record.State.Terminal() {
			active = record
		}
		return false
	})
	return active, active != nil
}
