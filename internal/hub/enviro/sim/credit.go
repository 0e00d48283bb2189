package sim

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// CreditAuthority is an in-memory credit top-up and creation authority.
type CreditAuthority struct {
	mu sync.Mutex

	rate    types.ConversionRate
	credits types.Credits

	// RefuseTopUp makes the next NotifyTopUp fail with the given refusal.
	RefuseTopUp *enviro.TopUpRefusedError

	// RefundCreation makes CreateInstance refund instead of provisioning.
	RefundCreation *enviro.CreationRefundedError

	provisioner *Provisioner
}

// NewCreditAuthority builds an authority that provisions through the given
// simulated provisioner when instance creation succeeds.
func NewCreditAuthority(rate types.ConversionRate, provisioner *Provisioner) *CreditAuthority {
	return &CreditAuthority{rate: rate, provisioner: provisioner}
}

// Credits reports the credits accumulated from successful top-ups.
func (c *CreditAuthority) Credits() types.Credits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credits
}

func (c *CreditAuthority) ConversionRate(context.Context) (types.ConversionRate, error) {
	return c.rate, nil
}

func (c *CreditAuthority) NotifyTopUp(_ context.Context, _ types.Principal, transferRef uint64) (types.Credits, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.RefuseTopUp != nil {
		refusal := c.RefuseTopUp
		c.RefuseTopUp = nil
		refusal.TransferRef = &transferRef
		return 0, refusal
	}

	minted := c.rate.CreditsPerToken * 100
	c.credits += minted
	return minted, nil
}

func (c *CreditAuthority) CreateInstance(ctx context.Context, _ types.Principal, settings types.InstanceSettings, _ string) (types.InstanceID, error) {
	c.mu.Lock()
	refund := c.RefundCreation
	c.RefundCreation = nil
	c.mu.Unlock()

	if refund != nil {
		return "", refund
	}
	return c.provisioner.CreateInstance(ctx, settings, settings.InitialCredits)
}

var _ enviro.CreditAuthority = (*CreditAuthority)(nil)

func newInstanceID() types.InstanceID {
	return types.InstanceID(uuid.NewString())
}
