// Package expenses computes the funding-token amount a deployer must have
// approved before a deployment starts. Pure arithmetic, no I/O.
package expenses

import (
	"errors"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

var (
	// ErrCalculation is returned when the expense arithmetic overflows or
	// the conversion rate is zero.
	ErrCalculation = errors.New("failed to calculate deployment expense amount")

	// ErrDecimalPlaces is returned when the rounding precision exceeds the
	// 8 fractional digits of the token representation.
	ErrDecimalPlaces = errors.New("decimal places out of range")
)

// Calculator derives token amounts from an expense breakdown snapshot.
type Calculator struct {
	expenses types.ExpenseBreakdown
}

// NewCalculator builds a Calculator over the given snapshot.
func NewCalculator(expenses types.ExpenseBreakdown) *Calculator {
	return &Calculator{expenses: expenses}
}

// BaseAmount converts the total credit cost into tokens:
// floor((deployment_cost + instance_credits) / rate).
func (c *Calculator) BaseAmount() (types.Tokens, error) {
	rate := c.expenses.ConversionRate.CreditsPerToken
	if rate == 0 {
		return 0, ErrCalculation
	}

	total := c.expenses.DeploymentCreditsCost + c.expenses.InstanceInitialCredits
	if total < c.expenses.DeploymentCreditsCost {
		return 0, ErrCalculation
	}

	return total / rate, nil
}

// ReservedAmount applies the buffer and rounding policy to a base amount:
// ceil_to_decimal(amount + amount*buffer/10000, decimal_places).
func (c *Calculator) ReservedAmount(amount types.Tokens) (types.Tokens, error) {
	buffer := amount / 10_000 * c.expenses.BufferPermyriad
	remainder := amount % 10_000 * c.expenses.BufferPermyriad / 10_000
	buffered := amount + buffer + remainder
	if buffered < amount {
		return 0, ErrCalculation
	}

	return CeilToDecimal(buffered, c.expenses.DecimalPlaces)
}

// CeilToDecimal rounds amount up to the nearest multiple of 10^(8-places).
// Amounts are fixed point with 8 fractional digits, so places=8 is identity
// and places>8 is an error.
func CeilToDecimal(amount types.Tokens, places uint8) (types.Tokens, error) {
	if places > 8 {
		return 0, ErrDecimalPlaces
	}

	base := types.Tokens(1)
	for i := uint8(0); i < 8-places; i++ {
		base *= 10
	}

	if amount%base == 0 {
		return amount, nil
	}
	rounded := (amount/base + 1) * base
	if rounded < amount {
		return 0, ErrCalculation
	}
	return rounded, nil
}
