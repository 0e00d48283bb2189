package types

// ExpenseBreakdown is the expense snapshot captured on a deployment record
// when it is created. All later recomputation uses this snapshot, never the
// live config, so the reserved amount stays stable for the saga's lifetime.
type ExpenseBreakdown struct {
	DeploymentCreditsCost  Credits        `json:"deployment_credits_cost"`
	InstanceInitialCredits Credits        `json:"instance_initial_credits"`
	BufferPermyriad        uint64         `json:"buffer_permyriad"`
	DecimalPlaces          uint8          `json:"decimal_places"`
	ConversionRate         ConversionRate `json:"conversion_rate"`
}
