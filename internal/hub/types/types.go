// Package types holds the domain types shared across the hub: deployment
// records, state machine variants, processing events, templates and the
// runtime policy configuration.
package types

// Principal identifies a caller or a service. The empty principal is the
// anonymous caller and is rejected by every mutating entry point.
type Principal string

// Anonymous reports whether the principal is the anonymous caller.
func (p Principal) Anonymous() bool { return p == "" }

// Tokens is a funding-token amount, fixed point with 8 fractional digits.
type Tokens = uint64

// Credits is a compute-credit amount.
type Credits = uint64

// DeploymentID is assigned sequentially by the deployment store.
type DeploymentID = uint64

// DeploymentEventID indexes the global deployment event log.
type DeploymentEventID = uint64

// TemplateID is assigned sequentially by the template store.
type TemplateID = uint64

// InstanceID is the handle of a provisioned compute instance.
type InstanceID string

// LedgerAccount describes a funding-ledger account.
type LedgerAccount struct {
	Owner      Principal `json:"owner"`
	Subaccount string    `json:"subaccount,omitempty"`
}

// TimestampedText carries a free-text value with the moment it was recorded,
// in unix milliseconds.
type TimestampedText struct {
	Time int64  `json:"time"`
	Text string `json:"text"`
}

// Lock is a lease on a deployment record. It is not a mutex: any caller
// presenting the exact (LockID, Expiration) pair may mutate the record, and
// an expired lock only unblocks re-acquisition.
type Lock struct {
	LockID     uint64 `json:"lock_id"`
	Expiration int64  `json:"expiration"`
}
