package enviro

import "fmt"

// TopUpRefusalKind classifies why a credit authority refused a top-up
// notification. Every refusal is recoverable by switching to external
// conversion; only transient call failures are retried.
type TopUpRefusalKind string

const (
	RefusalRefunded           TopUpRefusalKind = "refunded"
	RefusalInvalidTransaction TopUpRefusalKind = "invalid_transaction"
	RefusalTransactionTooOld  TopUpRefusalKind = "transaction_too_old"
	RefusalOther              TopUpRefusalKind = "other"
)

// TopUpRefusedError is a definitive authority-side refusal of a top-up.
type TopUpRefusedError struct {
	Kind        TopUpRefusalKind
	TransferRef *uint64
	Reason      string
}

func (e *TopUpRefusedError) Error() string {
	return fmt.Sprintf("top-up refused (%s): %s", e.Kind, e.Reason)
}

// CreationRefundedError reports that the credit authority refunded an
// instance-creation request instead of fulfilling it.
type CreationRefundedError struct {
	RefundedCredits uint64
	Reason          string
}

func (e *CreationRefundedError) Error() string {
	return fmt.Sprintf("instance creation refunded %d credits: %s", e.RefundedCredits, e.Reason)
}

// ControllersChangedError reports that instance controllers were updated by
// someone else between read and write. MakeInstanceSelfControlled tolerates
// it by re-checking instance metadata.
type ControllersChangedError struct {
	Reason string
}

func (e *ControllersChangedError) Error() string {
	return fmt.Sprintf("instance controllers changed: %s", e.Reason)
}
