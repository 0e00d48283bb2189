// Package sim provides in-process implementations of the capability
// interfaces. They back the local development mode and the orchestrator
// tests; they model external-service behavior (balances, fees, refusals),
// not the services' internals.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// Ledger is an in-memory funding ledger. Account balances are keyed by
// owner|subaccount; hub subaccount balances are keyed by subaccount alone.
type Ledger struct {
	mu sync.Mutex

	fee         types.Tokens
	accounts    map[string]types.Tokens
	subaccounts map[string]types.Tokens
	allowances  map[string]enviro.Allowance
	transferSeq uint64

	// FailTransfers makes every transfer return an error, for retry tests.
	FailTransfers bool
}

// NewLedger creates a ledger with the given flat transfer fee.
func NewLedger(fee types.Tokens) *Ledger {
	return &Ledger{
		fee:         fee,
		accounts:    make(map[string]types.Tokens),
		subaccounts: make(map[string]types.Tokens),
		allowances:  make(map[string]enviro.Allowance),
	}
}

func accountKey(account types.LedgerAccount) string {
	return string(account.Owner) + "|" + account.Subaccount
}

func allowanceKey(account types.LedgerAccount, spender types.Principal) string {
	return accountKey(account) + "|" + string(spender)
}

// SetBalance seeds an account balance.
func (l *Ledger) SetBalance(account types.LedgerAccount, amount types.Tokens) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[accountKey(account)] = amount
}

// SetAllowance seeds a delegated allowance.
func (l *Ledger) SetAllowance(account types.LedgerAccount, spender types.Principal, allowance enviro.Allowance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey(account, spender)] = allowance
}

// Credit seeds a hub subaccount balance, for resume tests.
func (l *Ledger) Credit(subaccount string, amount types.Tokens) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subaccounts[subaccount] += amount
}

// SubaccountBalanceNow reads a hub subaccount balance outside the interface,
// for assertions.
func (l *Ledger) SubaccountBalanceNow(subaccount string) types.Tokens {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subaccounts[subaccount]
}

func (l *Ledger) Fee(context.Context) (types.Tokens, error) {
	return l.fee, nil
}

func (l *Ledger) AccountBalance(_ context.Context, account types.LedgerAccount) (types.Tokens, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[accountKey(account)], nil
}

func (l *Ledger) SubaccountBalance(_ context.Context, subaccount string) (types.Tokens, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subaccounts[subaccount], nil
}

func (l *Ledger) TransferFrom(_ context.Context, args enviro.TransferFromArgs) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailTransfers {
		return 0, fmt.Errorf("ledger unavailable")
	}

	total := args.Amount + args.Fee
	fromKey := accountKey(args.From)
	if l.accounts[fromKey] < total {
		return 0, fmt.Errorf("insufficient funds on %s", fromKey)
	}

	aKey := allowanceKey(args.From, args.Spender)
	allowance := l.allowances[aKey]
	if allowance.Amount < total {
		return 0, fmt.Errorf("insufficient allowance for spender %s", args.Spender)
	}

	l.accounts[fromKey] -= total
	allowance.Amount -= total
	l.allowances[aKey] = allowance
	l.subaccounts[args.To.Subaccount] += args.Amount

	l.transferSeq++
	return l.transferSeq, nil
}

func (l *Ledger) Transfer(_ context.Context, fromSubaccount string, to types.LedgerAccount, amount, fee types.Tokens, _ uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailTransfers {
		return 0, fmt.Errorf("ledger unavailable")
	}

	total := amount + fee
	if l.subaccounts[fromSubaccount] < total {
		return 0, fmt.Errorf("insufficient funds on subaccount %s", fromSubaccount)
	}

	l.subaccounts[fromSubaccount] -= total
	if to.Subaccount != "" && to.Owner == "" {
		l.subaccounts[to.Subaccount] += amount
	} else {
		l.accounts[accountKey(to)] += amount
	}

	l.transferSeq++
	return l.transferSeq, nil
}

func (l *Ledger) Allowance(_ context.Context, account types.LedgerAccount, spender types.Principal) (enviro.Allowance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[allowanceKey(account, spender)], nil
}
