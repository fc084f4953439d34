// Package ledger holds fungible balances keyed by principal.
//
// A Ledger is a single-writer object: it does no locking of its own and
// relies on its orchestrator (the engine sequencer) for serialization.
package ledger

import (
	"fmt"
	"sort"

	"custody_go/internal/access"
	"custody_go/internal/domain"
	"custody_go/pkg/quant"
	"custody_go/pkg/safe"
)

// Ledger is the account balance table plus its total supply.
type Ledger struct {
	guard    *access.Guard
	balances map[domain.Principal]quant.Amount
	supply   quant.Amount
}

var _ domain.Fungible = (*Ledger)(nil)

// New creates an empty ledger whose mint is restricted by guard.
func New(guard *access.Guard) *Ledger {
	return &Ledger{
		guard:    guard,
		balances: make(map[domain.Principal]quant.Amount),
	}
}

// BalanceOf returns the balance of p; unknown principals hold zero.
func (l *Ledger) BalanceOf(p domain.Principal) quant.Amount {
	return l.balances[p]
}

// Supply returns the sum of all balances.
func (l *Ledger) Supply() quant.Amount {
	return l.supply
}

// CheckTransfer validates a transfer without applying it.
func (l *Ledger) CheckTransfer(amount quant.Amount, from, to domain.Principal) error {
	if amount == 0 {
		return domain.Errorf(domain.ErrInvalidAmount, "transfer of zero")
	}
	if from.IsZero() || to.IsZero() {
		return domain.Errorf(domain.ErrInvalidPrincipal, "transfer %q -> %q", from, to)
	}
	if have := l.balances[from]; have < amount {
		return domain.Errorf(domain.ErrInsufficientBalance, "%s needs %d, has %d", from, amount, have)
	}
	if from == to {
		return nil
	}
	if _, ok := safe.Add(uint64(l.balances[to]), uint64(amount), uint64(quant.MaxAmount)); !ok {
		return domain.Errorf(domain.ErrOverflow, "credit of %d to %s", amount, to)
	}
	return nil
}

// Transfer moves amount from one account to another. All checks run before
// the first write, and debit and credit happen together.
func (l *Ledger) Transfer(amount quant.Amount, from, to domain.Principal) error {
	if err := l.CheckTransfer(amount, from, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	l.set(from, l.balances[from]-amount)
	l.set(to, l.balances[to]+amount)
	return nil
}

// Mint creates amount new units for to. Only the owner may mint.
func (l *Ledger) Mint(caller domain.Principal, amount quant.Amount, to domain.Principal) error {
	if err := l.guard.RequireOwner(caller); err != nil {
		return err
	}
	if amount == 0 {
		return domain.Errorf(domain.ErrInvalidAmount, "mint of zero")
	}
	if to.IsZero() {
		return domain.Errorf(domain.ErrInvalidPrincipal, "mint to empty principal")
	}
	supply, ok := safe.Add(uint64(l.supply), uint64(amount), uint64(quant.MaxAmount))
	if !ok {
		return domain.Errorf(domain.ErrOverflow, "supply %d + %d", l.supply, amount)
	}
	// supply bounds every balance, so the credit below cannot overflow
	l.supply = quant.Amount(supply)
	l.set(to, l.balances[to]+amount)
	return nil
}

// Burn destroys amount units held by from. The holder or the owner may burn.
func (l *Ledger) Burn(caller domain.Principal, amount quant.Amount, from domain.Principal) error {
	if caller != from {
		if err := l.guard.RequireOwner(caller); err != nil {
			return err
		}
	}
	if amount == 0 {
		return domain.Errorf(domain.ErrInvalidAmount, "burn of zero")
	}
	left, ok := safe.Sub(uint64(l.balances[from]), uint64(amount))
	if !ok {
		return domain.Errorf(domain.ErrInsufficientBalance, "%s needs %d, has %d", from, amount, l.balances[from])
	}
	supply, ok := safe.Sub(uint64(l.supply), uint64(amount))
	if !ok {
		return fmt.Errorf("%w: burn of %d exceeds supply %d", domain.ErrInvariant, amount, l.supply)
	}
	l.set(from, quant.Amount(left))
	l.supply = quant.Amount(supply)
	return nil
}

// set writes a balance, dropping empty accounts from the table.
func (l *Ledger) set(p domain.Principal, v quant.Amount) {
	if v == 0 {
		delete(l.balances, p)
		return
	}
	l.balances[p] = v
}

// VerifyInvariant checks that balances sum to the supply.
func (l *Ledger) VerifyInvariant() error {
	var sum uint64
	for p, v := range l.balances {
		var ok bool
		if sum, ok = safe.Add(sum, uint64(v), uint64(quant.MaxAmount)); !ok {
			return fmt.Errorf("%w: balance sum overflows at %s", domain.ErrInvariant, p)
		}
	}
	if quant.Amount(sum) != l.supply {
		return fmt.Errorf("%w: balances sum to %d, supply is %d", domain.ErrInvariant, sum, l.supply)
	}
	return nil
}

// Account is a principal with its balance.
type Account struct {
	Principal domain.Principal `json:"principal"`
	Balance   quant.Amount     `json:"balance"`
}

// Snapshot returns every non-empty account sorted by principal.
func (l *Ledger) Snapshot() []Account {
	result := make([]Account, 0, len(l.balances))
	for p, v := range l.balances {
		result = append(result, Account{Principal: p, Balance: v})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Principal < result[j].Principal
	})
	return result
}

// Restore replaces the ledger contents with accounts and recomputes supply.
func (l *Ledger) Restore(accounts []Account) error {
	balances := make(map[domain.Principal]quant.Amount, len(accounts))
	var supply uint64
	for _, a := range accounts {
		if a.Balance == 0 {
			continue
		}
		var ok bool
		if supply, ok = safe.Add(supply, uint64(a.Balance), uint64(quant.MaxAmount)); !ok {
			return domain.Errorf(domain.ErrOverflow, "restored supply exceeds maximum")
		}
		balances[a.Principal] = a.Balance
	}
	l.balances = balances
	l.supply = quant.Amount(supply)
	return nil
}
