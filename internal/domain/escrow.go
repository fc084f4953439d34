package domain

import (
	"fmt"

	"custody_go/pkg/quant"
)

// EscrowState is the lifecycle tag of an escrow record.
type EscrowState int

const (
	EscrowEmpty EscrowState = iota // opened, nothing deposited yet
	EscrowPending
	EscrowApproved
	EscrowCompleted
	EscrowCancelled
)

// String returns the string representation of EscrowState
func (s EscrowState) String() string {
	switch s {
	case EscrowEmpty:
		return "EMPTY"
	case EscrowPending:
		return "PENDING"
	case EscrowApproved:
		return "APPROVED"
	case EscrowCompleted:
		return "COMPLETED"
	case EscrowCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ParseEscrowState is the inverse of EscrowState.String.
func ParseEscrowState(s string) (EscrowState, error) {
	for st := EscrowEmpty; st <= EscrowCancelled; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown escrow state %q", s)
}

// IsTerminal reports whether no further transition is possible.
func (s EscrowState) IsTerminal() bool {
	return s == EscrowCompleted || s == EscrowCancelled
}

// EscrowRecord is the custody record of one escrow instance.
type EscrowRecord struct {
	ID                   EscrowID     `json:"id"`
	Depositor            Principal    `json:"depositor"`
	Counterparty         Principal    `json:"counterparty"`
	Amount               quant.Amount `json:"amount"`
	DepositorApproved    bool         `json:"depositor_approved"`
	CounterpartyApproved bool         `json:"counterparty_approved"`
	State                EscrowState  `json:"state"`
}

// IsParty reports whether p is the depositor or the counterparty.
func (r *EscrowRecord) IsParty(p Principal) bool {
	return p == r.Depositor || p == r.Counterparty
}

func (s EscrowState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EscrowState) UnmarshalText(b []byte) error {
	st, err := ParseEscrowState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
