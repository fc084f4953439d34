package domain

import "custody_go/pkg/quant"

// Fungible is the balance capability the market and escrow orchestrate.
// Any ledger honouring this contract can be injected.
type Fungible interface {
	BalanceOf(p Principal) quant.Amount
	// CheckTransfer reports the error Transfer would return, without mutating.
	CheckTransfer(amount quant.Amount, from, to Principal) error
	// Transfer debits from and credits to as one step, or changes nothing.
	Transfer(amount quant.Amount, from, to Principal) error
}

// NonFungible is the ownership capability of an asset registry.
type NonFungible interface {
	OwnerOf(id AssetID) (Principal, bool)
	TransferOwnership(id AssetID, from, to Principal) error
}
