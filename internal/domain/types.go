package domain

import (
	"strconv"
	"strings"

	"custody_go/pkg/quant"
)

// Principal is an opaque caller identity used as the key for balances and
// ownership records.
type Principal string

const custodyPrefix = "escrow:"

// IsZero reports whether p is the empty identity.
func (p Principal) IsZero() bool {
	return p == ""
}

// IsReserved reports whether p is an internal custody account that no
// external caller may act as.
func (p Principal) IsReserved() bool {
	return strings.HasPrefix(string(p), custodyPrefix)
}

// EscrowCustody returns the ledger account that holds the deposit of escrow id.
func EscrowCustody(id EscrowID) Principal {
	return Principal(custodyPrefix + strconv.FormatUint(uint64(id), 10))
}

// AssetID identifies a unique asset. Identifiers start at 1.
type AssetID uint64

// EscrowID identifies an escrow instance. Identifiers start at 1.
type EscrowID uint64

// Listing is an open offer to sell an asset.
type Listing struct {
	AssetID AssetID      `json:"asset_id"`
	Seller  Principal    `json:"seller"`
	Price   quant.Amount `json:"price"`
}

// Sale is emitted once a Buy has been fully committed.
type Sale struct {
	AssetID AssetID      `json:"asset_id"`
	Seller  Principal    `json:"seller"`
	Buyer   Principal    `json:"buyer"`
	Price   quant.Amount `json:"price"`
}
