// Package event defines the committed-state notifications the engine
// publishes after each successful command.
package event

import (
	"custody_go/internal/domain"
	"custody_go/pkg/quant"
)

// Type names an event kind on the wire.
type Type string

const (
	TypeTransfer Type = "transfer"
	TypeMint     Type = "mint"
	TypeBurn     Type = "burn"
	TypeAsset    Type = "asset"
	TypeListing  Type = "listing"
	TypeSale     Type = "sale"
	TypeEscrow   Type = "escrow"
)

// Event is anything the sequencer publishes.
type Event interface {
	GetSeq() uint64
	GetType() Type
}

// BaseEvent carries the sequence number and commit time (unix micros).
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"`
}

func (b BaseEvent) GetSeq() uint64 { return b.Seq }

// BalanceEvent reports a transfer, mint or burn on the ledger.
type BalanceEvent struct {
	BaseEvent
	Kind   Type             `json:"kind"`
	From   domain.Principal `json:"from,omitempty"`
	To     domain.Principal `json:"to,omitempty"`
	Amount quant.Amount     `json:"amount"`
}

func (e *BalanceEvent) GetType() Type { return e.Kind }

// AssetAction is what happened to an asset in the registry.
type AssetAction string

const (
	AssetMinted      AssetAction = "minted"
	AssetTransferred AssetAction = "transferred"
	AssetBurned      AssetAction = "burned"
)

// AssetEvent reports a registry change outside the market.
type AssetEvent struct {
	BaseEvent
	Action  AssetAction      `json:"action"`
	AssetID domain.AssetID   `json:"asset_id"`
	From    domain.Principal `json:"from,omitempty"`
	To      domain.Principal `json:"to,omitempty"`
}

func (e *AssetEvent) GetType() Type { return TypeAsset }

// ListingEvent reports a listing being opened (Open=true) or withdrawn.
type ListingEvent struct {
	BaseEvent
	Listing domain.Listing `json:"listing"`
	Open    bool           `json:"open"`
}

func (e *ListingEvent) GetType() Type { return TypeListing }

// SaleEvent reports a completed exchange.
type SaleEvent struct {
	BaseEvent
	Sale domain.Sale `json:"sale"`
}

func (e *SaleEvent) GetType() Type { return TypeSale }

// EscrowEvent reports an escrow record after a transition.
type EscrowEvent struct {
	BaseEvent
	Record domain.EscrowRecord `json:"record"`
	State  string              `json:"state"`
}

func (e *EscrowEvent) GetType() Type { return TypeEscrow }
