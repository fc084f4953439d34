package engine

import (
	"custody_go/internal/domain"
	"custody_go/pkg/quant"
)

// Op names a state-changing operation.
type Op string

const (
	OpTransfer      Op = "transfer"
	OpMint          Op = "mint"
	OpBurn          Op = "burn"
	OpMintAsset     Op = "mint-asset"
	OpTransferAsset Op = "transfer-asset"
	OpBurnAsset     Op = "burn-asset"
	OpCreateListing Op = "create-listing"
	OpCancelListing Op = "cancel-listing"
	OpBuy           Op = "buy"
	OpEscrowOpen    Op = "escrow.open"
	OpEscrowDeposit Op = "escrow.deposit"
	OpEscrowApprove Op = "escrow.approve"
	OpEscrowRelease Op = "escrow.release"
	OpEscrowRefund  Op = "escrow.refund"
)

// Command is one request to change state. Field use depends on Op:
//
//	transfer        Amount From(=Caller) -> To
//	mint            Amount -> To                 (owner only)
//	burn            Amount from From(=Caller)    (holder or owner)
//	mint-asset      -> To                        (owner only)
//	transfer-asset  AssetID Caller -> To
//	burn-asset      AssetID
//	create-listing  AssetID Amount(price)
//	cancel-listing  AssetID
//	buy             AssetID
//	escrow.open     To(counterparty)
//	escrow.deposit  EscrowID Amount
//	escrow.approve  EscrowID
//	escrow.release  EscrowID
//	escrow.refund   EscrowID
type Command struct {
	Seq       uint64           `json:"seq,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Op        Op               `json:"op"`
	Caller    domain.Principal `json:"caller"`
	From      domain.Principal `json:"from,omitempty"`
	To        domain.Principal `json:"to,omitempty"`
	Amount    quant.Amount     `json:"amount,omitempty"`
	AssetID   domain.AssetID   `json:"asset_id,omitempty"`
	EscrowID  domain.EscrowID  `json:"escrow_id,omitempty"`
}

// Result is what a successful command returns to its caller.
type Result struct {
	Seq      uint64          `json:"seq"`
	AssetID  domain.AssetID  `json:"asset_id,omitempty"`
	EscrowID domain.EscrowID `json:"escrow_id,omitempty"`
	Sale     *domain.Sale    `json:"sale,omitempty"`
}
