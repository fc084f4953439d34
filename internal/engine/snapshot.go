package engine

import (
	"custody_go/internal/domain"
	"custody_go/internal/ledger"
	"custody_go/internal/registry"
)

// Snapshot is a full copy of the persisted tables as of Seq.
type Snapshot struct {
	Seq          uint64                `json:"seq"`
	Accounts     []ledger.Account      `json:"accounts"`
	Ownerships   []registry.Ownership  `json:"ownerships"`
	LastAssetID  domain.AssetID        `json:"last_asset_id"`
	Listings     []domain.Listing      `json:"listings"`
	Escrows      []domain.EscrowRecord `json:"escrows"`
	LastEscrowID domain.EscrowID       `json:"last_escrow_id"`
}

// Snapshot copies the current state, labelled with seq.
func (s *State) Snapshot(seq uint64) Snapshot {
	return Snapshot{
		Seq:          seq,
		Accounts:     s.Ledger.Snapshot(),
		Ownerships:   s.Registry.Snapshot(),
		LastAssetID:  s.Registry.LastID(),
		Listings:     s.Market.Listings(),
		Escrows:      s.Escrow.Snapshot(),
		LastEscrowID: s.Escrow.LastID(),
	}
}

// Restore replaces the state with snap.
func (s *State) Restore(snap Snapshot) error {
	if err := s.Ledger.Restore(snap.Accounts); err != nil {
		return err
	}
	if err := s.Registry.Restore(snap.Ownerships, snap.LastAssetID); err != nil {
		return err
	}
	if err := s.Escrow.Restore(snap.Escrows, snap.LastEscrowID); err != nil {
		return err
	}
	s.Market.Directory().Restore(snap.Listings)
	return nil
}
