// Package factory mints new unique assets.
package factory

import (
	"custody_go/internal/access"
	"custody_go/internal/domain"
)

// Minter is the registry capability the factory delegates to.
type Minter interface {
	MintNew(to domain.Principal) (domain.AssetID, error)
}

// Factory gates asset minting behind the access guard.
type Factory struct {
	guard  *access.Guard
	minter Minter
}

// New creates a factory minting into m.
func New(guard *access.Guard, m Minter) *Factory {
	return &Factory{guard: guard, minter: m}
}

// Mint creates a new asset owned by to. Only the owner may mint.
func (f *Factory) Mint(caller, to domain.Principal) (domain.AssetID, error) {
	if err := f.guard.RequireOwner(caller); err != nil {
		return 0, err
	}
	return f.minter.MintNew(to)
}
