// Package market lists assets for sale and settles purchases as one
// indivisible exchange across the ledger, the registry and the listings.
package market

import (
	"fmt"

	"custody_go/internal/domain"
	"custody_go/pkg/quant"
)

// Market orchestrates listings over injected ledger and registry
// capabilities. It keeps no state besides the listing directory and, like
// them, expects a single writer.
type Market struct {
	ledger   domain.Fungible
	registry domain.NonFungible
	listings *Directory

	// Boundary: called after a sale is fully committed
	onSale []func(domain.Sale)
}

// New creates a market over ledger and registry with an empty directory.
func New(ledger domain.Fungible, registry domain.NonFungible) *Market {
	return &Market{
		ledger:   ledger,
		registry: registry,
		listings: NewDirectory(),
	}
}

// OnSale registers fn to run after every committed sale. fn may call back
// into the market; it will observe the completed exchange.
func (m *Market) OnSale(fn func(domain.Sale)) {
	m.onSale = append(m.onSale, fn)
}

// Directory exposes the listing table for queries and persistence.
func (m *Market) Directory() *Directory {
	return m.listings
}

// Listing returns the open listing for id.
func (m *Market) Listing(id domain.AssetID) (domain.Listing, bool) {
	return m.listings.Get(id)
}

// Listings returns all open listings sorted by asset id, stale ones included.
func (m *Market) Listings() []domain.Listing {
	return m.listings.All()
}

// CreateListing offers id for price. Only the current owner may list, and a
// new listing replaces any previous one for the same asset.
func (m *Market) CreateListing(caller domain.Principal, id domain.AssetID, price quant.Amount) error {
	owner, ok := m.registry.OwnerOf(id)
	if !ok || owner != caller {
		return domain.Errorf(domain.ErrNotOwner, "%s does not own asset %d", caller, id)
	}
	if price == 0 {
		return domain.Errorf(domain.ErrInvalidAmount, "listing price of zero")
	}
	m.listings.Put(domain.Listing{AssetID: id, Seller: caller, Price: price})
	return nil
}

// CancelListing removes the listing for id. Only its seller may cancel,
// even when the listing has gone stale.
func (m *Market) CancelListing(caller domain.Principal, id domain.AssetID) error {
	l, ok := m.listings.Get(id)
	if !ok || l.Seller != caller {
		return domain.Errorf(domain.ErrNotOwner, "%s has no listing for asset %d", caller, id)
	}
	m.listings.Delete(id)
	return nil
}

// Buy executes the exchange for listing id: debit buyer, credit seller,
// transfer ownership, delete listing. Every check runs before the first
// write; on any error nothing has changed.
func (m *Market) Buy(buyer domain.Principal, id domain.AssetID) (domain.Sale, error) {
	sale, err := m.validate(buyer, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := m.commit(sale); err != nil {
		return domain.Sale{}, err
	}

	// Hand-off happens only once all state is committed.
	for _, fn := range m.onSale {
		fn(sale)
	}
	return sale, nil
}

func (m *Market) validate(buyer domain.Principal, id domain.AssetID) (domain.Sale, error) {
	// 1. Listing present
	l, ok := m.listings.Get(id)
	if !ok {
		return domain.Sale{}, domain.Errorf(domain.ErrNotListed, "asset %d", id)
	}

	// 2. Seller still owns the asset (ownership may have moved outside the market)
	owner, ok := m.registry.OwnerOf(id)
	if !ok || owner != l.Seller {
		return domain.Sale{}, domain.Errorf(domain.ErrNotOwner, "listing for asset %d is stale: seller %s", id, l.Seller)
	}

	// 3. Buyer can pay and seller can be credited
	if err := m.ledger.CheckTransfer(l.Price, buyer, l.Seller); err != nil {
		return domain.Sale{}, err
	}

	return domain.Sale{AssetID: id, Seller: l.Seller, Buyer: buyer, Price: l.Price}, nil
}

// commit applies the validated sale. A failure here means a capability
// broke its CheckTransfer contract; earlier steps are compensated so the
// exchange still leaves no partial state behind.
func (m *Market) commit(s domain.Sale) error {
	if err := m.ledger.Transfer(s.Price, s.Buyer, s.Seller); err != nil {
		return fmt.Errorf("%w: payment after validation: %v", domain.ErrInvariant, err)
	}
	if err := m.registry.TransferOwnership(s.AssetID, s.Seller, s.Buyer); err != nil {
		if rerr := m.ledger.Transfer(s.Price, s.Seller, s.Buyer); rerr != nil {
			return fmt.Errorf("%w: ownership transfer: %v; refund: %v", domain.ErrInvariant, err, rerr)
		}
		return fmt.Errorf("%w: ownership transfer after validation: %v", domain.ErrInvariant, err)
	}
	m.listings.Delete(s.AssetID)
	return nil
}
