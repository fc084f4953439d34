package market

import (
	"sort"

	"custody_go/internal/domain"
)

// Directory is the listing table keyed by asset id.
type Directory struct {
	listings map[domain.AssetID]domain.Listing
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{listings: make(map[domain.AssetID]domain.Listing)}
}

// Get returns the listing for id.
func (d *Directory) Get(id domain.AssetID) (domain.Listing, bool) {
	l, ok := d.listings[id]
	return l, ok
}

// Put inserts or overwrites the listing for l.AssetID.
func (d *Directory) Put(l domain.Listing) {
	d.listings[l.AssetID] = l
}

// Delete removes the listing for id.
func (d *Directory) Delete(id domain.AssetID) {
	delete(d.listings, id)
}

// Len returns the number of open listings.
func (d *Directory) Len() int {
	return len(d.listings)
}

// All returns every listing sorted by asset id.
func (d *Directory) All() []domain.Listing {
	result := make([]domain.Listing, 0, len(d.listings))
	for _, l := range d.listings {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssetID < result[j].AssetID
	})
	return result
}

// Restore replaces the directory contents.
func (d *Directory) Restore(listings []domain.Listing) {
	d.listings = make(map[domain.AssetID]domain.Listing, len(listings))
	for _, l := range listings {
		d.listings[l.AssetID] = l
	}
}
