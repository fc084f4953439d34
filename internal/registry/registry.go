// Package registry records the current owner of every unique asset.
package registry

import (
	"math"
	"sort"

	"custody_go/internal/domain"
	"custody_go/pkg/safe"
)

// MaxAssetID is the last identifier the registry will hand out.
const MaxAssetID domain.AssetID = math.MaxInt64

// Registry maps asset identifiers to owners and owns the id counter.
// Like the ledger it is single-writer.
type Registry struct {
	owners map[domain.AssetID]domain.Principal
	burned map[domain.AssetID]struct{}
	lastID domain.AssetID
}

var _ domain.NonFungible = (*Registry)(nil)

// New creates an empty registry; the first minted id is 1.
func New() *Registry {
	return &Registry{
		owners: make(map[domain.AssetID]domain.Principal),
		burned: make(map[domain.AssetID]struct{}),
	}
}

// OwnerOf returns the owner of id. ok is false for unminted or burned assets.
func (r *Registry) OwnerOf(id domain.AssetID) (domain.Principal, bool) {
	p, ok := r.owners[id]
	return p, ok
}

// IsBurned reports whether id was minted and later burned.
func (r *Registry) IsBurned(id domain.AssetID) bool {
	_, ok := r.burned[id]
	return ok
}

// LastID returns the most recently minted identifier, 0 if none.
func (r *Registry) LastID() domain.AssetID {
	return r.lastID
}

// TransferOwnership rewrites the owner of id from -> to.
func (r *Registry) TransferOwnership(id domain.AssetID, from, to domain.Principal) error {
	if err := r.CheckTransferOwnership(id, from, to); err != nil {
		return err
	}
	r.owners[id] = to
	return nil
}

// CheckTransferOwnership validates a transfer without applying it.
func (r *Registry) CheckTransferOwnership(id domain.AssetID, from, to domain.Principal) error {
	owner, ok := r.owners[id]
	if !ok || owner != from {
		return domain.Errorf(domain.ErrNotOwner, "%s does not own asset %d", from, id)
	}
	if to.IsZero() {
		return domain.Errorf(domain.ErrInvalidPrincipal, "transfer of asset %d to empty principal", id)
	}
	return nil
}

// MintNew assigns the next identifier to a new asset owned by to.
func (r *Registry) MintNew(to domain.Principal) (domain.AssetID, error) {
	if to.IsZero() {
		return 0, domain.Errorf(domain.ErrInvalidPrincipal, "mint to empty principal")
	}
	next, ok := safe.Inc(uint64(r.lastID), uint64(MaxAssetID))
	if !ok {
		return 0, domain.Errorf(domain.ErrOverflow, "asset id counter exhausted at %d", r.lastID)
	}
	id := domain.AssetID(next)
	r.lastID = id
	r.owners[id] = to
	return id, nil
}

// Burn removes id from circulation. It stays unowned forever.
func (r *Registry) Burn(id domain.AssetID, from domain.Principal) error {
	owner, ok := r.owners[id]
	if !ok || owner != from {
		return domain.Errorf(domain.ErrNotOwner, "%s does not own asset %d", from, id)
	}
	delete(r.owners, id)
	r.burned[id] = struct{}{}
	return nil
}

// Ownership is one row of the ownership table. Owner is empty when Burned.
type Ownership struct {
	AssetID domain.AssetID   `json:"asset_id"`
	Owner   domain.Principal `json:"owner,omitempty"`
	Burned  bool             `json:"burned,omitempty"`
}

// Snapshot returns every minted asset sorted by id.
func (r *Registry) Snapshot() []Ownership {
	result := make([]Ownership, 0, len(r.owners)+len(r.burned))
	for id, p := range r.owners {
		result = append(result, Ownership{AssetID: id, Owner: p})
	}
	for id := range r.burned {
		result = append(result, Ownership{AssetID: id, Burned: true})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssetID < result[j].AssetID
	})
	return result
}

// Restore replaces the registry contents. lastID must cover every row.
func (r *Registry) Restore(rows []Ownership, lastID domain.AssetID) error {
	owners := make(map[domain.AssetID]domain.Principal, len(rows))
	burned := make(map[domain.AssetID]struct{})
	for _, row := range rows {
		if row.AssetID == 0 || row.AssetID > lastID {
			return domain.Errorf(domain.ErrInvariant, "asset %d outside counter %d", row.AssetID, lastID)
		}
		if row.Burned {
			burned[row.AssetID] = struct{}{}
			continue
		}
		owners[row.AssetID] = row.Owner
	}
	r.owners = owners
	r.burned = burned
	r.lastID = lastID
	return nil
}
