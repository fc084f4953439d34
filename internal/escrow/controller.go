package escrow

import (
	"fmt"
	"sort"

	"custody_go/internal/domain"
	"custody_go/pkg/quant"
	"custody_go/pkg/safe"
)

// Controller owns the escrow records and moves deposits through the
// injected ledger. It is single-writer.
type Controller struct {
	ledger  domain.Fungible
	records map[domain.EscrowID]*domain.EscrowRecord
	lastID  domain.EscrowID

	// Boundary: called after a transition is committed
	onTransition []func(domain.EscrowRecord)
}

// NewController creates a controller moving funds on ledger.
func NewController(ledger domain.Fungible) *Controller {
	return &Controller{
		ledger:  ledger,
		records: make(map[domain.EscrowID]*domain.EscrowRecord),
	}
}

// OnTransition registers fn to run after every committed state change.
func (c *Controller) OnTransition(fn func(domain.EscrowRecord)) {
	c.onTransition = append(c.onTransition, fn)
}

// Get returns a copy of the record for id.
func (c *Controller) Get(id domain.EscrowID) (domain.EscrowRecord, bool) {
	r, ok := c.records[id]
	if !ok {
		return domain.EscrowRecord{}, false
	}
	return *r, true
}

// LastID returns the most recently opened escrow id.
func (c *Controller) LastID() domain.EscrowID {
	return c.lastID
}

// Open creates an empty escrow between depositor and counterparty.
func (c *Controller) Open(depositor, counterparty domain.Principal) (domain.EscrowID, error) {
	if depositor.IsZero() || counterparty.IsZero() || depositor == counterparty ||
		depositor.IsReserved() || counterparty.IsReserved() {
		return 0, domain.Errorf(domain.ErrInvalidPrincipal, "escrow between %q and %q", depositor, counterparty)
	}
	next, ok := safe.Inc(uint64(c.lastID), uint64(quant.MaxAmount))
	if !ok {
		return 0, domain.Errorf(domain.ErrOverflow, "escrow id counter exhausted")
	}
	id := domain.EscrowID(next)
	c.lastID = id
	c.records[id] = &domain.EscrowRecord{
		ID:           id,
		Depositor:    depositor,
		Counterparty: counterparty,
		State:        domain.EscrowEmpty,
	}
	return id, nil
}

// Deposit moves amount from the depositor into custody. Valid once, from Empty.
func (c *Controller) Deposit(caller domain.Principal, id domain.EscrowID, amount quant.Amount) error {
	r, err := c.load(id)
	if err != nil {
		return err
	}
	if caller != r.Depositor {
		return domain.Errorf(domain.ErrNotAuthorized, "%s is not the depositor of escrow %d", caller, id)
	}
	if err := requireState(r, domain.EscrowEmpty, "deposit"); err != nil {
		return err
	}
	if err := c.ledger.Transfer(amount, r.Depositor, domain.EscrowCustody(id)); err != nil {
		return err
	}
	r.Amount = amount
	r.State = domain.EscrowPending
	c.notify(r)
	return nil
}

// Approve records caller's consent. The second distinct approval moves the
// escrow to Approved.
func (c *Controller) Approve(caller domain.Principal, id domain.EscrowID) error {
	r, err := c.loadForParty(caller, id)
	if err != nil {
		return err
	}
	if err := requireState(r, domain.EscrowPending, "approve"); err != nil {
		return err
	}

	flag := &r.CounterpartyApproved
	if caller == r.Depositor {
		flag = &r.DepositorApproved
	}
	if *flag {
		return domain.Errorf(domain.ErrInvalidState, "%s already approved escrow %d", caller, id)
	}
	*flag = true
	if r.DepositorApproved && r.CounterpartyApproved {
		r.State = domain.EscrowApproved
	}
	c.notify(r)
	return nil
}

// Release pays the held amount to the counterparty. Valid only from Approved.
func (c *Controller) Release(caller domain.Principal, id domain.EscrowID) error {
	return c.settle(caller, id, domain.EscrowApproved, domain.EscrowCompleted, "release")
}

// Refund returns the held amount to the depositor. Valid only from Pending.
func (c *Controller) Refund(caller domain.Principal, id domain.EscrowID) error {
	return c.settle(caller, id, domain.EscrowPending, domain.EscrowCancelled, "refund")
}

func (c *Controller) settle(caller domain.Principal, id domain.EscrowID, from, to domain.EscrowState, op string) error {
	r, err := c.loadForParty(caller, id)
	if err != nil {
		return err
	}
	if err := requireState(r, from, op); err != nil {
		return err
	}

	dest := r.Counterparty
	if to == domain.EscrowCancelled {
		dest = r.Depositor
	}
	custody := domain.EscrowCustody(id)
	if err := c.ledger.CheckTransfer(r.Amount, custody, dest); err != nil {
		return err
	}

	// Record first, then pay: a re-entrant call already sees the terminal state.
	amount := r.Amount
	r.Amount = 0
	r.State = to
	if err := c.ledger.Transfer(amount, custody, dest); err != nil {
		r.Amount = amount
		r.State = from
		return fmt.Errorf("%w: %s payout after validation: %v", domain.ErrInvariant, op, err)
	}
	c.notify(r)
	return nil
}

func (c *Controller) load(id domain.EscrowID) (*domain.EscrowRecord, error) {
	r, ok := c.records[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrUnknownEscrow, "escrow %d", id)
	}
	return r, nil
}

func (c *Controller) loadForParty(caller domain.Principal, id domain.EscrowID) (*domain.EscrowRecord, error) {
	r, err := c.load(id)
	if err != nil {
		return nil, err
	}
	if !r.IsParty(caller) {
		return nil, domain.Errorf(domain.ErrNotAuthorized, "%s is not a party to escrow %d", caller, id)
	}
	return r, nil
}

func requireState(r *domain.EscrowRecord, want domain.EscrowState, op string) error {
	if r.State != want {
		return domain.Errorf(domain.ErrInvalidState, "%s on escrow %d in state %s", op, r.ID, r.State)
	}
	return nil
}

func (c *Controller) notify(r *domain.EscrowRecord) {
	snapshot := *r
	for _, fn := range c.onTransition {
		fn(snapshot)
	}
}

// Snapshot returns every record sorted by id.
func (c *Controller) Snapshot() []domain.EscrowRecord {
	result := make([]domain.EscrowRecord, 0, len(c.records))
	for _, r := range c.records {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Restore replaces all records and the id counter.
func (c *Controller) Restore(records []domain.EscrowRecord, lastID domain.EscrowID) error {
	m := make(map[domain.EscrowID]*domain.EscrowRecord, len(records))
	for i := range records {
		r := records[i]
		if r.ID == 0 || r.ID > lastID {
			return domain.Errorf(domain.ErrInvariant, "escrow %d outside counter %d", r.ID, lastID)
		}
		m[r.ID] = &r
	}
	c.records = m
	c.lastID = lastID
	return nil
}
