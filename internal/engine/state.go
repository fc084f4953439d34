package engine

import (
	"fmt"

	"custody_go/internal/access"
	"custody_go/internal/domain"
	"custody_go/internal/escrow"
	"custody_go/internal/event"
	"custody_go/internal/factory"
	"custody_go/internal/ledger"
	"custody_go/internal/market"
	"custody_go/internal/registry"
)

// State bundles every component behind one apply function. It is not safe
// for concurrent use; the Sequencer owns it.
type State struct {
	Guard    *access.Guard
	Ledger   *ledger.Ledger
	Registry *registry.Registry
	Factory  *factory.Factory
	Market   *market.Market
	Escrow   *escrow.Controller

	pending []event.Event
}

// NewState wires the components around a fixed owner principal.
func NewState(owner domain.Principal) *State {
	guard := access.NewGuard(owner)
	l := ledger.New(guard)
	r := registry.New()
	s := &State{
		Guard:    guard,
		Ledger:   l,
		Registry: r,
		Factory:  factory.New(guard, r),
		Market:   market.New(l, r),
		Escrow:   escrow.NewController(l),
	}
	s.Market.OnSale(func(sale domain.Sale) {
		s.pending = append(s.pending, &event.SaleEvent{Sale: sale})
	})
	s.Escrow.OnTransition(func(rec domain.EscrowRecord) {
		s.pending = append(s.pending, &event.EscrowEvent{Record: rec, State: rec.State.String()})
	})
	return s
}

// Apply executes cmd and returns the events it committed, stamped with
// cmd.Seq and ts. A failed command changes nothing and emits nothing.
func (s *State) Apply(cmd Command, ts int64) (Result, []event.Event, error) {
	s.pending = s.pending[:0]

	res, err := s.apply(cmd)
	if err != nil {
		s.pending = s.pending[:0]
		return Result{}, nil, &domain.OpError{Op: string(cmd.Op), Seq: cmd.Seq, Err: err}
	}
	res.Seq = cmd.Seq

	evs := make([]event.Event, 0, len(s.pending)+1)
	evs = append(evs, s.pending...)
	if ev := derivedEvent(cmd, res); ev != nil {
		evs = append(evs, ev)
	}
	s.pending = s.pending[:0]

	base := event.BaseEvent{Seq: cmd.Seq, Ts: ts}
	for _, ev := range evs {
		stamp(ev, base)
	}
	return res, evs, nil
}

func (s *State) apply(cmd Command) (Result, error) {
	if err := checkCaller(cmd.Caller); err != nil {
		return Result{}, err
	}
	if cmd.To.IsReserved() {
		return Result{}, domain.Errorf(domain.ErrInvalidPrincipal, "recipient %q is reserved", cmd.To)
	}

	switch cmd.Op {
	case OpTransfer:
		from := defaultTo(cmd.From, cmd.Caller)
		if from != cmd.Caller {
			return Result{}, domain.Errorf(domain.ErrNotAuthorized, "%s cannot spend from %s", cmd.Caller, from)
		}
		return Result{}, s.Ledger.Transfer(cmd.Amount, from, cmd.To)

	case OpMint:
		return Result{}, s.Ledger.Mint(cmd.Caller, cmd.Amount, cmd.To)

	case OpBurn:
		from := defaultTo(cmd.From, cmd.Caller)
		if err := checkCaller(from); err != nil {
			return Result{}, err
		}
		return Result{}, s.Ledger.Burn(cmd.Caller, cmd.Amount, from)

	case OpMintAsset:
		id, err := s.Factory.Mint(cmd.Caller, cmd.To)
		return Result{AssetID: id}, err

	case OpTransferAsset:
		return Result{AssetID: cmd.AssetID}, s.Registry.TransferOwnership(cmd.AssetID, cmd.Caller, cmd.To)

	case OpBurnAsset:
		return Result{AssetID: cmd.AssetID}, s.Registry.Burn(cmd.AssetID, cmd.Caller)

	case OpCreateListing:
		return Result{AssetID: cmd.AssetID}, s.Market.CreateListing(cmd.Caller, cmd.AssetID, cmd.Amount)

	case OpCancelListing:
		return Result{AssetID: cmd.AssetID}, s.Market.CancelListing(cmd.Caller, cmd.AssetID)

	case OpBuy:
		sale, err := s.Market.Buy(cmd.Caller, cmd.AssetID)
		if err != nil {
			return Result{}, err
		}
		return Result{AssetID: cmd.AssetID, Sale: &sale}, nil

	case OpEscrowOpen:
		id, err := s.Escrow.Open(cmd.Caller, cmd.To)
		return Result{EscrowID: id}, err

	case OpEscrowDeposit:
		return Result{EscrowID: cmd.EscrowID}, s.Escrow.Deposit(cmd.Caller, cmd.EscrowID, cmd.Amount)

	case OpEscrowApprove:
		return Result{EscrowID: cmd.EscrowID}, s.Escrow.Approve(cmd.Caller, cmd.EscrowID)

	case OpEscrowRelease:
		return Result{EscrowID: cmd.EscrowID}, s.Escrow.Release(cmd.Caller, cmd.EscrowID)

	case OpEscrowRefund:
		return Result{EscrowID: cmd.EscrowID}, s.Escrow.Refund(cmd.Caller, cmd.EscrowID)

	default:
		return Result{}, fmt.Errorf("unknown op %q", cmd.Op)
	}
}

// checkCaller rejects empty identities and internal custody accounts.
func checkCaller(p domain.Principal) error {
	if p.IsZero() || p.IsReserved() {
		return domain.Errorf(domain.ErrInvalidPrincipal, "caller %q", p)
	}
	return nil
}

func defaultTo(p, fallback domain.Principal) domain.Principal {
	if p.IsZero() {
		return fallback
	}
	return p
}

// derivedEvent builds the event for ops whose component has no observer hook.
func derivedEvent(cmd Command, res Result) event.Event {
	switch cmd.Op {
	case OpTransfer:
		return &event.BalanceEvent{Kind: event.TypeTransfer, From: defaultTo(cmd.From, cmd.Caller), To: cmd.To, Amount: cmd.Amount}
	case OpMint:
		return &event.BalanceEvent{Kind: event.TypeMint, To: cmd.To, Amount: cmd.Amount}
	case OpBurn:
		return &event.BalanceEvent{Kind: event.TypeBurn, From: defaultTo(cmd.From, cmd.Caller), Amount: cmd.Amount}
	case OpMintAsset:
		return &event.AssetEvent{Action: event.AssetMinted, AssetID: res.AssetID, To: cmd.To}
	case OpTransferAsset:
		return &event.AssetEvent{Action: event.AssetTransferred, AssetID: cmd.AssetID, From: cmd.Caller, To: cmd.To}
	case OpBurnAsset:
		return &event.AssetEvent{Action: event.AssetBurned, AssetID: cmd.AssetID, From: cmd.Caller}
	case OpCreateListing:
		return &event.ListingEvent{Listing: listingOf(cmd), Open: true}
	case OpCancelListing:
		return &event.ListingEvent{Listing: listingOf(cmd), Open: false}
	default:
		return nil
	}
}

func listingOf(cmd Command) domain.Listing {
	return domain.Listing{AssetID: cmd.AssetID, Seller: cmd.Caller, Price: cmd.Amount}
}

func stamp(ev event.Event, base event.BaseEvent) {
	switch e := ev.(type) {
	case *event.BalanceEvent:
		e.BaseEvent = base
	case *event.AssetEvent:
		e.BaseEvent = base
	case *event.ListingEvent:
		e.BaseEvent = base
	case *event.SaleEvent:
		e.BaseEvent = base
	case *event.EscrowEvent:
		e.BaseEvent = base
	}
}
