package service

import (
	"context"
	"sort"
	"sync"

	"custody_go/internal/domain"
	"custody_go/internal/event"
	"custody_go/internal/infra"
	"custody_go/pkg/quant"

	"github.com/shopspring/decimal"
)

// DefaultHistory is how many sales the service keeps for RecentSales.
const DefaultHistory = 1000

// SaleView is a completed sale as shown to API clients.
type SaleView struct {
	Seq     uint64           `json:"seq"`
	Ts      int64            `json:"ts"`
	AssetID domain.AssetID   `json:"asset_id"`
	Seller  domain.Principal `json:"seller"`
	Buyer   domain.Principal `json:"buyer"`
	Price   quant.Amount     `json:"price"`
	Display string           `json:"display"`
}

// MarketStats aggregates the whole sales history.
type MarketStats struct {
	Sales          uint64          `json:"sales"`
	Volume         decimal.Decimal `json:"volume"`
	EscrowsSettled uint64          `json:"escrows_settled"`
	Symbol         string          `json:"symbol"`
}

// MarketService is the read model built from committed sale and escrow
// events. It never touches engine state, so queries do not contend with the
// sequencer. Listings are not tracked here; they are read from the engine.
type MarketService struct {
	mu        sync.RWMutex
	decimals  int32
	symbol    string
	history   []SaleView
	maxLen    int
	lastPrice map[domain.AssetID]SaleView
	stats     MarketStats
	metrics   *infra.Metrics

	eventChan chan event.Event
}

// NewMarketService creates a read model that formats prices with decimals.
func NewMarketService(decimals int32, symbol string, metrics *infra.Metrics) *MarketService {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &MarketService{
		decimals:  decimals,
		symbol:    symbol,
		maxLen:    DefaultHistory,
		lastPrice: make(map[domain.AssetID]SaleView),
		stats:     MarketStats{Volume: decimal.Zero, Symbol: symbol},
		metrics:   metrics,
		eventChan: make(chan event.Event, 1000), // 버스트 대응을 위한 충분한 버퍼
	}
}

// GetEventChan returns the channel for incoming committed events
func (s *MarketService) GetEventChan() chan event.Event {
	return s.eventChan
}

// StartEventProcessor starts a background goroutine to process events from the channel
func (s *MarketService) StartEventProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.eventChan:
				s.ProcessEvents(ev)
			}
		}
	}()
}

// ProcessEvents folds events into the read model. Events must arrive in
// sequence order.
func (s *MarketService) ProcessEvents(evs ...event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range evs {
		switch e := ev.(type) {
		case *event.SaleEvent:
			s.recordSale(e)
		case *event.EscrowEvent:
			if e.Record.State.IsTerminal() {
				s.stats.EscrowsSettled++
				s.metrics.RecordEscrowSettled()
			}
		}
	}
}

// must hold mu
func (s *MarketService) recordSale(e *event.SaleEvent) {
	v := SaleView{
		Seq:     e.Seq,
		Ts:      e.Ts,
		AssetID: e.Sale.AssetID,
		Seller:  e.Sale.Seller,
		Buyer:   e.Sale.Buyer,
		Price:   e.Sale.Price,
		Display: e.Sale.Price.Format(s.decimals),
	}
	s.history = append(s.history, v)
	if len(s.history) > s.maxLen {
		s.history = s.history[len(s.history)-s.maxLen:]
	}
	s.lastPrice[v.AssetID] = v

	s.stats.Sales++
	s.stats.Volume = s.stats.Volume.Add(v.Price.Decimal(s.decimals))
	s.metrics.RecordSale()
}

// RecentSales returns up to limit sales, newest first. limit <= 0 means all.
func (s *MarketService) RecentSales(limit int) []SaleView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]SaleView, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.history[i])
	}
	return result
}

// LastSale returns the most recent sale of asset id.
func (s *MarketService) LastSale(id domain.AssetID) (SaleView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.lastPrice[id]
	return v, ok
}

// TopAssets returns the assets with the highest last sale price.
func (s *MarketService) TopAssets(limit int) []SaleView {
	s.mu.RLock()
	result := make([]SaleView, 0, len(s.lastPrice))
	for _, v := range s.lastPrice {
		result = append(result, v)
	}
	s.mu.RUnlock()

	// Sort by price, then id for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		if result[i].Price != result[j].Price {
			return result[i].Price > result[j].Price
		}
		return result[i].AssetID < result[j].AssetID
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result
}

// Stats returns the aggregate view.
func (s *MarketService) Stats() MarketStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}
