// Package api exposes the engine over HTTP. Commands go through the
// sequencer; reads take its read lock or hit the sales read model.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"custody_go/internal/domain"
	"custody_go/internal/engine"
	"custody_go/internal/infra"
	"custody_go/internal/infra/auth"
	"custody_go/internal/service"
	"custody_go/pkg/quant"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const commandTimeout = 5 * time.Second

// Server holds the handlers' dependencies.
type Server struct {
	seq      *engine.Sequencer
	market   *service.MarketService
	feed     http.Handler
	metrics  *infra.Metrics
	decimals int32
	verifier *auth.Verifier
}

// NewServer builds the API. feed may be nil to disable /v1/events.
func NewServer(seq *engine.Sequencer, market *service.MarketService, feed http.Handler, metrics *infra.Metrics, decimals int32) *Server {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Server{seq: seq, market: market, feed: feed, metrics: metrics, decimals: decimals}
}

// WithAuth requires every command to be signed; the signing principal
// becomes the command caller.
func (s *Server) WithAuth(v *auth.Verifier) *Server {
	s.verifier = v
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(api chi.Router) {
		api.Post("/commands", s.postCommand)
		api.Get("/balances/{principal}", s.getBalance)
		api.Get("/supply", s.getSupply)
		api.Get("/assets/{id}", s.getAsset)
		api.Get("/listings", s.getListings)
		api.Get("/escrows/{id}", s.getEscrow)
		api.Get("/sales", s.getSales)
		api.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.metrics.Snapshot())
		})
		if s.feed != nil {
			api.Handle("/events", s.feed)
		}
	})
	return r
}

// commandRequest is the wire form of engine.Command. Amount is a decimal
// string in ledger units ("12.50").
type commandRequest struct {
	Op       engine.Op        `json:"op"`
	Caller   domain.Principal `json:"caller"`
	From     domain.Principal `json:"from,omitempty"`
	To       domain.Principal `json:"to,omitempty"`
	Amount   string           `json:"amount,omitempty"`
	AssetID  domain.AssetID   `json:"asset_id,omitempty"`
	EscrowID domain.EscrowID  `json:"escrow_id,omitempty"`
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_BODY", err.Error())
		return
	}
	var req commandRequest
	if err := decodeJSON(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}

	requestID := middleware.GetReqID(r.Context())
	if s.verifier != nil {
		p, err := s.verifier.Verify(r, body)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		if req.Caller == "" {
			req.Caller = p
		}
		if req.Caller != p {
			writeError(w, http.StatusForbidden, "NOT_AUTHORIZED", "signed by "+string(p)+", caller is "+string(req.Caller))
			return
		}
		requestID = string(p) + ":" + r.Header.Get(auth.HeaderNonce)
	}

	cmd := engine.Command{
		RequestID: requestID,
		Op:        req.Op,
		Caller:    req.Caller,
		From:      req.From,
		To:        req.To,
		AssetID:   req.AssetID,
		EscrowID:  req.EscrowID,
	}
	if req.Amount != "" {
		amount, err := quant.ParseAmount(req.Amount, s.decimals)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
			return
		}
		cmd.Amount = amount
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	res, err := s.seq.Submit(ctx, cmd)
	if err != nil {
		status, code := statusOf(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	p := domain.Principal(chi.URLParam(r, "principal"))
	var bal quant.Amount
	s.seq.View(func(st *engine.State) {
		bal = st.Ledger.BalanceOf(p)
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": p,
		"balance":   bal,
		"display":   bal.Format(s.decimals),
	})
}

func (s *Server) getSupply(w http.ResponseWriter, r *http.Request) {
	var (
		supply quant.Amount
		owner  domain.Principal
	)
	s.seq.View(func(st *engine.State) {
		supply = st.Ledger.Supply()
		owner = st.Guard.Owner()
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":   owner,
		"supply":  supply,
		"display": supply.Format(s.decimals),
		"seq":     s.seq.NextSeq() - 1,
	})
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var (
		owner   domain.Principal
		exists  bool
		burned  bool
		listing domain.Listing
		listed  bool
	)
	s.seq.View(func(st *engine.State) {
		owner, exists = st.Registry.OwnerOf(domain.AssetID(id))
		burned = st.Registry.IsBurned(domain.AssetID(id))
		listing, listed = st.Market.Listing(domain.AssetID(id))
	})
	if !exists && !burned {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "asset "+strconv.FormatUint(id, 10)+" does not exist")
		return
	}

	body := map[string]any{"asset_id": id, "owner": owner, "burned": burned}
	if listed {
		body["listing"] = listing
	}
	if last, ok := s.market.LastSale(domain.AssetID(id)); ok {
		body["last_sale"] = last
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) getListings(w http.ResponseWriter, r *http.Request) {
	var listings []domain.Listing
	s.seq.View(func(st *engine.State) {
		listings = st.Market.Listings()
	})
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var (
		rec   domain.EscrowRecord
		found bool
	)
	s.seq.View(func(st *engine.State) {
		rec, found = st.Escrow.Get(domain.EscrowID(id))
	})
	if !found {
		writeError(w, http.StatusNotFound, "UNKNOWN_ESCROW", "escrow "+strconv.FormatUint(id, 10)+" does not exist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"escrow":  rec,
		"display": rec.Amount.Format(s.decimals),
	})
}

func (s *Server) getSales(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "BAD_QUERY", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	// listings live in engine state; replay does not feed the read model
	var open int
	s.seq.View(func(st *engine.State) {
		open = st.Market.Directory().Len()
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"sales":         s.market.RecentSales(limit),
		"top":           s.market.TopAssets(10),
		"stats":         s.market.Stats(),
		"open_listings": open,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "BAD_ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
