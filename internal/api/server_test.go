package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody_go/internal/engine"
	"custody_go/internal/event"
	"custody_go/internal/infra"
	"custody_go/internal/infra/auth"
	"custody_go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *httptest.Server
	market *service.MarketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := &infra.Metrics{}
	market := service.NewMarketService(2, "CRD", m)
	seq := engine.NewSequencer(engine.NewState("admin"), nil, func(ev event.Event) {
		market.ProcessEvents(ev)
	}, engine.Options{Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)

	srv := httptest.NewServer(NewServer(seq, market, nil, m, 2).Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{srv: srv, market: market}
}

func (f *fixture) post(t *testing.T, body map[string]any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+"/v1/commands", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAPI_BuyFlow(t *testing.T) {
	f := newFixture(t)

	status, _ := f.post(t, map[string]any{"op": "mint", "caller": "admin", "to": "B", "amount": "2.50"})
	require.Equal(t, http.StatusOK, status)

	status, body := f.post(t, map[string]any{"op": "mint-asset", "caller": "admin", "to": "A"})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["asset_id"])

	status, _ = f.post(t, map[string]any{"op": "create-listing", "caller": "A", "asset_id": 1, "amount": "1.00"})
	require.Equal(t, http.StatusOK, status)

	status, body = f.get(t, "/v1/listings")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["listings"], 1)

	status, body = f.post(t, map[string]any{"op": "buy", "caller": "B", "asset_id": 1})
	require.Equal(t, http.StatusOK, status)
	sale, _ := body["sale"].(map[string]any)
	assert.EqualValues(t, 100, sale["price"])

	_, body = f.get(t, "/v1/balances/A")
	assert.Equal(t, "1.00", body["display"])
	_, body = f.get(t, "/v1/balances/B")
	assert.Equal(t, "1.50", body["display"])

	_, body = f.get(t, "/v1/assets/1")
	assert.Equal(t, "B", body["owner"])
	assert.Nil(t, body["listing"])

	// the read model catches up asynchronously
	require.Eventually(t, func() bool {
		return f.market.Stats().Sales == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, body = f.get(t, "/v1/sales")
	assert.Len(t, body["sales"], 1)
	assert.EqualValues(t, 0, body["open_listings"])

	_, body = f.get(t, "/v1/supply")
	assert.Equal(t, "admin", body["owner"])
	assert.Equal(t, "2.50", body["display"])
}

func TestAPI_ErrorStatus(t *testing.T) {
	f := newFixture(t)
	f.post(t, map[string]any{"op": "mint", "caller": "admin", "to": "A", "amount": "1"})
	f.post(t, map[string]any{"op": "mint-asset", "caller": "admin", "to": "A"})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"unauthorized mint", map[string]any{"op": "mint", "caller": "A", "to": "A", "amount": "1"}, http.StatusForbidden, "NOT_AUTHORIZED"},
		{"list foreign asset", map[string]any{"op": "create-listing", "caller": "B", "asset_id": 1, "amount": "1"}, http.StatusForbidden, "NOT_OWNER"},
		{"overspend", map[string]any{"op": "transfer", "caller": "A", "to": "B", "amount": "5"}, http.StatusConflict, "INSUFFICIENT_BALANCE"},
		{"buy unlisted", map[string]any{"op": "buy", "caller": "A", "asset_id": 1}, http.StatusNotFound, "NOT_LISTED"},
		{"unknown escrow", map[string]any{"op": "escrow.approve", "caller": "A", "escrow_id": 9}, http.StatusNotFound, "UNKNOWN_ESCROW"},
		{"too precise", map[string]any{"op": "transfer", "caller": "A", "to": "B", "amount": "0.001"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"zero amount", map[string]any{"op": "transfer", "caller": "A", "to": "B", "amount": "0"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"unknown field", map[string]any{"op": "transfer", "caller": "A", "bogus": 1}, http.StatusBadRequest, "BAD_JSON"},
		{"unknown op", map[string]any{"op": "steal", "caller": "A"}, http.StatusUnprocessableEntity, "REJECTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.post(t, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(body))
		})
	}
}

func TestAPI_EscrowLookup(t *testing.T) {
	f := newFixture(t)
	f.post(t, map[string]any{"op": "mint", "caller": "admin", "to": "D", "amount": "3"})
	status, body := f.post(t, map[string]any{"op": "escrow.open", "caller": "D", "to": "C"})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["escrow_id"])

	status, _ = f.post(t, map[string]any{"op": "escrow.deposit", "caller": "D", "escrow_id": 1, "amount": "1"})
	require.Equal(t, http.StatusOK, status)

	status, body = f.get(t, "/v1/escrows/1")
	require.Equal(t, http.StatusOK, status)
	rec, _ := body["escrow"].(map[string]any)
	assert.Equal(t, "PENDING", rec["state"])
	assert.Equal(t, "1.00", body["display"])

	status, _ = f.get(t, "/v1/escrows/2")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = f.get(t, "/v1/escrows/abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_Metrics(t *testing.T) {
	f := newFixture(t)
	f.post(t, map[string]any{"op": "mint", "caller": "admin", "to": "A", "amount": "1"})

	status, body := f.get(t, "/v1/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["commands_processed"])
}

func TestAPI_SignedCommands(t *testing.T) {
	m := &infra.Metrics{}
	seq := engine.NewSequencer(engine.NewState("admin"), nil, nil, engine.Options{Metrics: m})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go seq.Run(ctx)

	handler := NewServer(seq, service.NewMarketService(0, "", m), nil, m, 0).
		WithAuth(auth.NewVerifier(map[string]string{"admin": "k1", "A": "k2"}, 30*time.Second))
	srv := httptest.NewServer(handler.Routes())
	defer srv.Close()

	sendWith := func(headers map[string]string, body string) int {
		req, err := http.NewRequest("POST", srv.URL+"/v1/commands", bytes.NewBufferString(body))
		require.NoError(t, err)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	send := func(signer *auth.Signer, body string) int {
		if signer == nil {
			return sendWith(nil, body)
		}
		return sendWith(signer.GenerateHeaders("POST", "/v1/commands", body), body)
	}

	// caller defaults to the signing principal
	assert.Equal(t, http.StatusOK, send(auth.NewSigner("admin", "k1"), `{"op":"mint","to":"A","amount":"10"}`))
	assert.Equal(t, http.StatusUnauthorized, send(nil, `{"op":"mint","caller":"admin","to":"A","amount":"5"}`))
	assert.Equal(t, http.StatusUnauthorized, send(auth.NewSigner("admin", "wrong"), `{"op":"mint","to":"A","amount":"5"}`))
	// A cannot sign a command on admin's behalf
	assert.Equal(t, http.StatusForbidden, send(auth.NewSigner("A", "k2"), `{"op":"mint","caller":"admin","to":"A","amount":"5"}`))

	// a captured request is applied once however often it is resent
	transfer := `{"op":"transfer","to":"B","amount":"1"}`
	headers := auth.NewSigner("A", "k2").GenerateHeaders("POST", "/v1/commands", transfer)
	assert.Equal(t, http.StatusOK, sendWith(headers, transfer))
	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusUnauthorized, sendWith(headers, transfer))
	}
	// re-signing the same body is a new request
	assert.Equal(t, http.StatusOK, send(auth.NewSigner("A", "k2"), transfer))

	seq.View(func(s *engine.State) {
		assert.EqualValues(t, 8, s.Ledger.BalanceOf("A"))
		assert.EqualValues(t, 2, s.Ledger.BalanceOf("B"))
	})
}
