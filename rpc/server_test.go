package rpc

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"maplemarket/core/events"
	"maplemarket/core/genesis"
	"maplemarket/core/types"
	"maplemarket/core/vm"
	"maplemarket/native/account"
	nativecommon "maplemarket/native/common"
	"maplemarket/native/market"
	"maplemarket/native/token"
	"maplemarket/observability/metrics"
	"maplemarket/storage"
)

const testChainID = 77

type env struct {
	t      *testing.T
	server *httptest.Server
	d      *genesis.Deployment
	feed   *events.Feed
	seller *ecdsa.PrivateKey
	buyer  *ecdsa.PrivateKey
	nonces map[common.Address]uint64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newLimitedEnv(t, 1000, 1000)
}

func newLimitedEnv(t *testing.T, perSecond float64, burst int) *env {
	t.Helper()
	seller, err := crypto.GenerateKey()
	require.NoError(t, err)
	buyer, err := crypto.GenerateKey()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	ledger := metrics.NewLedger(reg)
	feed := events.NewFeed()
	host := vm.NewHost(storage.NewMemDB(),
		vm.WithEmitter(events.MultiEmitter{feed, ledger}),
		vm.WithObserver(ledger))
	require.NoError(t, genesis.RegisterContracts(host, nativecommon.NewPauses()))

	spec := &genesis.GenesisSpec{
		Deployer: "0x00000000000000000000000000000000000000d0",
		Market:   genesis.MarketSpec{Admin: "0x00000000000000000000000000000000000000ad", TradingFeeBps: 250},
		Currency: genesis.TokenSpec{Symbol: "JEWEL", Name: "Jewel"},
		Items:    []genesis.TokenSpec{{Symbol: "ITEM", Name: "Item", Mintable: true}},
		Alloc: map[string]map[string]string{
			crypto.PubkeyToAddress(buyer.PublicKey).Hex(): {"JEWEL": "300", "native": "50"},
		},
	}
	d, err := genesis.Build(context.Background(), host, spec, nil)
	require.NoError(t, err)

	srv := New(Config{
		Host:        host,
		Deployment:  d,
		ChainID:     testChainID,
		Feed:        feed,
		Metrics:     ledger,
		Gatherer:    reg,
		TxPerSecond: perSecond,
		TxBurst:     burst,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &env{
		t:      t,
		server: ts,
		d:      d,
		feed:   feed,
		seller: seller,
		buyer:  buyer,
		nonces: make(map[common.Address]uint64),
	}
}

func addr(key *ecdsa.PrivateKey) common.Address { return crypto.PubkeyToAddress(key.PublicKey) }

func (e *env) get(path string, out interface{}) int {
	e.t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *env) post(tx *types.Transaction) (int, []byte) {
	e.t.Helper()
	body, err := json.Marshal(tx)
	require.NoError(e.t, err)
	resp, err := http.Post(e.server.URL+"/v1/transactions", "application/json", bytes.NewReader(body))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, buf.Bytes()
}

func (e *env) signed(key *ecdsa.PrivateKey, to common.Address, data []byte) *types.Transaction {
	e.t.Helper()
	from := addr(key)
	tx := &types.Transaction{ChainID: testChainID, Nonce: e.nonces[from], To: to, Value: new(big.Int), Data: data}
	require.NoError(e.t, tx.Sign(key))
	return tx
}

// submit sends a transaction that must commit.
func (e *env) submit(key *ecdsa.PrivateKey, to common.Address, data []byte) TransactionResponse {
	e.t.Helper()
	status, body := e.post(e.signed(key, to, data))
	require.Equal(e.t, http.StatusOK, status, string(body))
	e.nonces[addr(key)]++
	var resp TransactionResponse
	require.NoError(e.t, json.Unmarshal(body, &resp))
	return resp
}

// listOffer provisions the seller's wallet and lists ten items for 100.
func (e *env) listOffer() common.Address {
	e.t.Helper()
	e.submit(e.seller, e.d.Factory, account.CreateAccountCalldata([]common.Address{e.d.Market}))
	var acct AccountResponse
	require.Equal(e.t, http.StatusOK, e.get("/v1/accounts/"+addr(e.seller).Hex(), &acct))
	require.True(e.t, acct.HasAccount)
	wallet := *acct.Wallet

	item := e.d.Items["ITEM"]
	e.submit(e.seller, item, token.MintCalldata(uint256.NewInt(10)))
	e.submit(e.seller, item, token.TransferCalldata(wallet, uint256.NewInt(10)))
	e.submit(e.seller, wallet, account.ApproveCalldata(item, e.d.Market, uint256.NewInt(10)))
	e.submit(e.seller, wallet, account.ExecuteCalldata(e.d.Market,
		market.CreateOfferCalldata(item, uint256.NewInt(10), uint256.NewInt(100)), nil))
	return wallet
}

func TestHealthAndMarket(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var m MarketResponse
	require.Equal(t, http.StatusOK, e.get("/v1/market", &m))
	require.Equal(t, e.d.Market, m.Address)
	require.Equal(t, e.d.Currency, m.Currency)
	require.Equal(t, e.d.Factory, m.Factory)
	require.Equal(t, uint64(250), m.TradingFeeBps)
	require.Zero(t, m.NumOffers)
	require.Equal(t, e.d.Items, m.Items)
}

func TestListAndSellThroughAPI(t *testing.T) {
	e := newEnv(t)
	wallet := e.listOffer()

	var offers []OfferResponse
	require.Equal(t, http.StatusOK, e.get("/v1/market/offers?status=active", &offers))
	require.Len(t, offers, 1)
	require.Equal(t, wallet, offers[0].Creator)
	require.Equal(t, "10", offers[0].Amount)
	require.Equal(t, "100", offers[0].CostInJewel)
	require.Nil(t, offers[0].Bidder)

	e.submit(e.buyer, e.d.Currency, token.ApproveCalldata(e.d.Market, uint256.NewInt(100)))
	sold := e.submit(e.buyer, e.d.Market, market.BidCalldata(0))
	require.Equal(t, addr(e.buyer), sold.Receipt.From)

	var offer OfferResponse
	require.Equal(t, http.StatusOK, e.get("/v1/market/offers/0", &offer))
	require.Equal(t, "sold", offer.Status)
	require.NotNil(t, offer.Bidder)
	require.Equal(t, addr(e.buyer), *offer.Bidder)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, e.get("/v1/tokens/"+e.d.Currency.Hex()+"/balances/"+wallet.Hex(), &bal))
	require.Equal(t, "98", bal.Balance)
	require.Equal(t, "JEWEL", bal.Symbol)
	require.Equal(t, http.StatusOK, e.get("/v1/tokens/"+e.d.Items["ITEM"].Hex()+"/balances/"+addr(e.buyer).Hex(), &bal))
	require.Equal(t, "10", bal.Balance)
	require.Equal(t, http.StatusOK, e.get("/v1/tokens/native/balances/"+addr(e.buyer).Hex(), &bal))
	require.Equal(t, "50", bal.Balance)

	require.Equal(t, http.StatusOK, e.get("/v1/market/offers?status=active", &offers))
	require.Empty(t, offers)

	var nonce NonceResponse
	require.Equal(t, http.StatusOK, e.get("/v1/nonces/"+addr(e.buyer).Hex(), &nonce))
	require.Equal(t, uint64(2), nonce.Nonce)

	resp, err := http.Get(e.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var exposition bytes.Buffer
	_, err = exposition.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, exposition.String(), `maplemarket_tx_committed_total{method="market.bid"} 1`)
	require.Contains(t, exposition.String(), `maplemarket_events_emitted_total{type="market.offer.sold"} 1`)
}

func TestTransactionRejections(t *testing.T) {
	e := newEnv(t)
	buyer := addr(e.buyer)

	wrongChain := &types.Transaction{ChainID: testChainID + 1, To: e.d.Market, Data: market.BidCalldata(0)}
	require.NoError(t, wrongChain.Sign(e.buyer))
	status, body := e.post(wrongChain)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, string(body), "wrong_chain")

	unsigned := &types.Transaction{ChainID: testChainID, To: e.d.Market, Data: market.BidCalldata(0)}
	status, body = e.post(unsigned)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, string(body), "invalid_signature")

	status, body = e.post(e.signed(e.buyer, e.d.Market, market.BidCalldata(0)))
	require.Equal(t, http.StatusNotFound, status)
	require.Contains(t, string(body), "offer_not_found")

	stale := e.signed(e.buyer, e.d.Market, market.SetTradingFeeCalldata(10))
	stale.Nonce = 5
	require.NoError(t, stale.Sign(e.buyer))
	status, body = e.post(stale)
	require.Equal(t, http.StatusConflict, status)
	require.Contains(t, string(body), "invalid_nonce")

	status, body = e.post(e.signed(e.buyer, e.d.Market, market.SetTradingFeeCalldata(10)))
	require.Equal(t, http.StatusForbidden, status)
	require.Contains(t, string(body), "not_admin")

	var nonce NonceResponse
	require.Equal(t, http.StatusOK, e.get("/v1/nonces/"+buyer.Hex(), &nonce))
	require.Zero(t, nonce.Nonce)

	resp, err := http.Post(e.server.URL+"/v1/transactions", "application/json", strings.NewReader(`{"bogus":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReadErrors(t *testing.T) {
	e := newEnv(t)
	var problem ErrorResponse
	require.Equal(t, http.StatusNotFound, e.get("/v1/market/offers/3", &problem))
	require.Equal(t, "offer_not_found", problem.Code)
	require.NotEmpty(t, problem.RequestID)

	require.Equal(t, http.StatusBadRequest, e.get("/v1/market/offers/abc", &problem))
	require.Equal(t, http.StatusBadRequest, e.get("/v1/market/offers?status=open", &problem))
	require.Equal(t, http.StatusBadRequest, e.get("/v1/accounts/nobody", &problem))
	require.Equal(t, http.StatusNotFound, e.get("/v1/tokens/"+e.d.Market.Hex()+"/balances/"+addr(e.buyer).Hex(), &problem))
	require.Equal(t, "no_contract", problem.Code)

	var acct AccountResponse
	require.Equal(t, http.StatusOK, e.get("/v1/accounts/"+addr(e.seller).Hex(), &acct))
	require.False(t, acct.HasAccount)
	require.Nil(t, acct.Wallet)
	require.Empty(t, acct.Whitelist)
}

func TestSubmissionRateLimit(t *testing.T) {
	e := newLimitedEnv(t, 0.001, 1)
	e.submit(e.seller, e.d.Factory, account.CreateAccountCalldata(nil))
	status, body := e.post(e.signed(e.seller, e.d.Factory, account.CreateAccountCalldata(nil)))
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Contains(t, string(body), "rate_limited")
}

func TestEventStream(t *testing.T) {
	e := newEnv(t)
	e.listOffer()
	e.submit(e.buyer, e.d.Currency, token.ApproveCalldata(e.d.Market, uint256.NewInt(100)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/v1/events/ws?type=market.offer"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered after the handshake completes.
	require.Eventually(t, func() bool { return e.feed.Len() > 0 }, 2*time.Second, 10*time.Millisecond)

	e.submit(e.buyer, e.d.Market, market.BidCalldata(0))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, market.EventTypeOfferSold, evt.Type)
	require.Equal(t, "0", evt.Attributes["id"])
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	l := newRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	require.True(t, l.allow("a", now))
	require.False(t, l.allow("a", now))
	require.True(t, l.allow("b", now))

	later := now.Add(2 * limiterIdleTTL)
	require.True(t, l.allow("c", later))
	require.Len(t, l.visitors, 1)
}

func TestClientSourceHonoursTrustedProxies(t *testing.T) {
	proxies := parseTrustedProxies([]string{"10.0.0.1", "192.168.0.0/16", "bogus"})
	require.Len(t, proxies, 2)

	req := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", proxies.clientSource(req))

	req.RemoteAddr = "198.51.100.7:4000"
	require.Equal(t, "198.51.100.7", proxies.clientSource(req))
}
