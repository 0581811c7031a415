package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmelnik/spotcore/pkg/api"
	"github.com/dmelnik/spotcore/pkg/core/account"
	"github.com/dmelnik/spotcore/pkg/core/engine"
	"github.com/dmelnik/spotcore/pkg/core/instrument"
	"github.com/dmelnik/spotcore/pkg/core/ledger"
	"github.com/dmelnik/spotcore/pkg/util"
)

// memStore satisfies both the engine's and the account manager's store
// interfaces so the full HTTP stack runs without a database.
type memStore struct{}

func (memStore) Commit(engine.Mutation) error { return nil }
func (memStore) SaveUser(*account.User) error { return nil }
func (memStore) DeleteUser(uuid.UUID) error   { return nil }

type testAPI struct {
	srv   *httptest.Server
	users *account.Manager
	admin *account.User
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	reg := instrument.NewRegistry()
	require.NoError(t, reg.Register(instrument.Instrument{Ticker: "RUB", Name: "RUB", Status: instrument.Active}))
	require.NoError(t, reg.Register(instrument.Instrument{Ticker: "MEMCOIN", Name: "Memory Coin", Status: instrument.Active}))

	clock := util.NewManualClock(time.Unix(1700000000, 0))
	store := memStore{}
	eng := engine.New("RUB", reg, ledger.NewLedger(), store, nil, clock, zap.NewNop().Sugar())
	users := account.NewManager(store, clock)

	adm, err := users.Register("admin", "admin", account.RoleAdmin)
	require.NoError(t, err)

	s := api.NewServer(eng, users, zap.NewNop().Sugar(), api.Options{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, users: users, admin: adm}
}

func (a *testAPI) do(t *testing.T, method, path, apiKey string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("Authorization", "TOKEN "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (a *testAPI) register(t *testing.T, name string) api.UserOut {
	t.Helper()
	resp := a.do(t, "POST", "/api/v1/public/register", "", api.NewUserBody{Name: name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var u api.UserOut
	decode(t, resp, &u)
	return u
}

func (a *testAPI) deposit(t *testing.T, user uuid.UUID, ticker string, amount int64) {
	t.Helper()
	resp := a.do(t, "POST", "/api/v1/admin/balance/deposit", a.admin.APIKey,
		api.DepositBody{UserID: user, Ticker: ticker, Amount: amount})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterAndAuth(t *testing.T) {
	a := newTestAPI(t)

	u := a.register(t, "alice")
	assert.Equal(t, "alice", u.Name)
	assert.Equal(t, "USER", u.Role)
	assert.Contains(t, u.APIKey, "key-")

	// Duplicate name conflicts
	resp := a.do(t, "POST", "/api/v1/public/register", "", api.NewUserBody{Name: "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Too-short name rejected
	resp = a.do(t, "POST", "/api/v1/public/register", "", api.NewUserBody{Name: "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, "GET", "/api/v1/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, "GET", "/api/v1/balance", "key-"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRequired(t *testing.T) {
	a := newTestAPI(t)
	u := a.register(t, "alice")

	resp := a.do(t, "POST", "/api/v1/admin/instrument", u.APIKey,
		api.InstrumentBody{Name: "Dodge Coin", Ticker: "DODGE"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.do(t, "POST", "/api/v1/admin/instrument", a.admin.APIKey,
		api.InstrumentBody{Name: "Dodge Coin", Ticker: "DODGE"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestOrderFlow(t *testing.T) {
	a := newTestAPI(t)
	seller := a.register(t, "seller")
	buyer := a.register(t, "buyer")
	a.deposit(t, seller.ID, "MEMCOIN", 5)
	a.deposit(t, buyer.ID, "RUB", 1000)

	// Seller rests an ask
	price := int64(100)
	resp := a.do(t, "POST", "/api/v1/orders", seller.APIKey,
		api.OrderBody{Direction: "SELL", Ticker: "MEMCOIN", Qty: 5, Price: &price})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created api.CreateOrderResponse
	decode(t, resp, &created)
	assert.True(t, created.Success)

	// Orderbook shows the ask
	resp = a.do(t, "GET", "/api/v1/public/orderbook/MEMCOIN", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var book api.L2OrderBook
	decode(t, resp, &book)
	require.Len(t, book.AskLevels, 1)
	assert.Equal(t, api.Level{Price: 100, Qty: 5}, book.AskLevels[0])
	assert.Empty(t, book.BidLevels)

	// Buyer lifts it with a market order (no price field)
	resp = a.do(t, "POST", "/api/v1/orders", buyer.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Trade is visible publicly
	resp = a.do(t, "GET", "/api/v1/public/transactions/MEMCOIN", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var txs []api.TransactionOut
	decode(t, resp, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(5), txs[0].Amount)
	assert.Equal(t, int64(100), txs[0].Price)

	// Balances moved
	var balances map[string]int64
	resp = a.do(t, "GET", "/api/v1/balance", buyer.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &balances)
	assert.Equal(t, int64(500), balances["RUB"])
	assert.Equal(t, int64(5), balances["MEMCOIN"])

	resp = a.do(t, "GET", "/api/v1/balance", seller.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &balances)
	assert.Equal(t, int64(500), balances["RUB"])

	// The seller's order shows as executed in their listing
	resp = a.do(t, "GET", "/api/v1/orders", seller.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []api.OrderOut
	decode(t, resp, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, "EXECUTED", orders[0].Status)
	assert.Equal(t, int64(5), orders[0].Filled)
	require.NotNil(t, orders[0].Body.Price)
	assert.Equal(t, int64(100), *orders[0].Body.Price)
}

func TestOrderRejections(t *testing.T) {
	a := newTestAPI(t)
	u := a.register(t, "alice")

	// No funds
	price := int64(100)
	resp := a.do(t, "POST", "/api/v1/orders", u.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 1, Price: &price})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Bad direction
	resp = a.do(t, "POST", "/api/v1/orders", u.APIKey,
		api.OrderBody{Direction: "HOLD", Ticker: "MEMCOIN", Qty: 1, Price: &price})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown instrument
	a.deposit(t, u.ID, "RUB", 1000)
	resp = a.do(t, "POST", "/api/v1/orders", u.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "NOPE", Qty: 1, Price: &price})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetAndCancelOrder(t *testing.T) {
	a := newTestAPI(t)
	u := a.register(t, "alice")
	other := a.register(t, "bob")
	a.deposit(t, u.ID, "RUB", 1000)

	price := int64(100)
	resp := a.do(t, "POST", "/api/v1/orders", u.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 10, Price: &price})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created api.CreateOrderResponse
	decode(t, resp, &created)

	// Owner sees it
	resp = a.do(t, "GET", "/api/v1/orders/"+created.OrderID.String(), u.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var o api.OrderOut
	decode(t, resp, &o)
	assert.Equal(t, "NEW", o.Status)

	// Other users don't
	resp = a.do(t, "GET", "/api/v1/orders/"+created.OrderID.String(), other.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Nor may they cancel it
	resp = a.do(t, "DELETE", "/api/v1/orders/"+created.OrderID.String(), other.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = a.do(t, "DELETE", "/api/v1/orders/"+created.OrderID.String(), u.APIKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Second cancel is rejected
	resp = a.do(t, "DELETE", "/api/v1/orders/"+created.OrderID.String(), u.APIKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed id reads as not found
	resp = a.do(t, "DELETE", "/api/v1/orders/not-a-uuid", u.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListInstruments(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, "GET", "/api/v1/public/instrument", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []api.InstrumentOut
	decode(t, resp, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "MEMCOIN", out[0].Ticker)
	assert.Equal(t, "ACTIVE", out[0].Status)
	assert.Equal(t, "RUB", out[1].Ticker)
}

func TestOrderbookLimit(t *testing.T) {
	a := newTestAPI(t)
	u := a.register(t, "alice")
	a.deposit(t, u.ID, "RUB", 100000)

	for p := int64(90); p <= 110; p++ {
		price := p
		resp := a.do(t, "POST", "/api/v1/orders", u.APIKey,
			api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 1, Price: &price})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var book api.L2OrderBook
	resp := a.do(t, "GET", "/api/v1/public/orderbook/MEMCOIN", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &book)
	assert.Len(t, book.BidLevels, 10, "default limit")
	assert.Equal(t, int64(110), book.BidLevels[0].Price, "best bid first")

	resp = a.do(t, "GET", "/api/v1/public/orderbook/MEMCOIN?limit=3", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &book)
	assert.Len(t, book.BidLevels, 3)

	resp = a.do(t, "GET", "/api/v1/public/orderbook/MEMCOIN?limit=9999", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &book)
	assert.Len(t, book.BidLevels, 21, "capped, then truncated by book size")
}

func TestWithdrawEndpoint(t *testing.T) {
	a := newTestAPI(t)
	u := a.register(t, "alice")
	a.deposit(t, u.ID, "RUB", 1000)

	resp := a.do(t, "POST", "/api/v1/admin/balance/withdraw", a.admin.APIKey,
		api.WithdrawBody{UserID: u.ID, Ticker: "RUB", Amount: 1500})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, "POST", "/api/v1/admin/balance/withdraw", a.admin.APIKey,
		api.WithdrawBody{UserID: u.ID, Ticker: "RUB", Amount: 400})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var balances map[string]int64
	resp = a.do(t, "GET", "/api/v1/balance", u.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &balances)
	assert.Equal(t, int64(600), balances["RUB"])

	// Deposits to unknown users are rejected before touching the ledger
	resp = a.do(t, "POST", "/api/v1/admin/balance/deposit", a.admin.APIKey,
		api.DepositBody{UserID: uuid.New(), Ticker: "RUB", Amount: 100})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteUser(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register(t, "alice")
	bob := a.register(t, "bob")
	a.deposit(t, alice.ID, "RUB", 1000)

	price := int64(100)
	resp := a.do(t, "POST", "/api/v1/orders", alice.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 5, Price: &price})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Bob may not delete alice
	resp = a.do(t, "DELETE", "/api/v1/admin/user/"+alice.ID.String(), bob.APIKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Alice may delete herself
	resp = a.do(t, "DELETE", "/api/v1/admin/user/"+alice.ID.String(), alice.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Her key no longer works
	resp = a.do(t, "GET", "/api/v1/balance", alice.APIKey, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// And her resting bid is gone from the book
	var book api.L2OrderBook
	resp = a.do(t, "GET", "/api/v1/public/orderbook/MEMCOIN", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &book)
	assert.Empty(t, book.BidLevels)

	// Admin can delete anyone
	resp = a.do(t, "DELETE", "/api/v1/admin/user/"+bob.ID.String(), a.admin.APIKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDelistEndpoint(t *testing.T) {
	a := newTestAPI(t)
	u := a.register(t, "alice")
	a.deposit(t, u.ID, "RUB", 1000)

	price := int64(100)
	resp := a.do(t, "POST", "/api/v1/orders", u.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 5, Price: &price})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(t, "DELETE", "/api/v1/admin/instrument/MEMCOIN", a.admin.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// New orders on the delisted instrument are rejected
	resp = a.do(t, "POST", "/api/v1/orders", u.APIKey,
		api.OrderBody{Direction: "BUY", Ticker: "MEMCOIN", Qty: 1, Price: &price})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The released reservation is back in the balance
	var balances map[string]int64
	resp = a.do(t, "GET", "/api/v1/balance", u.APIKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &balances)
	assert.Equal(t, int64(1000), balances["RUB"])
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	resp := a.do(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "ok", out["status"])
}
