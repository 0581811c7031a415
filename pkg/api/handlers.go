package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/account"
	"github.com/dmelnik/spotcore/pkg/core/engine"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body NewUserBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(body.Name) < 3 || len(body.Name) > 50 {
		respondError(w, http.StatusBadRequest, "name must be 3-50 characters", "")
		return
	}

	u, err := s.users.Register(body.Name, body.Password, account.RoleUser)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	s.log.Infow("user_registered", "user_id", u.ID, "name", u.Name)
	respondJSON(w, http.StatusCreated, UserOut{
		ID:     u.ID,
		Name:   u.Name,
		Role:   u.Role.String(),
		APIKey: u.APIKey,
	})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments := s.eng.Instruments().List()
	out := make([]InstrumentOut, len(instruments))
	for i, ins := range instruments {
		out[i] = InstrumentOut{Name: ins.Name, Ticker: ins.Ticker, Status: ins.Status.String()}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	levels := s.queryLimit(r, 10, s.maxDepthLevels)

	depth, err := s.eng.Depth(ticker, levels)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	out := L2OrderBook{BidLevels: []Level{}, AskLevels: []Level{}}
	for _, l := range depth.Bids {
		out.BidLevels = append(out.BidLevels, Level{Price: l.Price, Qty: l.Qty})
	}
	for _, l := range depth.Asks {
		out.AskLevels = append(out.AskLevels, Level{Price: l.Price, Qty: l.Qty})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit := s.queryLimit(r, 10, s.maxTradeLimit)

	trades, err := s.eng.RecentTrades(ticker, limit)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	out := make([]TransactionOut, len(trades))
	for i, t := range trades {
		out[i] = transactionOut(t)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request, u *account.User) {
	balances := s.eng.Ledger().UserBalances(u.ID)
	out := make(map[string]int64, len(balances))
	for ticker, b := range balances {
		out[ticker] = b.Amount
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, u *account.User) {
	var body OrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := core.ParseSide(body.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	req := engineRequest(u.ID, body, side)
	result, err := s.eng.Submit(req)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateOrderResponse{Success: true, OrderID: result.Order.ID})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, u *account.User) {
	orders := s.eng.UserOrders(u.ID)
	out := make([]OrderOut, len(orders))
	for i, o := range orders {
		out[i] = orderOut(o)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, u *account.User) {
	orderID, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		respondError(w, http.StatusNotFound, core.ErrOrderNotFound.Error(), "")
		return
	}

	o, err := s.eng.Order(orderID, u.ID)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderOut(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, u *account.User) {
	orderID, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		respondError(w, http.StatusNotFound, core.ErrOrderNotFound.Error(), "")
		return
	}

	if _, err := s.eng.Cancel(orderID, u.ID); err != nil {
		s.respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse)
}

// queryLimit parses ?limit= with a default and an upper cap
func (s *Server) queryLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// engineRequest resolves the wire union into the engine's tagged variant:
// a present price means LIMIT, absence means MARKET.
func engineRequest(userID uuid.UUID, body OrderBody, side core.Side) engine.OrderRequest {
	req := engine.OrderRequest{
		UserID: userID,
		Ticker: body.Ticker,
		Side:   side,
		Qty:    body.Qty,
		Kind:   core.Market,
	}
	if body.Price != nil {
		req.Kind = core.Limit
		req.Price = *body.Price
	}
	return req
}
