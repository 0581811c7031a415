package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/account"
)

func (s *Server) handleAddInstrument(w http.ResponseWriter, r *http.Request, _ *account.User) {
	var body InstrumentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if body.Ticker == "" || body.Name == "" {
		respondError(w, http.StatusBadRequest, "ticker and name are required", "")
		return
	}

	if err := s.eng.AddInstrument(body.Ticker, body.Name); err != nil {
		s.respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, okResponse)
}

func (s *Server) handleDelistInstrument(w http.ResponseWriter, r *http.Request, _ *account.User) {
	ticker := mux.Vars(r)["ticker"]
	if err := s.eng.DelistInstrument(ticker); err != nil {
		s.respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, _ *account.User) {
	var body DepositBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if _, err := s.users.Get(body.UserID); err != nil {
		s.respondCoreError(w, err)
		return
	}
	if err := s.eng.Deposit(body.UserID, body.Ticker, body.Amount); err != nil {
		s.respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, _ *account.User) {
	var body WithdrawBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if _, err := s.users.Get(body.UserID); err != nil {
		s.respondCoreError(w, err)
		return
	}
	if err := s.eng.Withdraw(body.UserID, body.Ticker, body.Amount); err != nil {
		s.respondCoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *account.User) {
	users := s.users.List()
	out := make([]UserOut, len(users))
	for i, u := range users {
		out[i] = UserOut{ID: u.ID, Name: u.Name, Role: u.Role.String(), APIKey: u.APIKey}
	}
	respondJSON(w, http.StatusOK, out)
}

// handleDeleteUser removes a user entirely: resting orders cancelled,
// balances archived, record deleted. Admins may remove anyone; a user may
// remove only themself.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, u *account.User) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		respondError(w, http.StatusNotFound, core.ErrUserNotFound.Error(), "")
		return
	}
	if u.Role != account.RoleAdmin && u.ID != userID {
		respondError(w, http.StatusForbidden, "you can only delete your own account", "")
		return
	}
	if _, err := s.users.Get(userID); err != nil {
		s.respondCoreError(w, err)
		return
	}

	if err := s.eng.RemoveUser(userID); err != nil {
		s.respondCoreError(w, err)
		return
	}
	s.users.Forget(userID)
	respondJSON(w, http.StatusOK, okResponse)
}
