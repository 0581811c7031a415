package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/account"
	"github.com/dmelnik/spotcore/pkg/core/engine"
)

// Server translates HTTP requests into engine and account-manager calls.
// It owns authentication, request parsing, and response shaping; matching,
// settlement, and balance semantics live in the engine.
type Server struct {
	eng    *engine.Engine
	users  *account.Manager
	router *mux.Router
	log    *zap.SugaredLogger

	maxDepthLevels int
	maxTradeLimit  int
	allowedOrigins []string
}

// Options carries the query caps and CORS origins from config
type Options struct {
	MaxDepthLevels int
	MaxTradeLimit  int
	AllowedOrigins []string
}

// NewServer creates an API server
func NewServer(eng *engine.Engine, users *account.Manager, log *zap.SugaredLogger, opts Options) *Server {
	if opts.MaxDepthLevels <= 0 {
		opts.MaxDepthLevels = 25
	}
	if opts.MaxTradeLimit <= 0 {
		opts.MaxTradeLimit = 100
	}

	s := &Server{
		eng:            eng,
		users:          users,
		router:         mux.NewRouter(),
		log:            log,
		maxDepthLevels: opts.MaxDepthLevels,
		maxTradeLimit:  opts.MaxTradeLimit,
		allowedOrigins: opts.AllowedOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints
	v1.HandleFunc("/public/register", s.handleRegister).Methods("POST")
	v1.HandleFunc("/public/instrument", s.handleListInstruments).Methods("GET")
	v1.HandleFunc("/public/orderbook/{ticker}", s.handleOrderbook).Methods("GET")
	v1.HandleFunc("/public/transactions/{ticker}", s.handleTransactions).Methods("GET")

	// Authenticated endpoints
	v1.Handle("/balance", s.authenticated(s.handleBalances)).Methods("GET")
	v1.Handle("/orders", s.authenticated(s.handleCreateOrder)).Methods("POST")
	v1.Handle("/orders", s.authenticated(s.handleListOrders)).Methods("GET")
	v1.Handle("/orders/{order_id}", s.authenticated(s.handleGetOrder)).Methods("GET")
	v1.Handle("/orders/{order_id}", s.authenticated(s.handleCancelOrder)).Methods("DELETE")

	// Admin endpoints
	v1.Handle("/admin/instrument", s.admin(s.handleAddInstrument)).Methods("POST")
	v1.Handle("/admin/instrument/{ticker}", s.admin(s.handleDelistInstrument)).Methods("DELETE")
	v1.Handle("/admin/balance/deposit", s.admin(s.handleDeposit)).Methods("POST")
	v1.Handle("/admin/balance/withdraw", s.admin(s.handleWithdraw)).Methods("POST")
	v1.Handle("/admin/users", s.admin(s.handleListUsers)).Methods("GET")
	v1.Handle("/admin/user/{user_id}", s.authenticated(s.handleDeleteUser)).Methods("DELETE")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the full HTTP handler including CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg, Message: detail})
}

// respondCoreError maps the core error taxonomy to HTTP statuses. Consistency
// failures surface as 500: they indicate a halted instrument, not a bad
// request.
func (s *Server) respondCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInstrumentNotFound),
		errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, core.ErrInstrumentExists),
		errors.Is(err, core.ErrUserExists):
		respondError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, core.ErrInstrumentDelisted),
		errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrOrderNotCancellable),
		errors.Is(err, core.ErrInvalidOrder):
		respondError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, core.ErrInstrumentHalted), core.IsConsistency(err):
		s.log.Errorw("request_hit_halted_state", "err", err)
		respondError(w, http.StatusInternalServerError, "instrument halted", "")
	default:
		s.log.Errorw("internal_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}
