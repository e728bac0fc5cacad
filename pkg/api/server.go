package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

// Settler executes the settlement instructions of a committed receipt
// (pkg/amm provides the reference implementation).
type Settler interface {
	Settle(orders.Receipt) error
}

// Server exposes the order service over REST and WebSocket. Mutating
// calls are serialized through a single mutex: the service itself
// assumes single-writer-per-call semantics.
type Server struct {
	svc     *orders.Service
	settler Settler
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger

	writeMu sync.Mutex
}

// NewServer creates an API server around the order service.
func NewServer(svc *orders.Service, settler Settler, log *zap.SugaredLogger) *Server {
	s := &Server{
		svc:     svc,
		settler: settler,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order lifecycle
	api.HandleFunc("/orders/limit", s.handleStartLimit).Methods("POST")
	api.HandleFunc("/orders/smart", s.handleStartSmart).Methods("POST")
	api.HandleFunc("/orders/grid", s.handleStartGrid).Methods("POST")
	api.HandleFunc("/orders/sync", s.handleSync).Methods("POST")
	api.HandleFunc("/orders/stop", s.handleStop).Methods("POST")

	// Queries
	api.HandleFunc("/orders/{type}/accounts", s.handleAccounts).Methods("GET")
	api.HandleFunc("/orders/{type}/{address}", s.handleOrders).Methods("GET")
	api.HandleFunc("/orders/{type}/{address}/ids", s.handleOrderIDs).Methods("GET")
	api.HandleFunc("/orders/{type}/{address}/{id:[0-9]+}", s.handleOrder).Methods("GET")

	// Administration
	api.HandleFunc("/admin/config", s.handleConfig).Methods("GET")
	api.HandleFunc("/admin/owner", s.handleUpdateOwner).Methods("POST")
	api.HandleFunc("/admin/enabled", s.handleUpdateEnabled).Methods("POST")
	api.HandleFunc("/admin/withdraw", s.handleWithdraw).Methods("POST")

	// WebSocket receipts feed
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves the REST and WebSocket API on addr. Blocks.
func (s *Server) Start(addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Order lifecycle handlers
// ==============================

func (s *Server) handleStartLimit(w http.ResponseWriter, r *http.Request) {
	var req StartLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account", err.Error())
		return
	}
	pool, err := parseAddress(req.Pool)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pool", err.Error())
		return
	}

	s.mutate(w, func() (orders.Receipt, error) {
		return s.svc.StartLimit(account, toDeposit(req.Deposit), orders.LimitParams{
			SourceToken:   orders.Token(req.SourceToken),
			Pool:          pool,
			TakeProfitPct: req.TakeProfitPct,
		})
	})
}

func (s *Server) handleStartSmart(w http.ResponseWriter, r *http.Request) {
	var req StartSmartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account", err.Error())
		return
	}
	pool, err := parseAddress(req.Pool)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pool", err.Error())
		return
	}

	s.mutate(w, func() (orders.Receipt, error) {
		return s.svc.StartSmart(account, toDeposit(req.Deposit), orders.SmartParams{
			SourceToken:      orders.Token(req.SourceToken),
			Pool:             pool,
			TakeProfitPct:    req.TakeProfitPct,
			InitialBuyAmount: req.InitialBuyAmount,
			NumSteps:         req.NumSteps,
			StepPriceDrop:    req.StepPriceDrop,
			StepPriceMult:    req.StepPriceMult,
			StepOrderSize:    req.StepOrderSize,
			StepSizeMult:     req.StepSizeMult,
		})
	})
}

func (s *Server) handleStartGrid(w http.ResponseWriter, r *http.Request) {
	var req StartGridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account", err.Error())
		return
	}
	pool, err := parseAddress(req.Pool)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pool", err.Error())
		return
	}

	s.mutate(w, func() (orders.Receipt, error) {
		return s.svc.StartGrid(account, toDeposit(req.Deposit), orders.GridParams{
			SourceToken:   orders.Token(req.SourceToken),
			Pool:          pool,
			TotalAmount:   req.TotalAmount,
			NumPairs:      req.NumPairs,
			PriceRangePct: req.PriceRangePct,
		})
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	typ, err := orders.ParseOrderType(req.OrderType)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}
	var account *common.Address
	if req.Account != "" {
		addr, err := parseAddress(req.Account)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid account", err.Error())
			return
		}
		account = &addr
	}

	s.mutate(w, func() (orders.Receipt, error) {
		return s.svc.Sync(caller, typ, account, req.ID)
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	typ, err := orders.ParseOrderType(req.OrderType)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}

	s.mutate(w, func() (orders.Receipt, error) {
		return s.svc.Stop(caller, typ, req.ID)
	})
}

// mutate serializes a state-changing call, settles its instructions,
// broadcasts the receipt, and writes the response.
func (s *Server) mutate(w http.ResponseWriter, call func() (orders.Receipt, error)) {
	s.writeMu.Lock()
	receipt, err := call()
	if err == nil && s.settler != nil {
		if serr := s.settler.Settle(receipt); serr != nil {
			// State is already committed; a settlement failure here
			// means the venue and the ledger disagree. Loud log, the
			// receipt still goes out.
			s.log.Errorw("settle_failed", "action", receipt.Action, "err", serr)
		}
	}
	s.writeMu.Unlock()

	if err != nil {
		status, kind := errorStatus(err)
		respondError(w, status, kind, err.Error())
		return
	}
	s.hub.BroadcastReceipt(receipt)
	respondJSON(w, ReceiptResponse{Receipt: receipt})
}

// ==============================
// Query handlers
// ==============================

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	typ, err := orders.ParseOrderType(mux.Vars(r)["type"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}
	var startAfter *common.Address
	if cursor := r.URL.Query().Get("startAfter"); cursor != "" {
		addr, err := parseAddress(cursor)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid cursor", err.Error())
			return
		}
		startAfter = &addr
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	accounts, err := s.svc.OrderAccounts(typ, startAfter, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scan failed", err.Error())
		return
	}
	resp := AccountsResponse{Accounts: make([]string, len(accounts))}
	for i, a := range accounts {
		resp.Accounts[i] = a.Hex()
	}
	respondJSON(w, resp)
}

func (s *Server) handleOrderIDs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typ, err := orders.ParseOrderType(vars["type"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}
	account, err := parseAddress(vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}

	ids, err := s.svc.OrderIDs(typ, account)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}
	respondJSON(w, OrderIDsResponse{Account: account.Hex(), IDs: ids})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typ, err := orders.ParseOrderType(vars["type"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}
	account, err := parseAddress(vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	rec, err := s.svc.Order(typ, account, id)
	if err != nil {
		status, kind := errorStatus(err)
		respondError(w, status, kind, err.Error())
		return
	}
	respondJSON(w, rec)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typ, err := orders.ParseOrderType(vars["type"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order type", err.Error())
		return
	}
	account, err := parseAddress(vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}

	recs, err := s.svc.Orders(typ, account)
	if err != nil {
		status, kind := errorStatus(err)
		respondError(w, status, kind, err.Error())
		return
	}
	respondJSON(w, recs)
}

// ==============================
// Administration handlers
// ==============================

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	admin := s.svc.Admin()
	respondJSON(w, ConfigResponse{Owner: admin.Owner.Hex(), Enabled: admin.Enabled})
}

func (s *Server) handleUpdateOwner(w http.ResponseWriter, r *http.Request) {
	var req UpdateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
		return
	}

	s.writeMu.Lock()
	err = s.svc.UpdateOwner(caller, owner)
	s.writeMu.Unlock()
	if err != nil {
		status, kind := errorStatus(err)
		respondError(w, status, kind, err.Error())
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleUpdateEnabled(w http.ResponseWriter, r *http.Request) {
	var req UpdateEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}

	s.writeMu.Lock()
	err = s.svc.UpdateEnabled(caller, req.Enabled)
	s.writeMu.Unlock()
	if err != nil {
		status, kind := errorStatus(err)
		respondError(w, status, kind, err.Error())
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}

	s.mutate(w, func() (orders.Receipt, error) {
		return s.svc.Withdraw(caller, orders.Token(req.Token), req.Amount)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func toDeposit(entries []DepositEntry) orders.Deposit {
	dep := orders.Deposit{Entries: make([]orders.TokenAmount, len(entries))}
	for i, e := range entries {
		dep.Entries[i] = orders.TokenAmount{Token: orders.Token(e.Token), Amount: e.Amount}
	}
	return dep
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// errorStatus maps the service error taxonomy onto HTTP status codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orders.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, orders.ErrDisabled):
		return http.StatusServiceUnavailable, "disabled"
	case errors.Is(err, orders.ErrOrderNotExist):
		return http.StatusNotFound, "order not exist"
	case errors.Is(err, orders.ErrMaxOrderCountExceed),
		errors.Is(err, orders.ErrAlreadyFinishedOrder),
		errors.Is(err, orders.ErrInsufficientAmountForSmartOrder),
		errors.Is(err, orders.ErrInsufficientAmountForGridOrder),
		errors.Is(err, orders.ErrEmptyBalance),
		errors.Is(err, orders.ErrTokenTypeMismatch),
		errors.Is(err, orders.ErrPoolAndTokenMismatch),
		errors.Is(err, orders.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "rejected"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Details: details})
}

