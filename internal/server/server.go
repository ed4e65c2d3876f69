// Package server exposes the token and ledger operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"

	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/protocol"
	"github.com/minx-network/distribution/internal/sale"
	"github.com/minx-network/distribution/internal/swap"
	"github.com/minx-network/distribution/internal/vesting"
)

const maxBodyBytes = 1 << 20

// Config wires the server to the ledgers. Nil ledgers get no routes.
type Config struct {
	Tokens  []*custody.Token
	Vesting *vesting.Ledger
	Sale    *sale.Ledger
	Swap    *swap.Ledger
	Clock   clock.Clock
	// Journal serves /events when set.
	Journal journal.Store
	Logger  log.Logger
	// Middleware wraps every matched route.
	Middleware []mux.MiddlewareFunc
}

type Server struct {
	router  *mux.Router
	tokens  map[string]*custody.Token
	order   []*custody.Token
	vesting *vesting.Ledger
	sale    *sale.Ledger
	swap    *swap.Ledger
	clock   clock.Clock
	journal journal.Store
	logger  log.Logger

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Root()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	s := &Server{
		router:  mux.NewRouter(),
		tokens:  make(map[string]*custody.Token, len(cfg.Tokens)),
		order:   cfg.Tokens,
		vesting: cfg.Vesting,
		sale:    cfg.Sale,
		swap:    cfg.Swap,
		clock:   clk,
		journal: cfg.Journal,
		logger:  logger,
	}
	for _, t := range cfg.Tokens {
		s.tokens[strings.ToLower(t.Symbol())] = t
	}
	s.setupRoutes()
	s.router.Use(cfg.Middleware...)
	return s
}

// Router returns the HTTP router for testing
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Token endpoints
	s.router.HandleFunc("/token/{symbol}/balance/{address}", s.handleGetBalance).Methods("GET")
	s.router.HandleFunc("/token/{symbol}/transfer", s.handleTransfer).Methods("POST")
	s.router.HandleFunc("/token/{symbol}/approve", s.handleApprove).Methods("POST")

	if s.vesting != nil {
		s.router.HandleFunc("/vesting/schedule", s.handleVestingAddSchedule).Methods("POST")
		s.router.HandleFunc("/vesting/schedules", s.handleVestingAddSchedules).Methods("POST")
		s.router.HandleFunc("/vesting/schedule/{address}", s.handleVestingSchedule).Methods("GET")
		s.router.HandleFunc("/vesting/releasable/{address}", s.handleVestingReleasable).Methods("GET")
		s.router.HandleFunc("/vesting/release", s.handleVestingRelease).Methods("POST")
		s.router.HandleFunc("/vesting/beneficiaries", s.handleVestingBeneficiaries).Methods("GET")
	}

	if s.sale != nil {
		s.router.HandleFunc("/sale/beneficiary", s.handleSaleAddBeneficiary).Methods("POST")
		s.router.HandleFunc("/sale/withdrawable", s.handleSaleWithdrawable).Methods("GET")
		s.router.HandleFunc("/sale/withdraw", s.handleSaleWithdraw).Methods("POST")
		s.router.HandleFunc("/sale/schedule/{address}", s.handleSaleSchedule).Methods("GET")
		s.router.HandleFunc("/sale/releasable/{address}", s.handleSaleReleasable).Methods("GET")
		s.router.HandleFunc("/sale/release", s.handleSaleRelease).Methods("POST")
		s.router.HandleFunc("/sale/beneficiaries", s.handleSaleBeneficiaries).Methods("GET")
	}

	if s.swap != nil {
		s.router.HandleFunc("/swap", s.handleSwapInfo).Methods("GET")
		s.router.HandleFunc("/swap/deposit", s.handleSwapDeposit).Methods("POST")
		s.router.HandleFunc("/swap/deposit/{address}", s.handleSwapDepositOf).Methods("GET")
		s.router.HandleFunc("/swap/withdraw", s.handleSwapWithdraw).Methods("POST")
		s.router.HandleFunc("/swap/withdrawable-min", s.handleSwapWithdrawableMin).Methods("GET")
		s.router.HandleFunc("/swap/withdraw-swap-token", s.handleSwapWithdrawSwapToken).Methods("POST")
		s.router.HandleFunc("/swap/withdraw-min-token", s.handleSwapWithdrawMinToken).Methods("POST")
		s.router.HandleFunc("/swap/schedule/{address}", s.handleSwapSchedule).Methods("GET")
		s.router.HandleFunc("/swap/releasable/{address}", s.handleSwapReleasable).Methods("GET")
		s.router.HandleFunc("/swap/release", s.handleSwapRelease).Methods("POST")
	}

	if s.journal != nil {
		s.router.HandleFunc("/events", s.handleEvents).Methods("GET")
	}

	// Only a manual clock can be moved
	if _, ok := s.clock.(*clock.Manual); ok {
		s.router.HandleFunc("/clock/advance", s.handleClockAdvance).Methods("POST")
	}
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("Distribution API starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errBadRequest marks malformed input.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusOf maps ledger errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, vesting.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vesting.ErrBeneficiaryNotFound):
		return http.StatusNotFound
	case errors.Is(err, vesting.ErrDuplicateBeneficiary):
		return http.StatusConflict
	case errors.Is(err, vesting.ErrTransferFailed):
		return http.StatusBadGateway
	case vesting.Code(err) != "":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error(), Code: vesting.Code(err)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
