package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/clock"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/protocol"
	"github.com/minx-network/distribution/internal/vesting"
)

const defaultEventLimit = 100

func addressVar(r *http.Request) (common.Address, error) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		return common.Address{}, badRequest("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := protocol.ParseAmount(s)
	if err != nil {
		return nil, badRequest("amount: %v", err)
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := protocol.InfoResponse{
		Now:     s.clock.Now(),
		Tokens:  make([]protocol.TokenInfo, 0, len(s.order)),
		Ledgers: []protocol.LedgerInfo{},
	}
	for _, t := range s.order {
		resp.Tokens = append(resp.Tokens, protocol.TokenInfo{
			Name:        t.Name(),
			Symbol:      t.Symbol(),
			Address:     t.Address(),
			TotalSupply: t.TotalSupply().Dec(),
		})
	}
	if s.vesting != nil {
		resp.Ledgers = append(resp.Ledgers, protocol.LedgerInfo{
			Name:      s.vesting.Name(),
			Address:   s.vesting.Address(),
			Owner:     s.vesting.Owner(),
			Committed: s.vesting.Committed().Dec(),
		})
	}
	if s.sale != nil {
		resp.Ledgers = append(resp.Ledgers, protocol.LedgerInfo{
			Name:      s.sale.Name(),
			Address:   s.sale.Address(),
			Owner:     s.sale.Owner(),
			Committed: s.sale.Committed().Dec(),
		})
	}
	if s.swap != nil {
		resp.Ledgers = append(resp.Ledgers, protocol.LedgerInfo{
			Name:      s.swap.Name(),
			Address:   s.swap.Address(),
			Owner:     s.swap.Owner(),
			Committed: s.swap.Sold().Dec(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Token handlers

func (s *Server) token(r *http.Request) (*custody.Token, bool) {
	t, ok := s.tokens[strings.ToLower(mux.Vars(r)["symbol"])]
	return t, ok
}

// writeTokenError reports direct token failures. These are caller errors
// rather than upstream custody faults.
func (s *Server) writeTokenError(w http.ResponseWriter, err error) {
	if errors.Is(err, custody.ErrTransferFailed) {
		writeJSON(w, http.StatusUnprocessableEntity, protocol.ErrorResponse{Error: err.Error(), Code: vesting.Code(err)})
		return
	}
	s.writeError(w, err)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	t, ok := s.token(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "unknown token"})
		return
	}
	addr, err := addressVar(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.BalanceResponse{
		Token:   t.Symbol(),
		Address: addr,
		Balance: t.BalanceOf(addr).Dec(),
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	t, ok := s.token(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "unknown token"})
		return
	}
	var req protocol.TransferRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.checkNotLedger(req.From); err != nil {
		s.writeError(w, err)
		return
	}
	if err := t.Transfer(req.From, req.To, amount); err != nil {
		s.writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "success"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	t, ok := s.token(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "unknown token"})
		return
	}
	var req protocol.ApproveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.checkNotLedger(req.Owner); err != nil {
		s.writeError(w, err)
		return
	}
	if err := t.Approve(req.Owner, req.Spender, amount); err != nil {
		s.writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "success"})
}

// checkNotLedger refuses to move funds out of a ledger's custody address.
// Only the ledger's own operations may spend from it.
func (s *Server) checkNotLedger(addr common.Address) error {
	if (s.vesting != nil && addr == s.vesting.Address()) ||
		(s.sale != nil && addr == s.sale.Address()) ||
		(s.swap != nil && addr == s.swap.Address()) {
		return fmt.Errorf("%w: %s is held by a ledger", vesting.ErrUnauthorized, addr.Hex())
	}
	return nil
}

// Shared ledger plumbing

// amountCall decodes an AmountRequest and runs fn with it.
func (s *Server) amountCall(w http.ResponseWriter, r *http.Request, fn func(common.Address, *uint256.Int) error) {
	var req protocol.AmountRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := fn(req.Caller, amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "success"})
}

func (s *Server) releasable(w http.ResponseWriter, r *http.Request, fn func(common.Address) (*uint256.Int, error)) {
	addr, err := addressVar(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := fn(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: amount.Dec()})
}

func (s *Server) scheduleResponse(sched *vesting.Schedule) protocol.ScheduleResponse {
	now := s.clock.Now()
	return protocol.ScheduleResponse{
		Schedule:   protocol.NewSchedule(sched),
		Releasable: vesting.Releasable(sched, now).Dec(),
		Vested:     vesting.Vested(sched, now).Dec(),
	}
}

func (s *Server) schedule(w http.ResponseWriter, r *http.Request, fn func(common.Address) (*vesting.Schedule, error)) {
	addr, err := addressVar(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sched, err := fn(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleResponse(sched))
}

func beneficiaries(list []common.Address) protocol.BeneficiariesResponse {
	if list == nil {
		list = []common.Address{}
	}
	return protocol.BeneficiariesResponse{Beneficiaries: list}
}

// Vesting handlers

func (s *Server) handleVestingAddSchedule(w http.ResponseWriter, r *http.Request) {
	var req protocol.ScheduleRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sched, err := req.Schedule.ToVesting()
	if err != nil {
		s.writeError(w, badRequest("schedule: %v", err))
		return
	}
	if err := s.vesting.AddSchedule(req.Caller, sched); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "success"})
}

func (s *Server) handleVestingAddSchedules(w http.ResponseWriter, r *http.Request) {
	var req protocol.SchedulesRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	list := make([]*vesting.Schedule, 0, len(req.Schedules))
	for i := range req.Schedules {
		sched, err := req.Schedules[i].ToVesting()
		if err != nil {
			s.writeError(w, badRequest("schedules[%d]: %v", i, err))
			return
		}
		list = append(list, sched)
	}
	if err := s.vesting.AddSchedules(req.Caller, list); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "success"})
}

func (s *Server) handleVestingSchedule(w http.ResponseWriter, r *http.Request) {
	s.schedule(w, r, s.vesting.GetVestingSchedule)
}

func (s *Server) handleVestingReleasable(w http.ResponseWriter, r *http.Request) {
	s.releasable(w, r, s.vesting.ComputeReleasableAmount)
}

func (s *Server) handleVestingRelease(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.vesting.Release)
}

func (s *Server) handleVestingBeneficiaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, beneficiaries(s.vesting.Beneficiaries()))
}

// Sale handlers

func (s *Server) handleSaleAddBeneficiary(w http.ResponseWriter, r *http.Request) {
	var req protocol.BeneficiaryRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sale.AddBeneficiary(req.Caller, req.Beneficiary, amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "success"})
}

func (s *Server) handleSaleWithdrawable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: s.sale.ComputeWithdrawableMinTokens().Dec()})
}

func (s *Server) handleSaleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.sale.WithdrawMinTokens)
}

func (s *Server) handleSaleSchedule(w http.ResponseWriter, r *http.Request) {
	s.schedule(w, r, s.sale.GetVestingSchedule)
}

func (s *Server) handleSaleReleasable(w http.ResponseWriter, r *http.Request) {
	s.releasable(w, r, s.sale.ComputeReleasableAmount)
}

func (s *Server) handleSaleRelease(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.sale.Release)
}

func (s *Server) handleSaleBeneficiaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, beneficiaries(s.sale.Beneficiaries()))
}

// Swap handlers

func (s *Server) handleSwapInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.SwapInfo{
		Phase:          s.swap.Phase().String(),
		SaleEnd:        s.swap.SaleEnd(),
		Ratio:          s.swap.Ratio(),
		DepositCap:     s.swap.DepositCap().Dec(),
		TotalDeposited: s.swap.TotalDeposited().Dec(),
		Sold:           s.swap.Sold().Dec(),
	})
}

func (s *Server) handleSwapDeposit(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.swap.Deposit)
}

func (s *Server) handleSwapWithdraw(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.swap.Withdraw)
}

func (s *Server) handleSwapDepositOf(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: s.swap.DepositOf(addr).Dec()})
}

func (s *Server) handleSwapWithdrawableMin(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("caller")
	if !common.IsHexAddress(raw) {
		s.writeError(w, badRequest("invalid caller %q", raw))
		return
	}
	amount, err := s.swap.CalculateWithdrawableMinToken(common.HexToAddress(raw))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AmountResponse{Amount: amount.Dec()})
}

func (s *Server) handleSwapWithdrawSwapToken(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.swap.WithdrawSwapToken)
}

func (s *Server) handleSwapWithdrawMinToken(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.swap.WithdrawMinToken)
}

func (s *Server) handleSwapSchedule(w http.ResponseWriter, r *http.Request) {
	s.schedule(w, r, func(who common.Address) (*vesting.Schedule, error) {
		return s.swap.GetVestingSchedule(who), nil
	})
}

func (s *Server) handleSwapReleasable(w http.ResponseWriter, r *http.Request) {
	s.releasable(w, r, s.swap.ComputeReleasableAmount)
}

func (s *Server) handleSwapRelease(w http.ResponseWriter, r *http.Request) {
	s.amountCall(w, r, s.swap.Release)
}

// Journal and clock

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := journal.Filter{
		Ledger: q.Get("ledger"),
		Kind:   journal.Kind(q.Get("kind")),
		Limit:  defaultEventLimit,
	}
	if raw := q.Get("account"); raw != "" {
		if !common.IsHexAddress(raw) {
			s.writeError(w, badRequest("invalid account %q", raw))
			return
		}
		f.Account = common.HexToAddress(raw)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, badRequest("invalid limit %q", raw))
			return
		}
		f.Limit = n
	}
	events, err := s.journal.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := protocol.EventsResponse{Events: make([]protocol.Event, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, protocol.NewEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClockAdvance(w http.ResponseWriter, r *http.Request) {
	var req protocol.ClockAdvanceRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	now, err := s.clock.(*clock.Manual).TryAdvance(req.Seconds)
	if err != nil {
		s.writeError(w, badRequest("seconds: %v", err))
		return
	}
	s.logger.Debug("Clock advanced", "seconds", req.Seconds, "now", now)
	writeJSON(w, http.StatusOK, protocol.ClockResponse{Now: now})
}
