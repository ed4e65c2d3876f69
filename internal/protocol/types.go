// Package protocol defines the JSON bodies of the distribution HTTP API.
// Amounts travel as decimal strings of 18-decimal base units.
package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/journal"
	"github.com/minx-network/distribution/internal/units"
	"github.com/minx-network/distribution/internal/vesting"
)

// ErrorResponse is returned with every non-2xx status. Code is the ledger
// error name when there is one.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// AmountRequest is a caller acting on its own behalf.
type AmountRequest struct {
	Caller common.Address `json:"caller"`
	Amount string         `json:"amount"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

// BeneficiaryRequest admits a sale beneficiary.
type BeneficiaryRequest struct {
	Caller      common.Address `json:"caller"`
	Beneficiary common.Address `json:"beneficiary"`
	Amount      string         `json:"amount"`
}

type TransferRequest struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

type ApproveRequest struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

type BalanceResponse struct {
	Token   string         `json:"token"`
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
}

// Schedule is a vesting schedule on the wire.
type Schedule struct {
	TGEPermille        uint64         `json:"tge_permille"`
	Beneficiary        common.Address `json:"beneficiary"`
	StartTimestamp     uint64         `json:"start_timestamp"`
	CliffDuration      uint64         `json:"cliff_duration"`
	VestingDuration    uint64         `json:"vesting_duration"`
	SlicePeriodSeconds uint64         `json:"slice_period_seconds"`
	TotalAmount        string         `json:"total_amount"`
	ReleasedAmount     string         `json:"released_amount"`
}

// NewSchedule renders s for the wire.
func NewSchedule(s *vesting.Schedule) Schedule {
	c := s.Clone()
	return Schedule{
		TGEPermille:        c.TGEPermille,
		Beneficiary:        c.Beneficiary,
		StartTimestamp:     c.StartTimestamp,
		CliffDuration:      c.CliffDuration,
		VestingDuration:    c.VestingDuration,
		SlicePeriodSeconds: c.SlicePeriodSeconds,
		TotalAmount:        c.TotalAmount.Dec(),
		ReleasedAmount:     c.ReleasedAmount.Dec(),
	}
}

// ToVesting parses the wire form. An empty released amount means zero.
func (s *Schedule) ToVesting() (*vesting.Schedule, error) {
	total, err := ParseAmount(s.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("total_amount: %w", err)
	}
	released := new(uint256.Int)
	if s.ReleasedAmount != "" {
		if released, err = ParseAmount(s.ReleasedAmount); err != nil {
			return nil, fmt.Errorf("released_amount: %w", err)
		}
	}
	return &vesting.Schedule{
		TGEPermille:        s.TGEPermille,
		Beneficiary:        s.Beneficiary,
		StartTimestamp:     s.StartTimestamp,
		CliffDuration:      s.CliffDuration,
		VestingDuration:    s.VestingDuration,
		SlicePeriodSeconds: s.SlicePeriodSeconds,
		TotalAmount:        total,
		ReleasedAmount:     released,
	}, nil
}

// ScheduleRequest adds one schedule to the vesting ledger.
type ScheduleRequest struct {
	Caller   common.Address `json:"caller"`
	Schedule Schedule       `json:"schedule"`
}

// SchedulesRequest adds a batch of schedules, keeping released amounts.
type SchedulesRequest struct {
	Caller    common.Address `json:"caller"`
	Schedules []Schedule     `json:"schedules"`
}

// ScheduleResponse is a schedule with what is releasable right now.
type ScheduleResponse struct {
	Schedule   Schedule `json:"schedule"`
	Releasable string   `json:"releasable"`
	Vested     string   `json:"vested"`
}

type BeneficiariesResponse struct {
	Beneficiaries []common.Address `json:"beneficiaries"`
}

// LedgerInfo summarises one ledger.
type LedgerInfo struct {
	Name      string         `json:"name"`
	Address   common.Address `json:"address"`
	Owner     common.Address `json:"owner"`
	Committed string         `json:"committed,omitempty"`
}

type TokenInfo struct {
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Address     common.Address `json:"address"`
	TotalSupply string         `json:"total_supply"`
}

type InfoResponse struct {
	Now     uint64       `json:"now"`
	Tokens  []TokenInfo  `json:"tokens"`
	Ledgers []LedgerInfo `json:"ledgers"`
}

// SwapInfo describes the private sale window.
type SwapInfo struct {
	Phase          string `json:"phase"`
	SaleEnd        uint64 `json:"sale_end"`
	Ratio          uint64 `json:"ratio"`
	DepositCap     string `json:"deposit_cap"`
	TotalDeposited string `json:"total_deposited"`
	Sold           string `json:"sold"`
}

type Event struct {
	ID        string         `json:"id"`
	Ledger    string         `json:"ledger"`
	Kind      string         `json:"kind"`
	Account   common.Address `json:"account"`
	Amount    string         `json:"amount"`
	Timestamp uint64         `json:"timestamp"`
}

func NewEvent(e journal.Event) Event {
	return Event{
		ID:        e.ID.String(),
		Ledger:    e.Ledger,
		Kind:      string(e.Kind),
		Account:   e.Account,
		Amount:    e.Amount.Dec(),
		Timestamp: e.Timestamp,
	}
}

type EventsResponse struct {
	Events []Event `json:"events"`
}

type ClockAdvanceRequest struct {
	Seconds uint64 `json:"seconds"`
}

type ClockResponse struct {
	Now uint64 `json:"now"`
}

// ParseAmount parses a base-unit amount.
func ParseAmount(s string) (*uint256.Int, error) {
	return units.ParseBaseUnits(s)
}
