package vesting

import (
	"errors"

	"github.com/minx-network/distribution/internal/access"
	"github.com/minx-network/distribution/internal/custody"
)

var (
	ErrInvalidBeneficiary   = errors.New("invalid beneficiary")
	ErrDuplicateBeneficiary = errors.New("beneficiary already exists")
	ErrBeneficiaryNotFound  = errors.New("beneficiary not found")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientFunds    = errors.New("insufficient funds for vesting schedules")
	ErrInvalidSlice         = errors.New("invalid slice period")
	ErrInvalidDuration      = errors.New("invalid vesting duration")
	ErrNoTokensDue          = errors.New("no tokens are due")
	ErrExceedsReleasable    = errors.New("amount exceeds releasable amount")
	ErrExceedsWithdrawable  = errors.New("amount exceeds withdrawable amount")
	ErrExceedsSupply        = errors.New("amount exceeds sale supply")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientSupply   = errors.New("insufficient supply")
	ErrSaleEnded            = errors.New("sale has ended")
	ErrSaleOngoing          = errors.New("sale is ongoing")
	ErrInvalidSwapToken     = errors.New("invalid swap token")
	ErrScheduleOverlapsSale = errors.New("vesting schedule starts before sale ends")

	ErrUnauthorized   = access.ErrUnauthorized
	ErrTransferFailed = custody.ErrTransferFailed
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidBeneficiary, "InvalidBeneficiary"},
	{ErrDuplicateBeneficiary, "DuplicateBeneficiary"},
	{ErrBeneficiaryNotFound, "BeneficiaryNotFound"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInvalidSlice, "InvalidSlice"},
	{ErrInvalidDuration, "InvalidDuration"},
	{ErrNoTokensDue, "NoTokensDue"},
	{ErrExceedsReleasable, "ExceedsReleasable"},
	{ErrExceedsWithdrawable, "ExceedsWithdrawable"},
	{ErrExceedsSupply, "ExceedsSupply"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInsufficientSupply, "InsufficientSupply"},
	{ErrSaleEnded, "SaleEnded"},
	{ErrSaleOngoing, "SaleOngoing"},
	{ErrInvalidSwapToken, "InvalidSwapToken"},
	{ErrScheduleOverlapsSale, "ScheduleOverlapsSale"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrTransferFailed, "TransferFailed"},
}

// Code returns the taxonomy name of err, or "" if err is not a ledger error.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
