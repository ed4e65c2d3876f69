package service

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/tokenomics"
	"github.com/minx-network/distribution/internal/units"
	"github.com/minx-network/distribution/internal/vesting"
)

// deploy funds each ledger from the owner and admits the configured
// beneficiaries. It only runs against a fresh state.
func (s *Service) deploy(tn *tokenomics.Tokenomics, strategic, private *vesting.Schedule) error {
	owner := s.cfg.Owner

	// Vesting ledger: one schedule per wallet allocation
	schedules, err := tn.WalletSchedules()
	if err != nil {
		return err
	}
	vestingTotal := new(uint256.Int)
	for _, sc := range schedules {
		vestingTotal.Add(vestingTotal, sc.TotalAmount)
	}
	if err := s.token.Transfer(owner, s.vesting.Address(), vestingTotal); err != nil {
		return fmt.Errorf("fund vesting ledger: %w", err)
	}
	if err := s.vesting.AddSchedules(owner, schedules); err != nil {
		return fmt.Errorf("add vesting schedules: %w", err)
	}

	// Sale ledger: strategic allocation, beneficiaries from the list
	if err := s.token.Transfer(owner, s.sale.Address(), strategic.TotalAmount); err != nil {
		return fmt.Errorf("fund sale ledger: %w", err)
	}
	if s.cfg.BeneficiariesPath != "" {
		list, err := tokenomics.LoadBeneficiaries(s.cfg.BeneficiariesPath)
		if err != nil {
			return err
		}
		for _, b := range list {
			amount, err := b.Amount()
			if err != nil {
				return err
			}
			if err := s.sale.AddBeneficiary(owner, b.Address, amount); err != nil {
				return fmt.Errorf("add sale beneficiary %s: %w", b.Name, err)
			}
		}
	}

	// Swap ledger: private allocation, opened on construction
	if err := s.token.Transfer(owner, s.swap.Address(), private.TotalAmount); err != nil {
		return fmt.Errorf("fund swap ledger: %w", err)
	}

	s.logger.Info("Deployed ledgers",
		"vesting", units.FormatTokens(vestingTotal),
		"sale", units.FormatTokens(strategic.TotalAmount),
		"swap", units.FormatTokens(private.TotalAmount),
		"saleEnd", s.swap.SaleEnd())
	return nil
}
