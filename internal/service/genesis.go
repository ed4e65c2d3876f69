package service

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/minx-network/distribution/config"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/units"
)

// Tokens binds the configured distribution and swap tokens to st.
func Tokens(st *custody.State, cfg *config.Config) (token, swapToken *custody.Token) {
	token = custody.NewToken(st, cfg.Token.Address, cfg.Token.Name, cfg.Token.Symbol)
	swapToken = custody.NewToken(st, cfg.SwapToken.Address, cfg.SwapToken.Name, cfg.SwapToken.Symbol)
	return token, swapToken
}

// Genesis mints each configured supply to the owner. Tokens that already
// have supply are left alone, so it is safe to call on every start.
func Genesis(token, swapToken *custody.Token, cfg *config.Config, logger log.Logger) error {
	for _, g := range []struct {
		token  *custody.Token
		supply string
	}{
		{token, cfg.Token.Supply},
		{swapToken, cfg.SwapToken.Supply},
	} {
		if g.supply == "" || !g.token.TotalSupply().IsZero() {
			continue
		}
		amount, err := units.ParseTokens(g.supply)
		if err != nil {
			return fmt.Errorf("%s supply: %w", g.token.Symbol(), err)
		}
		if err := g.token.Mint(cfg.Owner, amount); err != nil {
			return fmt.Errorf("mint %s: %w", g.token.Symbol(), err)
		}
		logger.Info("Minted genesis supply", "token", g.token.Symbol(), "to", cfg.Owner, "amount", units.FormatTokens(amount))
	}
	return nil
}
