package tokenomics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/minx-network/distribution/internal/units"
)

// Beneficiary is one entry of a sale beneficiary list.
type Beneficiary struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
	// Tokens is in whole tokens with up to 18 decimals.
	Tokens json.Number `json:"tokens"`
}

// Amount is Tokens in base units.
func (b *Beneficiary) Amount() (*uint256.Int, error) {
	return units.ParseTokens(b.Tokens.String())
}

// LoadBeneficiaries reads a beneficiary list file.
func LoadBeneficiaries(path string) ([]Beneficiary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open beneficiaries: %w", err)
	}
	defer f.Close()
	return ParseBeneficiaries(f)
}

// ParseBeneficiaries decodes a beneficiary list and rejects null addresses,
// duplicates and unparsable amounts.
func ParseBeneficiaries(r io.Reader) ([]Beneficiary, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var list []Beneficiary
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode beneficiaries: %w", err)
	}
	seen := make(map[common.Address]string, len(list))
	for i := range list {
		b := &list[i]
		if b.Address == (common.Address{}) {
			return nil, fmt.Errorf("beneficiary %d (%s): null address", i, b.Name)
		}
		if prev, dup := seen[b.Address]; dup {
			return nil, fmt.Errorf("beneficiary %d (%s): address %s already listed for %s", i, b.Name, b.Address.Hex(), prev)
		}
		seen[b.Address] = b.Name
		if _, err := b.Amount(); err != nil {
			return nil, fmt.Errorf("beneficiary %d (%s): %w", i, b.Name, err)
		}
	}
	return list, nil
}

// SumBeneficiaries adds up every beneficiary amount.
func SumBeneficiaries(list []Beneficiary) (*uint256.Int, error) {
	sum := new(uint256.Int)
	for i := range list {
		amt, err := list[i].Amount()
		if err != nil {
			return nil, err
		}
		if _, overflow := sum.AddOverflow(sum, amt); overflow {
			return nil, fmt.Errorf("%w: beneficiary total", units.ErrOverflow)
		}
	}
	return sum, nil
}
