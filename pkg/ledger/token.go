package ledger

import "fmt"

// Storage bounds for descriptor text, in bytes.
const (
	MaxTokenNameLen   = 50
	MaxTokenSymbolLen = 10
	MaxDescriptionLen = 200
)

// TokenDescriptor is the metadata of a token. TotalSupply mirrors approved
// grants and is informational; the mint resource holds the real supply.
type TokenDescriptor struct {
	TokenID     Identity `json:"token_id"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Description string   `json:"description"`
	Decimals    uint8    `json:"decimals"`
	Authority   Identity `json:"authority"`
	TotalSupply uint64   `json:"total_supply"`
}

// CreateDescriptor initializes a descriptor with zero supply.
// Uniqueness of tokenID is the store's concern.
func CreateDescriptor(tokenID Identity, name, symbol, description string, decimals uint8, authority Identity) (TokenDescriptor, error) {
	if err := ValidIdentity(tokenID); err != nil {
		return TokenDescriptor{}, err
	}
	if err := ValidIdentity(authority); err != nil {
		return TokenDescriptor{}, err
	}
	if err := checkLen("token name", name, MaxTokenNameLen); err != nil {
		return TokenDescriptor{}, err
	}
	if err := checkLen("token symbol", symbol, MaxTokenSymbolLen); err != nil {
		return TokenDescriptor{}, err
	}
	if err := checkLen("token description", description, MaxDescriptionLen); err != nil {
		return TokenDescriptor{}, err
	}
	return TokenDescriptor{
		TokenID:     tokenID,
		Name:        name,
		Symbol:      symbol,
		Description: description,
		Decimals:    decimals,
		Authority:   authority,
		TotalSupply: 0,
	}, nil
}

// RecordSupplyIncrease advances TotalSupply by amount.
func RecordSupplyIncrease(desc TokenDescriptor, amount uint64) (TokenDescriptor, error) {
	supply, err := CheckedAdd(desc.TotalSupply, amount)
	if err != nil {
		return desc, fmt.Errorf("supply of %s: %w", desc.TokenID, err)
	}
	next := desc
	next.TotalSupply = supply
	return next, nil
}
