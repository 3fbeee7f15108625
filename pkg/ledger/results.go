package ledger

// TokenParams are the caller-supplied fields of a new token.
type TokenParams struct {
	TokenID     Identity `json:"token_id"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Description string   `json:"description"`
	Decimals    uint8    `json:"decimals"`
}

// Holding is one holder's balance of one token on the token resource.
type Holding struct {
	Holder      Identity `json:"holder"`
	TokenID     Identity `json:"token_id"`
	Amount      uint64   `json:"amount"`
	LastGrantID string   `json:"last_grant_id,omitempty"`
}

// Grant describes an approved and committed daily mint.
type Grant struct {
	ID             string              `json:"grant_id"`
	TokenID        Identity            `json:"token_id"`
	Action         MintAction          `json:"action"`
	Record         DailyIssuanceRecord `json:"record"`
	NextEligibleAt int64               `json:"next_eligible_at"`
}

// Eligibility is a read-only view of a holder's rate-limiter state.
type Eligibility struct {
	HolderID       Identity `json:"holder_id"`
	State          string   `json:"state"`
	LastMintDay    Day      `json:"last_mint_day"`
	TotalMinted    uint64   `json:"total_minted"`
	NextEligibleAt int64    `json:"next_eligible_at"`
}

// CheckEligibility reports where holder stands at time now without changing anything.
func CheckEligibility(rec *DailyIssuanceRecord, holder Identity, now int64) Eligibility {
	e := Eligibility{
		HolderID:       holder,
		State:          StateOf(rec, now).String(),
		NextEligibleAt: NextEligibleAt(rec, now),
	}
	if rec != nil {
		e.LastMintDay = rec.LastMintDay
		e.TotalMinted = rec.TotalMinted
	}
	return e
}
