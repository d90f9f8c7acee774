package venue

// RaydiumVenue adapts the Raydium AMM quote/swap API on Solana. Raydium's
// quote/swap wire shape matches Orca's, so this extends OrcaVenue the way
// the teacher's EsploraBackend extends MempoolBackend: reuse the behavior,
// swap only the identity.
type RaydiumVenue struct {
	*OrcaVenue
}

// NewRaydiumVenue creates a Raydium adapter against baseURL.
func NewRaydiumVenue(baseURL string) *RaydiumVenue {
	inner := NewOrcaVenue(baseURL)
	inner.httpVenue.name = "raydium"
	return &RaydiumVenue{OrcaVenue: inner}
}

var _ Client = (*RaydiumVenue)(nil)
