package venue

// DeDustVenue adapts the DeDust DEX quote/swap API on TON. DeDust's wire
// shape matches STON.fi's, so this extends StonFiVenue the same way
// RaydiumVenue extends OrcaVenue.
type DeDustVenue struct {
	*StonFiVenue
}

// NewDeDustVenue creates a DeDust adapter against baseURL.
func NewDeDustVenue(baseURL string) *DeDustVenue {
	inner := NewStonFiVenue(baseURL)
	inner.httpVenue.name = "dedust"
	return &DeDustVenue{StonFiVenue: inner}
}

var _ Client = (*DeDustVenue)(nil)
