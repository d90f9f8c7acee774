package venue

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/tradecore/internal/money"
)

// StonFiVenue adapts the STON.fi DEX quote/swap API on TON.
type StonFiVenue struct {
	*httpVenue
}

// NewStonFiVenue creates a STON.fi adapter against baseURL.
func NewStonFiVenue(baseURL string) *StonFiVenue {
	return &StonFiVenue{httpVenue: newHTTPVenue("stonfi", "TON", baseURL)}
}

type stonfiSimulateResponse struct {
	SwapRate    string   `json:"swap_rate"`
	ToAmount    string   `json:"min_ask_amount"`
	PriceImpact string   `json:"price_impact"`
	Route       []string `json:"route"`
}

// Quote fetches the simulated swap rate from STON.fi.
func (s *StonFiVenue) Quote(ctx context.Context, fromToken, toToken string, inputAmount money.Money) (*Quote, error) {
	var result stonfiSimulateResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offer_address": fromToken,
			"ask_address":   toToken,
			"units":         inputAmount.String(),
		}).
		SetResult(&result).
		Get("/swap/simulate")
	if err != nil {
		return nil, fmt.Errorf("stonfi quote: %w", mapTimeoutErr(ctx, err))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stonfi quote: %w", mapStatusError(resp.StatusCode(), resp.String()))
	}

	out, err := money.Parse(result.ToAmount)
	if err != nil {
		return nil, fmt.Errorf("stonfi quote: invalid output amount: %w", err)
	}

	return &Quote{
		Venue: s.Name(), Network: s.Network(), FromToken: fromToken, ToToken: toToken,
		InputAmount: inputAmount, OutputAmount: out, PriceImpact: result.PriceImpact, Route: result.Route,
	}, nil
}

type stonfiSwapRequest struct {
	IdempotencyKey string `json:"query_id"`
	OfferAddress   string `json:"offer_address"`
	AskAddress     string `json:"ask_address"`
	OfferUnits     string `json:"offer_units"`
	MinAskUnits    string `json:"min_ask_units"`
}

type stonfiSwapResponse struct {
	BOCHash     string `json:"boc_hash"`
	AskUnits    string `json:"ask_units"`
	PriceImpact string `json:"price_impact"`
}

// Swap executes a swap against STON.fi, guarded by minOutputAmount.
func (s *StonFiVenue) Swap(ctx context.Context, idempotencyKey, fromToken, toToken string, inputAmount, minOutputAmount money.Money) (*SwapResult, error) {
	var result stonfiSwapResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(stonfiSwapRequest{
			IdempotencyKey: idempotencyKey,
			OfferAddress:   fromToken,
			AskAddress:     toToken,
			OfferUnits:     inputAmount.String(),
			MinAskUnits:    minOutputAmount.String(),
		}).
		SetResult(&result).
		Post("/swap/execute")
	if err != nil {
		return nil, fmt.Errorf("stonfi swap: %w", mapTimeoutErr(ctx, err))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stonfi swap: %w", mapStatusError(resp.StatusCode(), resp.String()))
	}

	out, err := money.Parse(result.AskUnits)
	if err != nil {
		return nil, fmt.Errorf("stonfi swap: invalid output amount: %w", err)
	}
	if out.LessThan(minOutputAmount) {
		return nil, ErrVenueRejected
	}

	return &SwapResult{
		Venue: s.Name(), TxRef: result.BOCHash, OutputAmount: out, PriceImpact: result.PriceImpact,
	}, nil
}

var _ Client = (*StonFiVenue)(nil)
