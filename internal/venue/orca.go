package venue

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/tradecore/internal/money"
)

// OrcaVenue adapts the Orca Whirlpools quote/swap API on Solana.
type OrcaVenue struct {
	*httpVenue
}

// NewOrcaVenue creates an Orca adapter against baseURL.
func NewOrcaVenue(baseURL string) *OrcaVenue {
	return &OrcaVenue{httpVenue: newHTTPVenue("orca", "SOL", baseURL)}
}

type quoteResponse struct {
	OutAmount   string   `json:"out_amount"`
	PriceImpact string   `json:"price_impact_pct"`
	Route       []string `json:"route"`
}

// Quote fetches the best Orca route for the pair.
func (o *OrcaVenue) Quote(ctx context.Context, fromToken, toToken string, inputAmount money.Money) (*Quote, error) {
	var result quoteResponse
	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from":   fromToken,
			"to":     toToken,
			"amount": inputAmount.String(),
		}).
		SetResult(&result).
		Get("/quote")
	if err != nil {
		return nil, fmt.Errorf("orca quote: %w", mapTimeoutErr(ctx, err))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("orca quote: %w", mapStatusError(resp.StatusCode(), resp.String()))
	}

	out, err := money.Parse(result.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("orca quote: invalid output amount: %w", err)
	}

	return &Quote{
		Venue: o.Name(), Network: o.Network(), FromToken: fromToken, ToToken: toToken,
		InputAmount: inputAmount, OutputAmount: out, PriceImpact: result.PriceImpact, Route: result.Route,
	}, nil
}

type swapRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	FromToken      string `json:"from_token"`
	ToToken        string `json:"to_token"`
	InputAmount    string `json:"input_amount"`
	MinOutput      string `json:"min_output_amount"`
}

type swapResponse struct {
	TxSignature string `json:"tx_signature"`
	OutAmount   string `json:"out_amount"`
	PriceImpact string `json:"price_impact_pct"`
}

// Swap executes a swap against Orca, guarded by minOutputAmount.
func (o *OrcaVenue) Swap(ctx context.Context, idempotencyKey, fromToken, toToken string, inputAmount, minOutputAmount money.Money) (*SwapResult, error) {
	var result swapResponse
	resp, err := o.http.R().
		SetContext(ctx).
		SetBody(swapRequest{
			IdempotencyKey: idempotencyKey,
			FromToken:      fromToken,
			ToToken:        toToken,
			InputAmount:    inputAmount.String(),
			MinOutput:      minOutputAmount.String(),
		}).
		SetResult(&result).
		Post("/swap")
	if err != nil {
		return nil, fmt.Errorf("orca swap: %w", mapTimeoutErr(ctx, err))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("orca swap: %w", mapStatusError(resp.StatusCode(), resp.String()))
	}

	out, err := money.Parse(result.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("orca swap: invalid output amount: %w", err)
	}
	if out.LessThan(minOutputAmount) {
		return nil, ErrVenueRejected
	}

	return &SwapResult{
		Venue: o.Name(), TxRef: result.TxSignature, OutputAmount: out, PriceImpact: result.PriceImpact,
	}, nil
}

var _ Client = (*OrcaVenue)(nil)
