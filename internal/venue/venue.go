// Package venue provides the per-DEX HTTP adapters the aggregator fans
// quotes and swaps out to. Every adapter implements Client over a shared
// resty-backed transport, the way the teacher's MempoolBackend/EsploraBackend
// pair share one HTTP core and vary only per-endpoint behavior.
package venue

import (
	"context"
	"errors"

	"github.com/klingon-exchange/tradecore/internal/money"
)

// Errors a Client implementation maps its transport failures onto.
var (
	ErrPairNotFound  = errors.New("venue: trading pair not found")
	ErrUnauthorized  = errors.New("venue: unauthorized")
	ErrRateLimited   = errors.New("venue: rate limited")
	ErrVenueTimeout  = errors.New("venue: request timed out")
	ErrVenueRejected = errors.New("venue: swap rejected")
)

// Quote is a venue's answer to "how much ToToken do I get for this many
// FromToken right now".
type Quote struct {
	Venue        string
	Network      string
	FromToken    string
	ToToken      string
	InputAmount  money.Money
	OutputAmount money.Money
	PriceImpact  string   // decimal string, venue-reported, informational only
	Route        []string // ordered pools/pairs traversed from FromToken to ToToken
}

// SwapResult is a venue's answer to an executed swap. PartialExecution and
// AdditionalTx are only set when the aggregator had to cascade into a
// second venue to cover a shortfall from the first; a single-venue fill
// leaves both at their zero value.
type SwapResult struct {
	Venue            string
	TxRef            string
	OutputAmount     money.Money
	PriceImpact      string
	PartialExecution bool
	AdditionalTx     string
}

// Client is the contract every venue adapter implements. Quote is
// side-effect-free; Swap executes against the venue and must be idempotent
// under the caller's client-supplied idempotency key.
type Client interface {
	Name() string
	Network() string
	Quote(ctx context.Context, fromToken, toToken string, inputAmount money.Money) (*Quote, error)
	Swap(ctx context.Context, idempotencyKey, fromToken, toToken string, inputAmount, minOutputAmount money.Money) (*SwapResult, error)
}
