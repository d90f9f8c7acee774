// Package aggregator fans quote requests out across every venue registered
// for a network, picks the best route, and executes swaps with a
// partial-fill cascade when a single venue can't absorb the full amount.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/tradecore/internal/cache"
	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/internal/telemetry"
	"github.com/klingon-exchange/tradecore/internal/venue"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

const (
	quoteDeadline  = 30 * time.Second
	quoteCacheTTL  = 5 * time.Second
	maxCascadeHops = 4
)

// Aggregator is the DEX Aggregator (C3): best-price discovery and
// partial-fill-aware swap execution across every venue on a network.
type Aggregator struct {
	registry *venue.Registry
	cache    cache.Store
	storage  *storage.Storage
	ranking  *RankTable
	metrics  *telemetry.Metrics
	log      *logging.Logger
}

// New builds an Aggregator. metrics may be nil to skip swap telemetry.
func New(registry *venue.Registry, store cache.Store, db *storage.Storage, metrics *telemetry.Metrics, log *logging.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		cache:    store,
		storage:  db,
		ranking:  NewRankTable(),
		metrics:  metrics,
		log:      log.Component("aggregator"),
	}
}

func quoteCacheKey(network, from, to, amount string) string {
	return fmt.Sprintf("quote:%s:%s:%s:%s", network, from, to, amount)
}

// BestPrice returns the best available quote for a pair, checking the
// cache first, then fanning the request out to every registered venue on
// the network under a shared deadline, and writing the winning quote back
// to the cache (and an append-only market snapshot) before returning.
func (a *Aggregator) BestPrice(ctx context.Context, network, fromToken, toToken string, inputAmount money.Money) (*venue.Quote, error) {
	key := quoteCacheKey(network, fromToken, toToken, inputAmount.String())
	if cached, ok, err := a.cache.Get(key); err == nil && ok {
		var q venue.Quote
		if err := unmarshalQuote(cached, &q); err == nil {
			return &q, nil
		}
	}

	clients := a.registry.ForNetwork(network)
	if len(clients) == 0 {
		return nil, errs.NotFoundf("no venues registered for network %s", network)
	}

	ctx, cancel := context.WithTimeout(ctx, quoteDeadline)
	defer cancel()

	quotes := make([]*venue.Quote, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		i, c := i, c
		g.Go(func() error {
			q, err := c.Quote(gctx, fromToken, toToken, inputAmount)
			if err != nil {
				a.log.Warn("venue quote failed", "venue", c.Name(), "error", err)
				a.ranking.RecordFailure(network, c.Name())
				return nil // one venue's failure never fails the whole fan-out
			}
			a.ranking.RecordSuccess(network, c.Name())
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.Transient, "quote fan-out failed", err)
	}

	best := pickBest(quotes, a.ranking, network)
	if best == nil {
		return nil, errs.NotFoundf("no venue returned a quote for %s/%s on %s", fromToken, toToken, network)
	}

	if raw, err := marshalQuote(best); err == nil {
		_ = a.cache.SetWithTTL(key, raw, quoteCacheTTL)
	}
	if a.storage != nil {
		_ = a.storage.RecordMarketSnapshot(&storage.MarketSnapshot{
			Network: network, FromToken: fromToken, ToToken: toToken,
			OutputAmount: best.OutputAmount.String(), Venue: best.Venue, SampledAt: time.Now(),
		})
	}

	return best, nil
}

// pickBest selects the quote with the highest output amount; ties are
// broken by venue reliability ranking, then by venue name for determinism.
func pickBest(quotes []*venue.Quote, ranking *RankTable, network string) *venue.Quote {
	var best *venue.Quote
	for _, q := range quotes {
		if q == nil {
			continue
		}
		if best == nil {
			best = q
			continue
		}
		if q.OutputAmount.GreaterThan(best.OutputAmount) {
			best = q
			continue
		}
		if q.OutputAmount.Equal(best.OutputAmount) {
			if ranking.Score(network, q.Venue) > ranking.Score(network, best.Venue) {
				best = q
			} else if ranking.Score(network, q.Venue) == ranking.Score(network, best.Venue) && q.Venue < best.Venue {
				best = q
			}
		}
	}
	return best
}

// ExecuteSwap performs the swap, ordering venues by reliability ranking and
// cascading into the next-best venue for any shortfall that the first
// venue can't fill, up to maxCascadeHops. minOutputAmount bounds the
// aggregate output across every hop, not any single hop: if the cumulative
// fill across every hop still falls short, the whole swap fails with
// AllVenuesFailed rather than returning a sub-min_out result.
func (a *Aggregator) ExecuteSwap(ctx context.Context, idempotencyKey, network, fromToken, toToken string, inputAmount, minOutputAmount money.Money) (*venue.SwapResult, error) {
	clients := a.registry.ForNetwork(network)
	if len(clients) == 0 {
		return nil, errs.NotFoundf("no venues registered for network %s", network)
	}
	ordered := a.ranking.Rank(network, clients)

	return a.cascade(ctx, idempotencyKey, network, ordered, fromToken, toToken, inputAmount, minOutputAmount)
}

// cascade walks ordered venues, feeding each the input needed to cover
// whatever shortfall remains, until the combined output reaches
// minOutputAmount or every venue (or the hop budget) is exhausted.
func (a *Aggregator) cascade(ctx context.Context, idempotencyKey, network string, ordered []venue.Client, fromToken, toToken string, inputAmount, minOutputAmount money.Money) (*venue.SwapResult, error) {
	var (
		totalOutput  = money.Zero
		venues       []string
		txRefs       []string
		priceImpact  string
		currentInput = inputAmount
	)

	hops := len(ordered)
	if hops > maxCascadeHops {
		hops = maxCascadeHops
	}

	for hop := 0; hop < hops; hop++ {
		c := ordered[hop]
		hopKey := fmt.Sprintf("%s:hop%d", idempotencyKey, hop)

		start := time.Now()
		result, err := c.Swap(ctx, hopKey, fromToken, toToken, currentInput, money.Zero)
		duration := time.Since(start).Seconds()

		if err != nil {
			a.log.Warn("venue swap failed, cascading", "venue", c.Name(), "error", err)
			a.ranking.RecordFailure(network, c.Name())
			if a.metrics != nil {
				a.metrics.RecordSwapFailure(c.Name(), network, venueErrorType(err), duration)
			}
			continue
		}
		a.ranking.RecordSuccess(network, c.Name())
		if a.metrics != nil {
			a.metrics.RecordSwapSuccess(c.Name(), network, fromToken+"/"+toToken, duration, currentInput.Decimal().InexactFloat64())
		}

		totalOutput = totalOutput.Add(result.OutputAmount)
		venues = append(venues, result.Venue)
		txRefs = append(txRefs, result.TxRef)
		priceImpact = result.PriceImpact

		if totalOutput.GreaterThanOrEqual(minOutputAmount) {
			return buildCascadeResult(venues, txRefs, totalOutput, priceImpact), nil
		}

		shortfall, err := minOutputAmount.Sub(totalOutput)
		if err != nil || shortfall.IsZero() {
			return buildCascadeResult(venues, txRefs, totalOutput, priceImpact), nil
		}
		// Scale the next hop's input by the fraction of output still owed, so
		// it requests roughly enough to cover the remaining shortfall.
		shortfallRatio := shortfall.Decimal().Div(minOutputAmount.Decimal())
		currentInput = inputAmount.Mul(shortfallRatio)
		if currentInput.IsZero() {
			break
		}
	}

	return nil, errs.New(errs.Transient, "AllVenuesFailed")
}

// buildCascadeResult assembles the final SwapResult from one or more hops.
// A single-hop fill returns PartialExecution=false with an empty
// AdditionalTx; a multi-hop fill sets both, per spec scenario S2.
func buildCascadeResult(venues, txRefs []string, totalOutput money.Money, priceImpact string) *venue.SwapResult {
	result := &venue.SwapResult{
		Venue:        venues[0],
		TxRef:        txRefs[0],
		OutputAmount: totalOutput,
		PriceImpact:  priceImpact,
	}
	if len(venues) > 1 {
		result.PartialExecution = true
		result.AdditionalTx = txRefs[1]
		result.Venue = venues[0] + "+" + venues[1]
	}
	return result
}

// venueErrorType classifies a venue error into a short label for the
// swap_failure_total error_type label.
func venueErrorType(err error) string {
	switch {
	case errors.Is(err, venue.ErrPairNotFound):
		return "pair_not_found"
	case errors.Is(err, venue.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, venue.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, venue.ErrVenueTimeout):
		return "timeout"
	case errors.Is(err, venue.ErrVenueRejected):
		return "rejected"
	default:
		return "unknown"
	}
}
