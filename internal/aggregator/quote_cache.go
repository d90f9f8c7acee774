package aggregator

import (
	"encoding/json"

	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/venue"
)

// quoteWire is the JSON shape a venue.Quote serializes to for the cache,
// since money.Money already round-trips as a quoted decimal string.
type quoteWire struct {
	Venue        string   `json:"venue"`
	Network      string   `json:"network"`
	FromToken    string   `json:"from_token"`
	ToToken      string   `json:"to_token"`
	InputAmount  string   `json:"input_amount"`
	OutputAmount string   `json:"output_amount"`
	PriceImpact  string   `json:"price_impact"`
	Route        []string `json:"route"`
}

func marshalQuote(q *venue.Quote) ([]byte, error) {
	return json.Marshal(quoteWire{
		Venue: q.Venue, Network: q.Network, FromToken: q.FromToken, ToToken: q.ToToken,
		InputAmount: q.InputAmount.String(), OutputAmount: q.OutputAmount.String(), PriceImpact: q.PriceImpact,
		Route: q.Route,
	})
}

func unmarshalQuote(raw []byte, q *venue.Quote) error {
	var w quoteWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	input, err := money.Parse(w.InputAmount)
	if err != nil {
		return err
	}
	output, err := money.Parse(w.OutputAmount)
	if err != nil {
		return err
	}
	q.Venue, q.Network, q.FromToken, q.ToToken = w.Venue, w.Network, w.FromToken, w.ToToken
	q.InputAmount, q.OutputAmount, q.PriceImpact, q.Route = input, output, w.PriceImpact, w.Route
	return nil
}
