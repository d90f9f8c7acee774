package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klingon-exchange/tradecore/internal/venue"
)

func TestRankTableScoreStartsAtZeroAndClimbsWithSuccess(t *testing.T) {
	r := NewRankTable()
	assert.Equal(t, float64(0), r.Score("SOL", "orca"))

	r.RecordSuccess("SOL", "orca")
	assert.Greater(t, r.Score("SOL", "orca"), float64(0))

	before := r.Score("SOL", "orca")
	r.RecordFailure("SOL", "orca")
	assert.Less(t, r.Score("SOL", "orca"), before)
}

func TestRankTableRankOrdersByDescendingScore(t *testing.T) {
	r := NewRankTable()
	r.RecordSuccess("SOL", "good")
	r.RecordSuccess("SOL", "good")
	r.RecordFailure("SOL", "bad")

	good := &fakeVenue{name: "good", network: "SOL"}
	bad := &fakeVenue{name: "bad", network: "SOL"}
	untested := &fakeVenue{name: "untested", network: "SOL"}

	ordered := r.Rank("SOL", []venue.Client{bad, untested, good})
	assert.Equal(t, "good", ordered[0].Name())
}
