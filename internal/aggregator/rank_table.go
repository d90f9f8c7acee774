package aggregator

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/klingon-exchange/tradecore/internal/venue"
)

// venueStats is a lock-free success/failure counter pair for one venue,
// grounded on the connection-count counter style used for peer bookkeeping
// in the teacher's storage layer, generalized to an atomic pair here since
// reads happen far more often than writes.
type venueStats struct {
	success atomic.Int64
	failure atomic.Int64
}

// RankTable tracks venue reliability per network and orders venues by it.
// Score is success/(success+failure+1): an untested venue starts near zero
// and climbs as it fills successfully; until real traffic differentiates
// venues they all score equal and Rank keeps the order it was given.
// Entries live in a sync.Map, so concurrent recorders and readers take no lock.
type RankTable struct {
	stats sync.Map // "network.venue" -> *venueStats
}

// NewRankTable creates an empty RankTable.
func NewRankTable() *RankTable {
	return &RankTable{}
}

func (r *RankTable) entry(network, venueName string) *venueStats {
	key := network + "." + venueName
	if s, ok := r.stats.Load(key); ok {
		return s.(*venueStats)
	}
	s, _ := r.stats.LoadOrStore(key, &venueStats{})
	return s.(*venueStats)
}

// RecordSuccess increments the success counter for (network, venue).
func (r *RankTable) RecordSuccess(network, venueName string) {
	r.entry(network, venueName).success.Add(1)
}

// RecordFailure increments the failure counter for (network, venue).
func (r *RankTable) RecordFailure(network, venueName string) {
	r.entry(network, venueName).failure.Add(1)
}

// Score returns the reliability score for (network, venue) in [0, 1).
func (r *RankTable) Score(network, venueName string) float64 {
	v, ok := r.stats.Load(network + "." + venueName)
	if !ok {
		return 0
	}
	s := v.(*venueStats)
	success := float64(s.success.Load())
	failure := float64(s.failure.Load())
	return success / (success + failure + 1)
}

// Rank returns clients sorted by descending reliability score; ties keep
// their order in clients (a stable sort). Registry.ForNetwork builds that
// slice from a map, so for the aggregator the tie order is not fixed.
func (r *RankTable) Rank(network string, clients []venue.Client) []venue.Client {
	ordered := make([]venue.Client, len(clients))
	copy(ordered, clients)
	sort.SliceStable(ordered, func(i, j int) bool {
		return r.Score(network, ordered[i].Name()) > r.Score(network, ordered[j].Name())
	})
	return ordered
}
