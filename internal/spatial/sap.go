package spatial

import (
	"sort"

	"tilecollide/internal/geom"
)

// SweepAndPrune implements 1-axis sweep with temporal coherence for
// broad-phase pairing of circular bodies. It projects each circle onto the
// X-axis, sorts interval endpoints, and reports overlapping intervals.
//
// With temporal coherence (bodies move little between steps), insertion sort
// approaches O(n).
//
// Origin: Baraff & Witkin (SIGGRAPH 1992); Bullet Physics (2003)
type SweepAndPrune struct {
	endpoints  []SAPEndpoint   // All min/max endpoints
	pairs      []CollisionPair // Output buffer (reused)
	active     []uint32        // Active interval set (reused)
	useInsSort bool            // Use insertion sort for temporal coherence
}

// SAPEndpoint represents one end of a bounding interval on the sweep axis.
type SAPEndpoint struct {
	Value  float64 // X coordinate
	BodyID uint32  // Which body
	IsMin  bool    // true = start of interval, false = end
}

// CollisionPair represents two bodies whose X intervals overlap.
// A is always the body whose interval started later in the sweep.
type CollisionPair struct {
	A, B uint32
}

// NewSweepAndPrune creates a new sweep-and-prune broad phase.
// maxBodies is used to preallocate buffers.
func NewSweepAndPrune(maxBodies int) *SweepAndPrune {
	return &SweepAndPrune{
		endpoints:  make([]SAPEndpoint, 0, maxBodies*2),
		pairs:      make([]CollisionPair, 0, maxBodies),
		active:     make([]uint32, 0, maxBodies/4+1),
		useInsSort: true,
	}
}

// UpdateCircles rebuilds endpoints from circles and returns every pair
// whose X extents overlap. Degenerate circles are skipped since they never
// collide. Index i in circles is body ID i.
//
// Returns overlapping pairs. The returned slice is reused on subsequent calls.
func (s *SweepAndPrune) UpdateCircles(circles []geom.Circle2D) []CollisionPair {
	s.endpoints = s.endpoints[:0]

	for i, c := range circles {
		if c.Degenerate() {
			continue
		}
		s.endpoints = append(s.endpoints,
			SAPEndpoint{c.Center.X - c.Radius, uint32(i), true},
			SAPEndpoint{c.Center.X + c.Radius, uint32(i), false},
		)
	}

	return s.sweep()
}

func (s *SweepAndPrune) sweep() []CollisionPair {
	s.pairs = s.pairs[:0]

	if s.useInsSort && len(s.endpoints) > 1 {
		// Insertion sort: O(n) for nearly-sorted data (temporal coherence)
		insertionSortEndpoints(s.endpoints)
	} else {
		sort.SliceStable(s.endpoints, func(i, j int) bool {
			return endpointLess(s.endpoints[i], s.endpoints[j])
		})
	}

	s.active = s.active[:0]

	for _, ep := range s.endpoints {
		if ep.IsMin {
			// Starting new interval - pair with all active intervals
			for _, other := range s.active {
				s.pairs = append(s.pairs, CollisionPair{ep.BodyID, other})
			}
			s.active = append(s.active, ep.BodyID)
			continue
		}
		// Ending interval - remove from active set
		for i, id := range s.active {
			if id == ep.BodyID {
				s.active[i] = s.active[len(s.active)-1]
				s.active = s.active[:len(s.active)-1]
				break
			}
		}
	}

	return s.pairs
}

// SetInsertionSort enables/disables insertion sort optimization.
// When true (default), uses insertion sort which is O(n) for nearly-sorted data.
// When false, uses Go's standard sort which is O(n log n).
func (s *SweepAndPrune) SetInsertionSort(enabled bool) {
	s.useInsSort = enabled
}

// endpointLess orders by value, with starts before ends at equal values so
// touching intervals still pair (touching circles overlap).
func endpointLess(a, b SAPEndpoint) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.IsMin && !b.IsMin
}

// insertionSortEndpoints sorts endpoints in-place using insertion sort.
func insertionSortEndpoints(eps []SAPEndpoint) {
	for i := 1; i < len(eps); i++ {
		key := eps[i]
		j := i - 1
		for j >= 0 && endpointLess(key, eps[j]) {
			eps[j+1] = eps[j]
			j--
		}
		eps[j+1] = key
	}
}
