package spatial

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecollide/internal/geom"
)

func normalizePairs(pairs []CollisionPair) [][2]uint32 {
	out := make([][2]uint32, 0, len(pairs))
	for _, p := range pairs {
		a, b := p.A, p.B
		if a > b {
			a, b = b, a
		}
		out = append(out, [2]uint32{a, b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func TestSweepAndPruneFindsXOverlaps(t *testing.T) {
	sap := NewSweepAndPrune(8)
	circles := []geom.Circle2D{
		{Center: geom.Vec2(0, 0), Radius: 1},
		{Center: geom.Vec2(1.5, 50), Radius: 1}, // X overlap only; narrow phase rejects later
		{Center: geom.Vec2(10, 0), Radius: 1},
		{Center: geom.Vec2(12, 0), Radius: 1}, // touches #2 exactly
		{Center: geom.Vec2(0, 0), Radius: 0},  // degenerate, skipped
	}

	pairs := normalizePairs(sap.UpdateCircles(circles))
	assert.Equal(t, [][2]uint32{{0, 1}, {2, 3}}, pairs)
}

func TestSweepAndPruneSortModesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	circles := make([]geom.Circle2D, 60)
	for i := range circles {
		circles[i] = geom.Circle2D{
			Center: geom.Vec2(rng.Float64()*40, rng.Float64()*40),
			Radius: rng.Float64() * 2,
		}
	}

	ins := NewSweepAndPrune(len(circles))
	std := NewSweepAndPrune(len(circles))
	std.SetInsertionSort(false)

	require.Equal(t, normalizePairs(std.UpdateCircles(circles)), normalizePairs(ins.UpdateCircles(circles)))
}

func TestSweepAndPruneMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	sap := NewSweepAndPrune(100)
	for round := 0; round < 20; round++ {
		circles := make([]geom.Circle2D, 40)
		for i := range circles {
			circles[i] = geom.Circle2D{
				Center: geom.Vec2(rng.Float64()*30, rng.Float64()*30),
				Radius: 0.2 + rng.Float64()*1.5,
			}
		}

		var want [][2]uint32
		for i := range circles {
			for j := i + 1; j < len(circles); j++ {
				a, b := circles[i], circles[j]
				if a.Center.X-a.Radius <= b.Center.X+b.Radius && b.Center.X-b.Radius <= a.Center.X+a.Radius {
					want = append(want, [2]uint32{uint32(i), uint32(j)})
				}
			}
		}
		if want == nil {
			want = [][2]uint32{}
		}
		assert.Equal(t, want, normalizePairs(sap.UpdateCircles(circles)))
	}
}

func TestBodyGridQueryRadius(t *testing.T) {
	g := NewBodyGrid(geom.Vec2(0, 0), 10, 10, 2, 16)
	g.Insert(0, geom.Vec2(1, 1))
	g.Insert(1, geom.Vec2(9, 9))
	g.Insert(2, geom.Vec2(3, 1))
	g.Insert(3, geom.Vec2(-5, -5)) // clamped into cell (0,0)

	near := append([]uint32(nil), g.QueryRadius(geom.Vec2(1, 1), 1)...)
	assert.ElementsMatch(t, []uint32{0, 2, 3}, near)

	far := g.QueryRadius(geom.Vec2(9, 9), 0.5)
	assert.ElementsMatch(t, []uint32{1}, far)

	assert.ElementsMatch(t, []uint32{0, 3}, g.QueryCell(geom.Vec2(0.2, 0.2)))

	stats := g.Stats()
	assert.Equal(t, 25, stats.TotalCells)
	assert.Equal(t, 4, stats.TotalBodies)
	assert.Equal(t, 2, stats.MaxInCell)

	g.Clear()
	assert.Empty(t, g.QueryRadius(geom.Vec2(5, 5), 20))

	cols, rows, size := g.Dimensions()
	assert.Equal(t, []float64{5, 5, 2}, []float64{float64(cols), float64(rows), size})
}

func BenchmarkSweepAndPrune(b *testing.B) {
	rng := rand.New(rand.NewSource(13))
	circles := make([]geom.Circle2D, 200)
	for i := range circles {
		circles[i] = geom.Circle2D{Center: geom.Vec2(rng.Float64()*100, rng.Float64()*100), Radius: 0.5}
	}
	sap := NewSweepAndPrune(len(circles))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sap.UpdateCircles(circles)
	}
}
