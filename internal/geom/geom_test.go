package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tol = 1e-12

func TestNormalize(t *testing.T) {
	n := Vec2(3, 4).Normalize()
	assert.InDelta(t, 0.6, n.X, tol)
	assert.InDelta(t, 0.8, n.Y, tol)
	assert.InDelta(t, 1, n.Length(), tol)

	assert.Equal(t, UnitX, Vector2{}.Normalize())
	assert.Equal(t, UnitX, Vec2(1e-7, 0).Normalize(), "below Epsilon squared length")
}

func TestFloorNegative(t *testing.T) {
	x, y := Vec2(-0.5, 2.999).Floor()
	assert.Equal(t, -1, x)
	assert.Equal(t, 2, y)
}

func TestFloorIntSaturates(t *testing.T) {
	assert.Equal(t, -3, FloorInt(-2.5))
	assert.Equal(t, 7, FloorInt(7))
	assert.Equal(t, -FloorLimit, FloorInt(math.NaN()))
	assert.Equal(t, -FloorLimit, FloorInt(math.Inf(-1)))
	assert.Equal(t, -FloorLimit, FloorInt(-1e300))
	assert.Equal(t, FloorLimit, FloorInt(math.Inf(1)))
	assert.Equal(t, FloorLimit, FloorInt(1e300))

	x, y := Vec2(math.NaN(), 1.5).Floor()
	assert.Equal(t, -FloorLimit, x)
	assert.Equal(t, 1, y)
}

func TestIsFinite(t *testing.T) {
	assert.True(t, Vec2(1, -1).IsFinite())
	assert.False(t, Vec2(math.NaN(), 0).IsFinite())
	assert.False(t, Vec2(0, math.Inf(-1)).IsFinite())
}

func TestCircleDegenerate(t *testing.T) {
	tests := []struct {
		name string
		c    Circle2D
		want bool
	}{
		{"unit", Circle2D{Radius: 1}, false},
		{"zero radius", Circle2D{Radius: 0}, true},
		{"negative radius", Circle2D{Radius: -1}, true},
		{"nan radius", Circle2D{Radius: math.NaN()}, true},
		{"inf radius", Circle2D{Radius: math.Inf(1)}, true},
		{"nan center", Circle2D{Center: Vec2(math.NaN(), 0), Radius: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Degenerate())
		})
	}
}

func TestRotatedBoxRoundTrip(t *testing.T) {
	b := NewRotatedBox(Vec2(2, -1), Vec2(1, 0.5), math.Pi/6)
	assert.True(t, b.Valid(1e-9))

	p := Vec2(3.25, 0.5)
	back := b.ToWorld(b.ToLocal(p))
	assert.True(t, back.ApproxEqual(p, 1e-9), "got %v", back)

	quarter := NewRotatedBox(Vector2{}, Vec2(1, 1), math.Pi/2)
	local := quarter.ToLocal(Vec2(0, 1))
	assert.InDelta(t, 1, local.X, 1e-9)
	assert.InDelta(t, 0, local.Y, 1e-9)
}

func TestBoxValid(t *testing.T) {
	b := NewAxisAlignedBox(Vector2{}, Vec2(1, 1))
	assert.True(t, b.Valid(1e-9))

	skew := b
	skew.AxisY = Vec2(0.1, 1).Normalize()
	assert.False(t, skew.Valid(1e-9))

	negative := b
	negative.HalfExtents = Vec2(-1, 1)
	assert.False(t, negative.Valid(1e-9))
}

func TestAABB(t *testing.T) {
	a := AABB2D{XMin: 1, XMax: 3, YMin: -2, YMax: 0}
	assert.Equal(t, Vec2(2, -1), a.Center())
	assert.Equal(t, Vec2(1, 1), a.HalfExtents())
	assert.True(t, a.Contains(Vec2(3, 0)), "boundary is inside")
	assert.False(t, a.Contains(Vec2(3.01, 0)))

	obb := a.ToOBB()
	assert.Equal(t, a.Center(), obb.Center)
	assert.Equal(t, UnitX, obb.AxisX)
	assert.Equal(t, a.HalfExtents(), obb.HalfExtents)
}
