package coverage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// unit square in (lon, lat) order
var squareRing = [][]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

func TestPointInRing(t *testing.T) {
	t.Parallel()

	t.Run("center is inside", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pointInRing(0.5, 0.5, squareRing))
	})

	t.Run("far point is outside", func(t *testing.T) {
		t.Parallel()
		assert.False(t, pointInRing(2, 2, squareRing))
	})

	t.Run("repeated calls are idempotent", func(t *testing.T) {
		t.Parallel()
		for i := 0; i < 10; i++ {
			assert.True(t, pointInRing(0.5, 0.5, squareRing))
			assert.False(t, pointInRing(-0.5, 0.5, squareRing))
		}
	})

	// The half-open crossing rule classifies vertices consistently: the
	// vertex where the ring starts counts as inside, the opposite corner
	// as outside. Locked in so nobody "fixes" one side and silently moves
	// the boundary.
	t.Run("vertex edge behavior", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pointInRing(0, 0, squareRing))
		assert.False(t, pointInRing(1, 1, squareRing))
	})

	t.Run("explicitly closed ring behaves identically", func(t *testing.T) {
		t.Parallel()
		closed := append(append([][]float64{}, squareRing...), []float64{0, 0})
		assert.Equal(t, pointInRing(0.5, 0.5, squareRing), pointInRing(0.5, 0.5, closed))
		assert.Equal(t, pointInRing(2, 2, squareRing), pointInRing(2, 2, closed))
	})

	t.Run("swapped coordinate order breaks membership", func(t *testing.T) {
		t.Parallel()
		// a thin sliver: (lon, lat) ordering matters
		sliver := [][]float64{{10, 0}, {10.1, 0}, {10.1, 1}, {10, 1}}
		assert.True(t, pointInRing(10.05, 0.5, sliver))
		assert.False(t, pointInRing(0.5, 10.05, sliver))
	})
}

func TestHaversineKm(t *testing.T) {
	t.Parallel()

	t.Run("zero distance", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, haversineKm(37.5, 127.0, 37.5, 127.0))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		t.Parallel()
		// one degree of latitude is ~111.19 km on a 6371 km sphere
		d := haversineKm(0, 0, 1, 0)
		assert.InDelta(t, 111.19, d, 0.1)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		a := haversineKm(37.5665, 126.9780, 35.1796, 129.0756) // Seoul - Busan
		b := haversineKm(35.1796, 129.0756, 37.5665, 126.9780)
		assert.InDelta(t, a, b, 1e-9)
		assert.InDelta(t, 325, a, 5)
	})

	t.Run("antipodal points are half the circumference", func(t *testing.T) {
		t.Parallel()
		d := haversineKm(0, 0, 0, 180)
		assert.InDelta(t, math.Pi*EarthRadiusKm, d, 0.5)
	})
}
