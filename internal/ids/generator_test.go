package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeIsMonotonicWithNoReturns(t *testing.T) {
	g := NewGenerator()
	require.Equal(t, int32(1), g.Take())
	require.Equal(t, int32(2), g.Take())
	require.Equal(t, int32(3), g.Take())
}

func TestGiveBackIsReusedBeforeWatermark(t *testing.T) {
	g := NewGenerator()
	a := g.Take() // 1
	b := g.Take() // 2
	_ = a
	g.GiveBack(b)

	reused := g.Take()
	assert.Equal(t, b, reused, "returned id should be reissued before advancing the watermark")

	next := g.Take()
	assert.Equal(t, int32(3), next)
}

func TestGiveBackIsIdempotent(t *testing.T) {
	g := NewGenerator()
	id := g.Take()
	g.GiveBack(id)
	g.GiveBack(id)

	first := g.Take()
	second := g.Take()
	assert.Equal(t, id, first)
	assert.NotEqual(t, first, second, "double give-back must not hand out the same id twice")
}

func TestTakeGiveBackRoundTrip(t *testing.T) {
	g := NewGenerator()
	before := g.Watermark()
	id := g.Take()
	g.GiveBack(id)
	// taking and giving back the top-of-watermark id leaves the watermark
	// where it was going to be anyway; the id is just parked on the free list.
	assert.Equal(t, before+1, g.Watermark())
}
