package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaycraft/multimc/internal/mapping"
)

func TestStaticZonerRectangle(t *testing.T) {
	z := &StaticZoner{
		Entries: []ZoneEntry{
			{Backend: 1, Rect: Rectangle{MinX: -10, MinZ: -10, MaxX: 10, MaxZ: 10}},
		},
		Default: 0,
	}
	assert.Equal(t, mapping.BackendID(1), z.BackendFor(ChunkCoord{X: 0, Z: 0}))
	assert.Equal(t, mapping.BackendID(0), z.BackendFor(ChunkCoord{X: 100, Z: 100}))
}

func TestStaticZonerInvertedRectangle(t *testing.T) {
	z := &StaticZoner{
		Entries: []ZoneEntry{
			{Backend: 1, Rect: Rectangle{MinX: -10, MinZ: -10, MaxX: 10, MaxZ: 10}},
			{Backend: 2, Rect: Rectangle{MinX: -10, MinZ: -10, MaxX: 10, MaxZ: 10}, Inverted: true},
		},
		Default: 0,
	}
	assert.Equal(t, mapping.BackendID(1), z.BackendFor(ChunkCoord{X: 0, Z: 0}))
	assert.Equal(t, mapping.BackendID(2), z.BackendFor(ChunkCoord{X: 100, Z: 0}))
}

func TestRendezvousZonerIsStable(t *testing.T) {
	z := NewRendezvousZoner([]mapping.BackendID{0, 1, 2})
	a := z.BackendFor(ChunkCoord{X: 5, Z: -3})
	b := z.BackendFor(ChunkCoord{X: 5, Z: -3})
	assert.Equal(t, a, b)
}

func TestRendezvousZonerSpreadsLoad(t *testing.T) {
	z := NewRendezvousZoner([]mapping.BackendID{0, 1, 2})
	seen := map[mapping.BackendID]bool{}
	for x := int32(0); x < 200; x++ {
		seen[z.BackendFor(ChunkCoord{X: x, Z: 0})] = true
	}
	assert.Greater(t, len(seen), 1, "200 chunks across 3 backends should not all land on one backend")
}
