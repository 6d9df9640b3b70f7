// Package zone assigns chunk coordinates to backends. Zoning is purely
// advisory — it decides which backend a fresh session starts against,
// never a coordinate transform. Zones are rectangles or inverted
// rectangles (the complement, for a catch-all backend that owns
// everywhere except a named region); a rendezvous-hash zoner is
// available as an alternative when the backend set changes often.
package zone

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/relaycraft/multimc/internal/mapping"
)

// ChunkCoord is a chunk's (x, z) position, in chunk units (block
// coordinate / 16).
type ChunkCoord struct {
	X, Z int32
}

// Zoner resolves which backend owns a chunk.
type Zoner interface {
	BackendFor(c ChunkCoord) mapping.BackendID
}

// Rectangle is an inclusive chunk-coordinate bounding box.
type Rectangle struct {
	MinX, MinZ, MaxX, MaxZ int32
}

func (r Rectangle) contains(c ChunkCoord) bool {
	return c.X >= r.MinX && c.X <= r.MaxX && c.Z >= r.MinZ && c.Z <= r.MaxZ
}

// ZoneEntry pairs a shape with the backend it assigns. Inverted means
// "everywhere but this rectangle".
type ZoneEntry struct {
	Backend   mapping.BackendID
	Rect      Rectangle
	Inverted  bool
}

// StaticZoner is a fixed, config-driven ordered list of zone entries.
// The first entry whose shape contains the chunk wins; an unmatched
// chunk falls back to Default.
type StaticZoner struct {
	Entries []ZoneEntry
	Default mapping.BackendID
}

func (z *StaticZoner) BackendFor(c ChunkCoord) mapping.BackendID {
	for _, e := range z.Entries {
		in := e.Rect.contains(c)
		if e.Inverted {
			in = !in
		}
		if in {
			return e.Backend
		}
	}
	return z.Default
}

// RendezvousZoner assigns a chunk to a backend by consistent hashing
// over the backend set, so adding or removing a backend only reshuffles
// the chunks that rendezvous-hash to it, not the whole world.
type RendezvousZoner struct {
	hasher   *rendezvous.Rendezvous
	byName   map[string]mapping.BackendID
}

// NewRendezvousZoner builds a zoner over the given backend ids, keyed by
// their string form (rendezvous.New hashes node names).
func NewRendezvousZoner(backends []mapping.BackendID) *RendezvousZoner {
	names := make([]string, len(backends))
	byName := make(map[string]mapping.BackendID, len(backends))
	for i, b := range backends {
		name := backendNodeName(b)
		names[i] = name
		byName[name] = b
	}
	return &RendezvousZoner{
		hasher: rendezvous.New(names, xxhash.Sum64String),
		byName: byName,
	}
}

func (z *RendezvousZoner) BackendFor(c ChunkCoord) mapping.BackendID {
	key := chunkKey(c)
	name := z.hasher.Lookup(key)
	return z.byName[name]
}

func chunkKey(c ChunkCoord) string {
	// a compact, collision-free string key; chunk coordinates are small
	// enough that this never allocates more than a few bytes.
	buf := make([]byte, 0, 20)
	buf = appendInt32(buf, c.X)
	buf = append(buf, ',')
	buf = appendInt32(buf, c.Z)
	return string(buf)
}

func appendInt32(buf []byte, v int32) []byte {
	if v < 0 {
		buf = append(buf, '-')
		v = -v
	}
	start := len(buf)
	if v == 0 {
		return append(buf, '0')
	}
	for v > 0 {
		buf = append(buf, byte('0'+v%10))
		v /= 10
	}
	// reverse the digits just appended
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

func backendNodeName(b mapping.BackendID) string {
	buf := []byte("backend-")
	buf = appendInt32(buf, int32(b))
	return string(buf)
}
