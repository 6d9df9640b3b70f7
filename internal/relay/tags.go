package relay

import (
	"sync"

	"github.com/relaycraft/multimc/internal/protocol"
)

// TagCache keeps the first registry tag table any backend ever sent.
// Backends disagree on tag contents and ordering, and a client that
// receives more than one tag table ends up with corrupted block/item
// lookups, so every later tags packet — from any backend — is dropped.
type TagCache struct {
	mu     sync.Mutex
	cached bool
	raw    []byte
}

// Observe records the first-seen tags payload and reports whether this
// call was the one that cached it (false on every later call).
func (c *TagCache) Observe(raw []byte) (isFirst bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached {
		return false
	}
	c.cached = true
	c.raw = append([]byte(nil), raw...)
	return true
}

// Cached returns the cached tags payload, if any has been observed yet.
func (c *TagCache) Cached() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cached {
		return nil, false
	}
	return c.raw, true
}

// TagSyncPass forwards only the first tags packet the proxy ever sees
// and rewrites the brand plugin message to the configured brand so the
// client can't tell which backend it is really looking at.
func TagSyncPass(state *ProxyState) Pass {
	return func(ctx *PassContext) error {
		if ctx.Dir != protocol.ClientBound {
			return nil
		}
		switch ctx.Packet.Kind() {
		case protocol.KindTags:
			pk, err := ctx.Packet.Packet()
			if err != nil || pk == nil {
				return err
			}
			tags := pk.(*protocol.Tags)
			if !state.Tags.Observe(tags.Raw) {
				ctx.Drop = true
			}

		case protocol.KindServerPluginMessage:
			if state.Cfg.Brand == "" {
				return nil
			}
			pk, err := ctx.Packet.Packet()
			if err != nil || pk == nil {
				return err
			}
			pm := pk.(*protocol.PluginMessage)
			if pm.Channel != "minecraft:brand" {
				return nil
			}
			pm.Data = encodeBrand(state.Cfg.Brand)
			ctx.Packet.SetPacket(pm)
		}
		return nil
	}
}

// encodeBrand writes the brand string the way the plugin channel
// expects: varint length prefix, then the bytes.
func encodeBrand(brand string) []byte {
	out := make([]byte, 0, len(brand)+2)
	v := uint32(len(brand))
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return append(out, brand...)
}
