package relay

import (
	"sync"

	"github.com/google/uuid"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/protocol"
)

// playerInfoRemoveAction is the player-info action variant that retires
// a tab-list entry; its uuid mapping is released once relayed.
const playerInfoRemoveAction = 4

// wellKnownModifierUUIDs are attribute-modifier uuids the protocol
// itself defines (sprint boost, item slot modifiers). These pass
// through unmapped — remapping them would break the client's ability to
// recognize them.
var wellKnownModifierUUIDs = map[uuid.UUID]struct{}{
	uuid.MustParse("662a6b8d-da3e-4c1c-8813-96ea6097278d"): {},
	uuid.MustParse("91aeaa56-376b-4498-935b-2f7f68070635"): {},
	uuid.MustParse("d8499b04-0e66-4726-ab29-64469d734e0d"): {},
	uuid.MustParse("cb3f55d3-645c-4f38-a497-9c13a33db5cf"): {},
	uuid.MustParse("faa2ad17-5659-4ad3-8e74-9987164ac8c6"): {},
}

// modifierUUIDCache deduplicates the fresh uuids handed out for
// entity-property modifiers, so the same backend-issued modifier uuid
// maps to the same client-visible uuid across repeated packets.
type modifierUUIDCache struct {
	mu sync.Mutex
	m  map[mapping.UUIDKey]uuid.UUID
}

func newModifierUUIDCache() *modifierUUIDCache {
	return &modifierUUIDCache{m: make(map[mapping.UUIDKey]uuid.UUID)}
}

func (c *modifierUUIDCache) get(backend mapping.BackendID, backendUUID uuid.UUID) uuid.UUID {
	if _, known := wellKnownModifierUUIDs[backendUUID]; known {
		return backendUUID
	}
	key := mapping.UUIDKey{Backend: backend, UUID: backendUUID}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.m[key]; ok {
		return id
	}
	id := uuid.New()
	c.m[key] = id
	return id
}

// IdentifierPass rewrites every embedded entity id and uuid reference
// between backend space and proxy/client space, in both directions, so
// no packet that leaves this pass still carries a raw backend id.
func IdentifierPass(state *ProxyState) Pass {
	modifiers := newModifierUUIDCache()

	return func(ctx *PassContext) error {
		kind := ctx.Packet.Kind()
		if ctx.Dir == protocol.ClientBound {
			return rewriteClientbound(state, modifiers, ctx, kind)
		}
		return rewriteServerbound(state, ctx, kind)
	}
}

func rewriteClientbound(state *ProxyState, modifiers *modifierUUIDCache, ctx *PassContext, kind protocol.Kind) error {
	backend := ctx.Source

	if protocol.IsSpawnClass(kind) {
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.SpawnEntity)
		// spawn-player reuses any existing row for this (backend, eid):
		// backends emit the player's own eid a second time here
		proxyID := state.Tables.RegisterEntity(backend, p.EntityID, p.EntityType)

		if protocol.HasSecondaryRef(p.EntityType) && p.Data != 0 {
			secondary, ok := state.Tables.LookupEntityByServer(backend, p.Data-1)
			if !ok {
				ctx.Drop = true
				return nil
			}
			p.Data = secondary + 1
		}

		p.EntityID = proxyID
		p.ObjectUUID = state.Tables.MapUUIDServerToClient(backend, p.ObjectUUID)
		ctx.Packet.SetPacket(p)
		ctx.Session.addKnownEntity(proxyID)
		return nil
	}

	switch kind {
	case protocol.KindDestroyEntities:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.DestroyEntities)
		rewritten := make([]int32, 0, len(p.EntityIDs))
		for _, backendEID := range p.EntityIDs {
			proxyID, removed := state.Tables.RemoveEntityByServer(backend, backendEID)
			if !removed {
				continue
			}
			ctx.Session.removeKnownEntity(proxyID)
			rewritten = append(rewritten, proxyID)
		}
		if len(rewritten) == 0 {
			ctx.Drop = true
			return nil
		}
		p.EntityIDs = rewritten
		ctx.Packet.SetPacket(p)

	case protocol.KindEntityMetadata:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.EntityMetadata)
		proxyID, ok := state.Tables.LookupEntityByServer(backend, p.EntityID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		entType, _ := state.Tables.EntityType(proxyID)
		for i := range p.Entries {
			e := &p.Entries[i]
			refKind, _, found := protocol.MetadataRefFor(state.Cfg.Protocol, entType, e.Index)
			if !found {
				continue
			}
			var rewriteErr error
			switch refKind {
			case protocol.RefEntityID:
				e.Value, rewriteErr = protocol.RewriteMetadataEntityRef(e.Value, func(backendRef int32) int32 {
					if backendRef == 0 {
						return 0
					}
					mapped, found := state.Tables.LookupEntityByServer(backend, backendRef)
					if !found {
						return 0
					}
					return mapped
				})
			case protocol.RefUUID:
				e.Value, rewriteErr = protocol.RewriteMetadataUUIDRef(e.Value, func(backendRef uuid.UUID) uuid.UUID {
					return state.Tables.MapUUIDServerToClient(backend, backendRef)
				})
			}
			if rewriteErr != nil {
				return rewriteErr
			}
		}
		p.EntityID = proxyID
		ctx.Packet.SetPacket(p)

	case protocol.KindEntityProperties:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.EntityProperties)
		proxyID, ok := state.Tables.LookupEntityByServer(backend, p.EntityID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		for pi := range p.Properties {
			for mi := range p.Properties[pi].Modifiers {
				m := &p.Properties[pi].Modifiers[mi]
				m.UUID = modifiers.get(backend, m.UUID)
			}
		}
		p.EntityID = proxyID
		ctx.Packet.SetPacket(p)

	case protocol.KindPlayerInfo:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.PlayerInfo)
		for i := range p.Players {
			e := &p.Players[i]
			clientUUID := state.Tables.MapUUIDServerToClient(backend, e.UUID)
			if p.Action == playerInfoRemoveAction {
				state.Tables.RemoveUUID(clientUUID)
			}
			e.UUID = clientUUID
		}
		ctx.Packet.SetPacket(p)
	}
	return nil
}

// rewriteServerbound handles the smaller set of packets a client sends
// that reference a single entity or uuid. The mapping row names the
// backend that owns the referent, and delivery is narrowed to exactly
// that backend — which may be a dummy, when the entity was spawned into
// the client's view by a backend other than the active one. A stale
// reference (the row vanished between the client's action and this
// frame) is dropped without an error.
func rewriteServerbound(state *ProxyState, ctx *PassContext, kind protocol.Kind) error {
	route := func(proxyID int32) (int32, bool) {
		backend, backendEID, ok := state.Tables.MapEntityProxyToServer(proxyID)
		if !ok {
			logging.L().Tracef("[%s] %v: proxy eid %d", ctx.Session.Name, ErrNoMapping, proxyID)
			return 0, false
		}
		ctx.Routed = true
		ctx.DestBackend = backend
		return backendEID, true
	}

	switch kind {
	case protocol.KindInteractEntity:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.InteractEntity)
		eid, ok := route(p.EntityID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		p.EntityID = eid
		ctx.Packet.SetPacket(p)

	case protocol.KindEntityAction:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.EntityAction)
		eid, ok := route(p.EntityID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		p.EntityID = eid
		ctx.Packet.SetPacket(p)

	case protocol.KindQueryEntityNBT:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.QueryEntityNBT)
		eid, ok := route(p.EntityID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		p.EntityID = eid
		ctx.Packet.SetPacket(p)

	case protocol.KindUpdateCommandBlockMinecart:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.UpdateCommandBlockMinecart)
		eid, ok := route(p.EntityID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		p.EntityID = eid
		ctx.Packet.SetPacket(p)

	case protocol.KindSpectate:
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		p := pk.(*protocol.Spectate)
		backend, backendUUID, ok := state.Tables.MapUUIDClientToServer(p.TargetUUID)
		if !ok {
			ctx.Drop = true
			return nil
		}
		ctx.Routed = true
		ctx.DestBackend = backend
		p.TargetUUID = backendUUID
		ctx.Packet.SetPacket(p)
	}
	return nil
}
