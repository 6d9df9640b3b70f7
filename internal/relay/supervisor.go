package relay

import (
	"context"
	"time"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/metrics"
	"github.com/relaycraft/multimc/internal/protocol"
)

// RunSupervisors starts the two independently-scheduled background
// goroutines — the client keep-alive pinger/kicker and the entity-id
// garbage collector — and blocks until ctx is cancelled. They share
// nothing but the ProxyState, so one's scheduling jitter never delays
// the other.
func RunSupervisors(ctx context.Context, state *ProxyState) {
	done := make(chan struct{}, 2)
	go func() { runKeepAliveKick(ctx, state); done <- struct{}{} }()
	go func() { runGarbageCollect(ctx, state); done <- struct{}{} }()
	<-done
	<-done
}

// runKeepAliveKick pings every connected client on each tick and kicks
// any whose last keep-alive reply is older than the timeout. The proxy
// owns the client's liveness entirely — backend keep-alives never reach
// the client (the keep-alive pass answers them at the source).
func runKeepAliveKick(ctx context.Context, state *ProxyState) {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			for _, sess := range state.Players() {
				if now-sess.lastKeepAliveMillis() > keepAliveTimeout.Milliseconds() {
					sess.Kick("Timed out")
					continue
				}
				if err := sess.sendServerKeepAlive(now); err != nil {
					logging.L().Warningf("[%s] keep-alive send: %v", sess.Name, err)
					sess.Close()
				}
			}
		}
	}
}

// sendServerKeepAlive writes a proxy-originated keep-alive ping to the
// client, id-stamped with the current wall clock.
func (s *ClientSession) sendServerKeepAlive(nowMillis int64) error {
	id, ok := protocol.IDOf(protocol.ClientBound, protocol.KindServerKeepAlive)
	if !ok {
		return errNoWireID
	}
	ka := &protocol.KeepAlive{ID: nowMillis}
	return s.clientConn.WriteFrame(&protocol.Frame{ID: id, Body: ka.Encode()})
}

// runGarbageCollect sweeps the mapping table on the same period as the
// keep-alive check, removing every proxy entity id no live session
// still references. This is the self-healing path for mappings whose
// destroy-entity packet never made it through, and the guard that makes
// id reuse safe: an id only returns to the generator once no session's
// known-entity set contains it.
func runGarbageCollect(ctx context.Context, state *ProxyState) {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOrphanedEntities(state)
			metrics.SetBackendCircuitStats(state.Backends.Stats())
		}
	}
}

// sweepOrphanedEntities removes every mapped proxy entity id outside
// the union of all sessions' known-entity sets.
func sweepOrphanedEntities(state *ProxyState) {
	referenced := make(map[int32]struct{})
	for _, sess := range state.Players() {
		for _, id := range sess.knownEntitySnapshot() {
			referenced[id] = struct{}{}
		}
	}

	removed := 0
	for _, proxyID := range state.Tables.LiveProxyEntityIDs() {
		if _, live := referenced[proxyID]; live {
			continue
		}
		if state.Tables.RemoveEntityByProxy(proxyID) {
			removed++
		}
	}
	metrics.ObserveEntitiesGCed(removed)
	if removed > 0 {
		logging.L().Debugf("id gc: reclaimed %d unreferenced entity id(s)", removed)
	}
}
