// Package relay implements the core packet-relaying pipeline: the
// ordered pass list, identifier rewriting, chunk refcounting, keep-alive
// synthesis, chat/command interception, session and dummy-connection
// management, the per-connection relay loops, and the keep-alive-kick /
// id-GC supervisors.
package relay

import (
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/metrics"
	"github.com/relaycraft/multimc/internal/protocol"
)

// PassContext is threaded through one frame's trip through the pass
// list. A pass mutates the packet in place (via LazyPacket.SetPacket)
// and may redirect or suppress delivery.
type PassContext struct {
	Dir     protocol.Direction
	Session *ClientSession

	// Source and SourceConn identify the backend a clientbound frame
	// came from; zero/nil for serverbound frames.
	Source     mapping.BackendID
	SourceConn *BackendConn

	Packet *protocol.LazyPacket

	// Drop suppresses delivery entirely (a duplicate chunk, a stale
	// entity reference, an absorbed keep-alive).
	Drop bool

	// Routed narrows a serverbound delivery to DestBackend instead of
	// the session's active backend — how a client action on an entity
	// the client learned about through a dummy reaches the backend that
	// actually owns it.
	Routed      bool
	DestBackend mapping.BackendID
}

// Pass transforms one frame as it moves through a session. Passes run
// in registration order; a pass that sets ctx.Drop stops the remaining
// passes from running.
type Pass func(ctx *PassContext) error

// Pipeline is the ordered list of passes applied to every relayed
// frame. Built once at startup; never mutated at runtime, so the relay
// loops read it without a lock.
type Pipeline struct {
	passes []Pass
	ident  Pass
}

// NewPipeline builds the standard pipeline. Keep-alive runs first since
// it short-circuits the hottest packet kind; tag sync next so duplicate
// tag tables are dropped before anything decodes them; identifier
// rewriting before chunk refcounting and chat so every later pass (and
// the delivery step) sees proxy-space ids only.
func NewPipeline(state *ProxyState) *Pipeline {
	ident := IdentifierPass(state)
	return &Pipeline{
		ident: ident,
		passes: []Pass{
			KeepAlivePass(state),
			TagSyncPass(state),
			ident,
			ChunkRefcountPass(state),
			ChatCommandPass(state),
		},
	}
}

// Run applies every pass in order to ctx, stopping early if a pass drops
// the packet or returns an error.
func (p *Pipeline) Run(ctx *PassContext) error {
	for _, pass := range p.passes {
		if err := pass(ctx); err != nil {
			return err
		}
		if ctx.Drop {
			metrics.ObservePacketDropped(ctx.Dir.String(), "pass")
			return nil
		}
	}
	metrics.ObservePacketRelayed(ctx.Dir.String())
	return nil
}

// RunIdentifier applies only the identifier-rewriting pass, for the
// dummy watcher, which handles every other concern itself.
func (p *Pipeline) RunIdentifier(ctx *PassContext) error {
	return p.ident(ctx)
}
