package relay

import (
	"time"

	"github.com/relaycraft/multimc/internal/protocol"
)

// keepAliveTimeout is how long a session may go without a client
// keep-alive response before the supervisor kicks it.
const keepAliveTimeout = 30 * time.Second

// keepAlivePeriod paces the supervisor's own keep-alive pings to each
// client.
const keepAlivePeriod = 15 * time.Second

// KeepAlivePass owns the keep-alive exchange on the active connection.
// The client's liveness and the backend's liveness are deliberately
// decoupled: a client keep-alive stamps the session and stops there,
// and a backend keep-alive is answered directly on that backend's
// writer with the same id — the supervisor pings the client on its own
// schedule, so neither side's ping ever crosses the proxy.
func KeepAlivePass(state *ProxyState) Pass {
	return func(ctx *PassContext) error {
		switch ctx.Packet.Kind() {
		case protocol.KindClientKeepAlive:
			if ctx.Dir != protocol.ServerBound {
				return nil
			}
			ctx.Session.stampKeepAlive()
			ctx.Drop = true

		case protocol.KindServerKeepAlive:
			if ctx.Dir != protocol.ClientBound || ctx.SourceConn == nil {
				return nil
			}
			pk, err := ctx.Packet.Packet()
			if err != nil || pk == nil {
				return err
			}
			ka := pk.(*protocol.KeepAlive)
			if err := ctx.SourceConn.writePacket(protocol.KindClientKeepAlive, &protocol.KeepAlive{ID: ka.ID}); err != nil {
				ctx.SourceConn.Conn.Close()
			}
			ctx.Drop = true
		}
		return nil
	}
}
