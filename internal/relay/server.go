package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/protocol"
)

// supportedProtocols are the two wire versions the codec understands.
var supportedProtocols = map[int32]bool{754: true, 755: true}

// Serve binds the upstream listener and accepts client connections until
// ctx is cancelled or the proxy shuts down. Each connection gets its own
// goroutine through handshake -> {status|login} -> play.
func Serve(ctx context.Context, state *ProxyState) error {
	ln, err := net.Listen("tcp", state.Cfg.ProxyAddress)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", state.Cfg.ProxyAddress, err)
	}
	logging.L().Infof("listening on %s", state.Cfg.ProxyAddress)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if !state.Alive() || ctx.Err() != nil {
				return nil
			}
			logging.L().Warningf("accept: %v", err)
			continue
		}
		if !state.Alive() {
			netConn.Close()
			return nil
		}
		go handleClient(ctx, state, netConn)
	}
}

func handleClient(ctx context.Context, state *ProxyState, netConn net.Conn) {
	conn := protocol.NewConn(netConn)

	frame, err := conn.ReadFrame()
	if err != nil {
		conn.Close()
		return
	}
	lp := protocol.NewLazyPacket(protocol.ServerBound, protocol.StateHandshake, frame)
	if lp.Kind() != protocol.KindHandshake {
		conn.Close()
		return
	}
	pk, err := lp.Packet()
	if err != nil || pk == nil {
		conn.Close()
		return
	}
	hs := pk.(*protocol.Handshake)

	switch hs.NextState {
	case 1:
		conn.SetState(protocol.StateStatus)
		serveStatus(state, conn)
	case 2:
		conn.SetState(protocol.StateLogin)
		serveLogin(ctx, state, conn, hs.ProtocolVersion)
	default:
		conn.Close()
	}
}

// statusResponse is the JSON document the client's server list renders.
type statusResponse struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
}

// serveStatus answers the server-list ping dialog: a JSON status for
// frame 0, an echoed pong for frame 1. Status frames use fixed ids
// rather than the play-state kind table.
func serveStatus(state *ProxyState, conn *protocol.Conn) {
	defer conn.Close()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		switch frame.ID {
		case 0:
			var resp statusResponse
			resp.Version.Name = state.Cfg.DisplayVersion
			resp.Version.Protocol = state.Cfg.Protocol
			resp.Players.Max = state.Cfg.MaxPlayers
			resp.Players.Online = len(state.Players())
			resp.Description.Text = state.Cfg.MOTD
			body, err := json.Marshal(&resp)
			if err != nil {
				return
			}
			out := encodeStatusBody(body)
			if err := conn.WriteFrame(&protocol.Frame{ID: 0, Body: out}); err != nil {
				return
			}
		case 1:
			// pong: echo the client's payload back verbatim
			if err := conn.WriteFrame(frame); err != nil {
				return
			}
			return
		default:
			return
		}
	}
}

// encodeStatusBody prefixes the JSON document with its varint length,
// the wire form of a protocol string.
func encodeStatusBody(body []byte) []byte {
	out := make([]byte, 0, len(body)+3)
	v := uint32(len(body))
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
	return append(out, body...)
}

// serveLogin drives the upstream login exchange and hands the finished
// connection to StartSession. Login is plaintext; the negotiated
// protocol version must be one the codec understands.
func serveLogin(ctx context.Context, state *ProxyState, conn *protocol.Conn, version int32) {
	if !supportedProtocols[version] {
		writeLoginDisconnect(conn, fmt.Sprintf("Unsupported protocol version %d", version))
		conn.Close()
		return
	}

	frame, err := conn.ReadFrame()
	if err != nil {
		conn.Close()
		return
	}
	lp := protocol.NewLazyPacket(protocol.ServerBound, protocol.StateLogin, frame)
	if lp.Kind() != protocol.KindLoginStart {
		logging.L().Warningf("unknown packet 0x%02x during login, ignoring", frame.ID)
		conn.Close()
		return
	}
	pk, err := lp.Packet()
	if err != nil || pk == nil {
		conn.Close()
		return
	}
	name := pk.(*protocol.LoginStart).Name

	if state.Cfg.CompressionThreshold > 0 {
		scID, _ := protocol.IDOf(protocol.ClientBound, protocol.KindSetCompression)
		sc := &protocol.SetCompression{Threshold: int32(state.Cfg.CompressionThreshold)}
		if err := conn.WriteFrame(&protocol.Frame{ID: scID, Body: sc.Encode()}); err != nil {
			conn.Close()
			return
		}
		conn.SetCompressionThreshold(state.Cfg.CompressionThreshold)
	}

	lsID, _ := protocol.IDOf(protocol.ClientBound, protocol.KindLoginSuccess)
	success := &protocol.LoginSuccess{UUID: mapping.DeriveClientUUID(name), Username: name}
	if err := conn.WriteFrame(&protocol.Frame{ID: lsID, Body: success.Encode()}); err != nil {
		conn.Close()
		return
	}
	conn.SetState(protocol.StatePlay)

	if _, err := StartSession(ctx, state, conn, name, state.isOperator(name)); err != nil {
		if !errors.Is(err, io.EOF) {
			logging.L().Warningf("[%s] session start failed: %v", name, err)
		}
		writeLoginDisconnect(conn, "Failed to reach a backend")
		conn.Close()
	}
}

func writeLoginDisconnect(conn *protocol.Conn, reason string) {
	id, ok := protocol.IDOf(protocol.ClientBound, protocol.KindLoginDisconnect)
	if !ok {
		return
	}
	kick := &protocol.Kick{JSON: protocol.KickReason(reason)}
	_ = conn.WriteFrame(&protocol.Frame{ID: id, Body: kick.Encode()})
}

// isOperator reports whether a player name is in the configured
// operator list.
func (s *ProxyState) isOperator(name string) bool {
	for _, op := range s.Cfg.Operators {
		if op == name {
			return true
		}
	}
	return false
}
