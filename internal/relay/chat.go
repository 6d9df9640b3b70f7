package relay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/protocol"
)

// ChatCommandPass intercepts serverbound chat messages that look like
// proxy commands (a leading "/" matching one of the names below) and
// answers them itself, dropping the packet so no backend ever sees it.
// Anything else — ordinary chat, or a slash command the proxy doesn't
// own, like "/tp" — is left untouched and falls through to the active
// backend.
func ChatCommandPass(state *ProxyState) Pass {
	return func(ctx *PassContext) error {
		if ctx.Dir != protocol.ServerBound || ctx.Packet.Kind() != protocol.KindClientChat {
			return nil
		}
		pk, err := ctx.Packet.Packet()
		if err != nil || pk == nil {
			return err
		}
		chat := pk.(*protocol.Chat)
		if !strings.HasPrefix(chat.ClientText, "/") {
			return nil
		}
		if handleCommand(state, ctx.Session, chat.ClientText) {
			ctx.Drop = true
		}
		return nil
	}
}

// handleCommand runs one of the proxy's own slash commands, reporting
// the result back to the issuing session's client only. Returns false
// for any command name it doesn't own, so the caller forwards it
// unchanged.
func handleCommand(state *ProxyState, sess *ClientSession, text string) bool {
	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "switch":
		runSwitchCommand(state, sess, fields[1:])
		return true
	case "list":
		runListCommand(state, sess)
		return true
	case "stop":
		runStopCommand(state, sess)
		return true
	default:
		return false
	}
}

func runSwitchCommand(state *ProxyState, sess *ClientSession, args []string) {
	if len(args) != 1 {
		sess.SystemMessage("usage: /switch <backend-name-or-id>")
		return
	}

	backend, ok := resolveBackendArg(state, args[0])
	if !ok {
		sess.SystemMessage(fmt.Sprintf("unknown backend %q", args[0]))
		return
	}
	if backend == sess.ActiveBackend() {
		sess.SystemMessage("already connected to that backend")
		return
	}

	if err := switchSessionBackend(sess, backend); err != nil {
		sess.SystemMessage(fmt.Sprintf("switch failed: %v", err))
		return
	}
	sess.SystemMessage(fmt.Sprintf("switched to %s", args[0]))
}

func runListCommand(state *ProxyState, sess *ClientSession) {
	players := state.Players()
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
	}
	sess.SystemMessage(fmt.Sprintf("%d player(s) online: %s", len(names), strings.Join(names, ", ")))
}

func runStopCommand(state *ProxyState, sess *ClientSession) {
	if !sess.IsOperator() {
		sess.SystemMessage("you are not authorized to run /stop")
		return
	}
	sess.SystemMessage("stopping proxy")
	state.Shutdown()
}

// resolveBackendArg accepts either a configured backend's name or its
// raw numeric id, matching the console's own backend-selection syntax
// (internal/console).
func resolveBackendArg(state *ProxyState, arg string) (mapping.BackendID, bool) {
	if n, err := strconv.ParseUint(arg, 10, 64); err == nil {
		id := mapping.BackendID(n)
		if _, ok := state.Backends.Get(id); ok {
			return id, true
		}
	}
	for _, id := range state.Backends.All() {
		srv, _ := state.Backends.Get(id)
		if strings.EqualFold(srv.Name, arg) {
			return id, true
		}
	}
	return 0, false
}
