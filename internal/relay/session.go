package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/metrics"
	"github.com/relaycraft/multimc/internal/protocol"
	"github.com/relaycraft/multimc/internal/store"
	"github.com/relaycraft/multimc/internal/zone"
)

// chunkEntry is the client-side view of one chunk coordinate: which
// payload subtypes have already been forwarded, and how many backend
// connections currently hold the chunk. The chunk stays visible to the
// client until every backend that sent it has unloaded it.
type chunkEntry struct {
	receivedData  bool
	receivedLight bool
	refcount      int
}

// ClientSession is one connected player: the real client connection plus
// every backend connection the proxy maintains on their behalf — exactly
// one active, the rest warm dummies.
type ClientSession struct {
	state *ProxyState

	Name       string
	ClientUUID uuid.UUID
	clientConn *protocol.Conn
	operator   bool

	mu      sync.RWMutex
	active  *BackendConn
	dummies map[mapping.BackendID]*BackendConn

	knownChunks   map[zone.ChunkCoord]*chunkEntry
	knownEntities map[int32]struct{}

	settings    *protocol.ClientSettings
	heldSlot    int16
	hasHeldSlot bool

	position      store.Position
	lastKeepAlive int64 // unix ms, atomic

	alive     int32 // atomic bool
	closeOnce sync.Once
	done      chan struct{}
}

func newClientSession(state *ProxyState, name string, clientUUID uuid.UUID, clientConn *protocol.Conn, operator bool) *ClientSession {
	s := &ClientSession{
		state:         state,
		Name:          name,
		ClientUUID:    clientUUID,
		clientConn:    clientConn,
		operator:      operator,
		dummies:       make(map[mapping.BackendID]*BackendConn),
		knownChunks:   make(map[zone.ChunkCoord]*chunkEntry),
		knownEntities: make(map[int32]struct{}),
		alive:         1,
		done:          make(chan struct{}),
	}
	s.stampKeepAlive()
	return s
}

// StartSession takes over a client connection that has finished its
// login exchange: it dials the initial backend (chosen by the saved
// position and the zoner), performs the plaintext backend login, relays
// the backend's JoinGame with the player's proxy-side eid substituted,
// and spawns the relay loops. Dummy connections to the remaining
// backends are brought up in the background — a slow backend must not
// delay the player's join.
func StartSession(ctx context.Context, state *ProxyState, clientConn *protocol.Conn, name string, operator bool) (*ClientSession, error) {
	clientUUID := mapping.DeriveClientUUID(name)
	s := newClientSession(state, name, clientUUID, clientConn, operator)

	initial := s.chooseInitialBackend()
	netConn, err := state.Backends.Connect(ctx, initial, 3)
	if err != nil {
		return nil, err
	}
	conn := protocol.NewConn(netConn)
	playerEID, joinGame, err := loginBackend(conn, name, state.Cfg.Protocol)
	if err != nil {
		conn.Close()
		return nil, err
	}
	bc := newBackendConn(initial, conn, playerEID)

	proxyEID := state.Tables.RegisterEntity(initial, playerEID, 0)
	state.Tables.RegisterClientUUID(clientUUID, initial, clientUUID)
	s.addKnownEntity(proxyEID)

	joinGame.EntityID = proxyEID
	joinID, _ := protocol.IDOf(protocol.ClientBound, protocol.KindJoinGame)
	if err := clientConn.WriteFrame(&protocol.Frame{ID: joinID, Body: joinGame.Encode()}); err != nil {
		conn.Close()
		return nil, err
	}

	s.mu.Lock()
	s.active = bc
	s.mu.Unlock()

	state.AddPlayer(s)
	go s.runServerbound()
	go s.runBackendConn(bc)

	go func() {
		for _, id := range state.Backends.All() {
			if id == initial {
				continue
			}
			if err := s.AddDummy(context.Background(), id); err != nil {
				logging.L().Warningf("[%s] dummy join to backend %d failed: %v", name, id, err)
			}
		}
	}()

	logging.L().Infof("[%s] session started on backend %d (eid %d -> proxy %d)", name, initial, playerEID, proxyEID)
	return s, nil
}

// chooseInitialBackend resolves the backend whose zone contains the
// player's last saved position, defaulting to the first configured
// backend for a player with no history.
func (s *ClientSession) chooseInitialBackend() mapping.BackendID {
	all := s.state.Backends.All()
	if s.state.Store == nil || s.state.Zoner == nil {
		return all[0]
	}
	if pos, ok := s.state.Store.Get(s.Name); ok {
		s.mu.Lock()
		s.position = pos
		s.mu.Unlock()
		c := zone.ChunkCoord{X: int32(pos.X) >> 4, Z: int32(pos.Z) >> 4}
		id := s.state.Zoner.BackendFor(c)
		if _, configured := s.state.Backends.Get(id); configured {
			return id
		}
	}
	return all[0]
}

// Alive reports whether the session is still relaying.
func (s *ClientSession) Alive() bool { return atomic.LoadInt32(&s.alive) != 0 }

// Done is closed when the session has fully shut down.
func (s *ClientSession) Done() <-chan struct{} { return s.done }

// ActiveBackend returns the backend the client is currently relayed
// against.
func (s *ClientSession) ActiveBackend() mapping.BackendID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return 0
	}
	return s.active.ID
}

func (s *ClientSession) activeConn() *BackendConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// connFor resolves a backend id to whichever connection this session
// holds for it — the active one or a dummy — for deliveries the
// identifier pass routed to a specific backend.
func (s *ClientSession) connFor(id mapping.BackendID) (*BackendConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active != nil && s.active.ID == id {
		return s.active, true
	}
	d, ok := s.dummies[id]
	return d, ok
}

// IsOperator reports whether this session may run operator-only
// commands (/stop).
func (s *ClientSession) IsOperator() bool { return s.operator }

// ClientConn exposes the client-side connection for the admin status
// feed's byte counters.
func (s *ClientSession) ClientConn() *protocol.Conn { return s.clientConn }

// --- keep-alive bookkeeping -------------------------------------------

func (s *ClientSession) stampKeepAlive() {
	atomic.StoreInt64(&s.lastKeepAlive, time.Now().UnixMilli())
}

func (s *ClientSession) lastKeepAliveMillis() int64 {
	return atomic.LoadInt64(&s.lastKeepAlive)
}

// --- known-entity bookkeeping -----------------------------------------

func (s *ClientSession) addKnownEntity(proxyID int32) {
	s.mu.Lock()
	s.knownEntities[proxyID] = struct{}{}
	s.mu.Unlock()
}

func (s *ClientSession) removeKnownEntity(proxyID int32) {
	s.mu.Lock()
	delete(s.knownEntities, proxyID)
	s.mu.Unlock()
}

func (s *ClientSession) knownEntitySnapshot() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int32, 0, len(s.knownEntities))
	for id := range s.knownEntities {
		out = append(out, id)
	}
	return out
}

// --- chunk bookkeeping ------------------------------------------------

// chunkArrived accounts for one chunk-data (light=false) or update-light
// (light=true) payload from backend bc and reports whether it should be
// forwarded to the client: only the first backend to deliver that chunk
// subtype gets through; every later copy is a duplicate world.
func (s *ClientSession) chunkArrived(bc *BackendConn, c zone.ChunkCoord, light bool) (forward bool) {
	had := bc.noteChunk(c, light)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.knownChunks[c]
	if e == nil {
		e = &chunkEntry{}
		s.knownChunks[c] = e
	}
	if !had {
		e.refcount++
	}
	if light {
		if e.receivedLight {
			return false
		}
		e.receivedLight = true
		return true
	}
	if e.receivedData {
		return false
	}
	e.receivedData = true
	return true
}

// chunkUnloaded accounts for an unload-chunk from bc and reports whether
// the unload should reach the client — only once the last backend
// holding the chunk has let go.
func (s *ClientSession) chunkUnloaded(bc *BackendConn, c zone.ChunkCoord) (forward bool) {
	if !bc.noteUnload(c) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.knownChunks[c]
	if e == nil {
		return false
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(s.knownChunks, c)
		return true
	}
	return false
}

func (s *ClientSession) chunkRefcount(c zone.ChunkCoord) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.knownChunks[c]; e != nil {
		return e.refcount
	}
	return 0
}

// --- client settings snapshot -----------------------------------------

// observeServerbound snapshots the client state a dummy login dialog
// must replay: settings, held slot, and the player's position.
func (s *ClientSession) observeServerbound(lp *protocol.LazyPacket) {
	switch lp.Kind() {
	case protocol.KindClientSettings:
		pk, err := lp.Packet()
		if err != nil || pk == nil {
			return
		}
		cs := pk.(*protocol.ClientSettings)
		s.mu.Lock()
		s.settings = cs
		s.mu.Unlock()
	case protocol.KindHeldItemSlot:
		pk, err := lp.Packet()
		if err != nil || pk == nil {
			return
		}
		hs := pk.(*protocol.HeldItemSlot)
		s.mu.Lock()
		s.heldSlot = hs.Slot
		s.hasHeldSlot = true
		s.mu.Unlock()
	case protocol.KindPlayerPosition:
		pk, err := lp.Packet()
		if err != nil || pk == nil {
			return
		}
		p := pk.(*protocol.PlayerPosition)
		s.mu.Lock()
		s.position.X, s.position.Y, s.position.Z = p.X, p.Y, p.Z
		s.mu.Unlock()
	case protocol.KindPlayerPositionAndLook:
		pk, err := lp.Packet()
		if err != nil || pk == nil {
			return
		}
		p := pk.(*protocol.PlayerPositionAndLook)
		s.mu.Lock()
		s.position.X, s.position.Y, s.position.Z = p.X, p.Y, p.Z
		s.position.Yaw, s.position.Pitch = p.Yaw, p.Pitch
		s.mu.Unlock()
	}
}

func (s *ClientSession) settingsSnapshot() (*protocol.ClientSettings, int16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, s.heldSlot, s.hasHeldSlot
}

func (s *ClientSession) lastKnownPosition() store.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos := s.position
	pos.Backend = s.activeIDLocked()
	return pos
}

func (s *ClientSession) activeIDLocked() mapping.BackendID {
	if s.active == nil {
		return 0
	}
	return s.active.ID
}

// SystemMessage sends a proxy-side chat line to this client only, never
// forwarded to any backend.
func (s *ClientSession) SystemMessage(text string) error {
	json := fmt.Sprintf(`{"text":%q,"color":"yellow"}`, text)
	chat := &protocol.Chat{JSON: json, Position: 0}
	id, ok := protocol.IDOf(protocol.ClientBound, protocol.KindServerChat)
	if !ok {
		return errNoWireID
	}
	return s.clientConn.WriteFrame(&protocol.Frame{ID: id, Body: chat.Encode()})
}

// --- dummy management -------------------------------------------------

// AddDummy dials a backend, performs the full warm-up dialog (plaintext
// login, client settings, the first teleport confirm, perform-respawn,
// held slot) and registers the connection as a dummy with its own
// watcher goroutine. The active connection and every dummy always target
// distinct backends.
func (s *ClientSession) AddDummy(ctx context.Context, backend mapping.BackendID) error {
	s.mu.RLock()
	_, exists := s.dummies[backend]
	isActive := s.active != nil && s.active.ID == backend
	s.mu.RUnlock()
	if exists || isActive {
		return nil
	}

	netConn, err := s.state.Backends.Connect(ctx, backend, 3)
	if err != nil {
		return fmt.Errorf("relay: dummy connect to backend %d: %w", backend, err)
	}
	conn := protocol.NewConn(netConn)
	playerEID, _, err := loginBackend(conn, s.Name, s.state.Cfg.Protocol)
	if err != nil {
		conn.Close()
		return fmt.Errorf("relay: dummy login to backend %d: %w", backend, err)
	}
	bc := newBackendConn(backend, conn, playerEID)
	if err := s.finishDummyJoin(bc); err != nil {
		conn.Close()
		return fmt.Errorf("relay: dummy join to backend %d: %w", backend, err)
	}

	s.mu.Lock()
	if _, raced := s.dummies[backend]; raced || !s.Alive() {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.dummies[backend] = bc
	n := len(s.dummies)
	s.mu.Unlock()
	metrics.SetDummyConnections(n)

	go s.runBackendConn(bc)
	return nil
}

// finishDummyJoin drives the post-login play dialog a vanilla backend
// expects from a real client before it considers the player settled.
func (s *ClientSession) finishDummyJoin(bc *BackendConn) error {
	settings, slot, hasSlot := s.settingsSnapshot()
	if settings == nil {
		settings = &protocol.ClientSettings{Locale: "en_US"}
	}
	if err := bc.writePacket(protocol.KindClientSettings, settings); err != nil {
		return err
	}

	// absorb pre-play noise until the backend settles our position
	for {
		frame, err := bc.Conn.ReadFrame()
		if err != nil {
			return err
		}
		if protocol.KindOf(protocol.ClientBound, frame.ID) != protocol.KindPlayerPositionAndLook {
			continue
		}
		lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
		pk, err := lp.Packet()
		if err != nil || pk == nil {
			continue
		}
		pos := pk.(*protocol.PlayerPositionAndLook)
		if pos.HasTeleportID {
			if err := bc.writePacket(protocol.KindTeleportConfirm, &protocol.TeleportConfirm{TeleportID: pos.TeleportID}); err != nil {
				return err
			}
		}
		break
	}

	if err := bc.writePacket(protocol.KindClientStatus, &protocol.ClientStatus{Action: 0}); err != nil {
		return err
	}
	if hasSlot {
		if err := bc.writePacket(protocol.KindHeldItemSlot, &protocol.HeldItemSlot{Slot: slot}); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectDummy closes and forgets one dummy connection.
func (s *ClientSession) DisconnectDummy(backend mapping.BackendID) {
	s.mu.Lock()
	d, ok := s.dummies[backend]
	if ok {
		delete(s.dummies, backend)
	}
	n := len(s.dummies)
	s.mu.Unlock()
	if ok {
		d.Conn.Close()
		metrics.SetDummyConnections(n)
	}
}

// dropBackendConn removes a dead connection from whichever slot holds
// it. A dead active connection ends the session — the client's world
// just went away and there is no transparent way to hide that.
func (s *ClientSession) dropBackendConn(bc *BackendConn) {
	s.mu.Lock()
	wasActive := s.active == bc
	if d, ok := s.dummies[bc.ID]; ok && d == bc {
		delete(s.dummies, bc.ID)
	}
	s.mu.Unlock()
	bc.Conn.Close()
	if wasActive && s.Alive() {
		s.Kick("Server shut down")
	}
}

// SwapDummy atomically exchanges the active connection with the named
// dummy and rebinds the player's own entity-mapping row so the proxy id
// the client knows itself by now resolves to the new backend's eid. The
// per-connection reader goroutines notice the change on their next frame
// and switch roles; no goroutine is restarted.
func (s *ClientSession) SwapDummy(target mapping.BackendID) error {
	s.mu.Lock()
	d, ok := s.dummies[target]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("relay: no warm dummy connection to backend %d", target)
	}
	if !d.Conn.Alive() {
		s.mu.Unlock()
		return fmt.Errorf("relay: backend %d: %w", target, ErrBackendDead)
	}
	old := s.active
	delete(s.dummies, target)
	s.active = d
	if old != nil {
		s.dummies[old.ID] = old
	}
	s.mu.Unlock()

	if old != nil {
		if proxyID, found := s.state.Tables.LookupEntityByServer(old.ID, old.PlayerEID); found {
			s.state.Tables.RebindEntity(proxyID, d.ID, d.PlayerEID)
		}
		logging.L().Infof("[%s] swapped active backend %d -> %d", s.Name, old.ID, target)
	}
	return nil
}

// Kick writes a disconnect packet with a textual reason and tears the
// session down.
func (s *ClientSession) Kick(reason string) {
	if id, ok := protocol.IDOf(protocol.ClientBound, protocol.KindKick); ok {
		kick := &protocol.Kick{JSON: protocol.KickReason(reason)}
		_ = s.clientConn.WriteFrame(&protocol.Frame{ID: id, Body: kick.Encode()})
	}
	logging.L().Infof("[%s] kicked: %s", s.Name, reason)
	s.Close()
}

// Close tears down every connection this session owns, saves the
// player's last known position — on every disconnect, not only process
// shutdown — and unregisters from the proxy.
func (s *ClientSession) Close() {
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.alive, 0)

		s.mu.Lock()
		conns := make([]*BackendConn, 0, len(s.dummies)+1)
		if s.active != nil {
			conns = append(conns, s.active)
		}
		for _, d := range s.dummies {
			conns = append(conns, d)
		}
		s.dummies = make(map[mapping.BackendID]*BackendConn)
		s.active = nil
		pos := s.position
		s.mu.Unlock()

		for _, bc := range conns {
			bc.Conn.Close()
		}
		s.clientConn.Close()

		if s.state.Store != nil {
			s.state.Store.Set(s.Name, pos)
		}
		s.state.Tables.RemoveUUID(s.ClientUUID)
		s.state.RemovePlayer(s.Name)
		metrics.SetDummyConnections(0)
		close(s.done)
		logging.L().Infof("[%s] session closed", s.Name)
	})
}

// loginBackend drives the plaintext handshake+login exchange against a
// freshly dialed backend and reads through to its JoinGame, returning
// the eid the backend assigned this player. A backend that requests
// encryption is refused — this proxy only speaks plaintext downstream.
func loginBackend(conn *protocol.Conn, name string, protocolVersion int32) (int32, *protocol.JoinGame, error) {
	handshakeID, _ := protocol.IDOf(protocol.ServerBound, protocol.KindHandshake)
	hs := &protocol.Handshake{ProtocolVersion: protocolVersion, ServerAddress: "multimc", ServerPort: 25565, NextState: 2}
	if err := conn.WriteFrame(&protocol.Frame{ID: handshakeID, Body: hs.Encode()}); err != nil {
		return 0, nil, err
	}
	conn.SetState(protocol.StateLogin)

	loginID, _ := protocol.IDOf(protocol.ServerBound, protocol.KindLoginStart)
	ls := &protocol.LoginStart{Name: name}
	if err := conn.WriteFrame(&protocol.Frame{ID: loginID, Body: ls.Encode()}); err != nil {
		return 0, nil, err
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return 0, nil, err
		}
		switch protocol.KindOf(protocol.ClientBound, frame.ID) {
		case protocol.KindEncryptionRequest:
			return 0, nil, fmt.Errorf("relay: backend requested encryption; plaintext login only")
		case protocol.KindSetCompression:
			lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StateLogin, frame)
			pk, err := lp.Packet()
			if err != nil {
				return 0, nil, err
			}
			conn.SetCompressionThreshold(int(pk.(*protocol.SetCompression).Threshold))
		case protocol.KindLoginDisconnect:
			return 0, nil, fmt.Errorf("relay: backend rejected login")
		case protocol.KindLoginSuccess:
			conn.SetState(protocol.StatePlay)
			return awaitJoinGame(conn)
		default:
			logging.L().Warningf("relay: unknown packet 0x%02x during backend login", frame.ID)
		}
	}
}

// awaitJoinGame reads play-state frames until the backend's JoinGame
// arrives, absorbing anything a nonconforming backend sends first.
func awaitJoinGame(conn *protocol.Conn) (int32, *protocol.JoinGame, error) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return 0, nil, err
		}
		if protocol.KindOf(protocol.ClientBound, frame.ID) != protocol.KindJoinGame {
			continue
		}
		lp := protocol.NewLazyPacket(protocol.ClientBound, protocol.StatePlay, frame)
		pk, err := lp.Packet()
		if err != nil {
			return 0, nil, err
		}
		jg := pk.(*protocol.JoinGame)
		return jg.EntityID, jg, nil
	}
}
