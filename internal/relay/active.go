package relay

import (
	"errors"
	"io"

	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/protocol"
)

// runServerbound reads frames from the real client for the session's
// whole lifetime and forwards them through the pipeline. The active
// backend is resolved fresh for every delivery, so a swap that happens
// mid-flight routes the very next packet to the new backend; a packet
// the identifier pass bound to a specific backend is delivered to that
// backend's connection even when it is a dummy.
func (s *ClientSession) runServerbound() {
	for s.Alive() {
		frame, err := s.clientConn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.L().Warningf("[%s] client read: %v", s.Name, err)
			}
			s.Close()
			return
		}

		lp := protocol.NewLazyPacket(protocol.ServerBound, s.clientConn.State(), frame)
		s.observeServerbound(lp)

		pctx := &PassContext{Dir: protocol.ServerBound, Session: s, Packet: lp}
		if err := s.state.Pipeline.Run(pctx); err != nil {
			logging.L().Warningf("[%s] serverbound pass: %v", s.Name, err)
			continue
		}
		if pctx.Drop {
			continue
		}

		dest := s.activeConn()
		if pctx.Routed {
			if bc, ok := s.connFor(pctx.DestBackend); ok {
				dest = bc
			} else {
				continue
			}
		}
		if dest == nil {
			continue
		}

		out, err := lp.IntoRaw()
		if err != nil {
			logging.L().Warningf("[%s] serverbound encode: %v", s.Name, err)
			continue
		}
		if err := dest.Conn.WriteFrame(out); err != nil {
			logging.L().Warningf("[%s] write to backend %d: %v", s.Name, dest.ID, err)
			dest.Conn.Close()
		}
	}
}

// runBackendConn owns all reads from one backend connection for that
// connection's lifetime. Each frame is handled according to the
// connection's role at that instant — full relay when active, watcher
// semantics when a dummy — so a swap never has to hand a blocked reader
// off between goroutines.
func (s *ClientSession) runBackendConn(bc *BackendConn) {
	defer s.dropBackendConn(bc)
	for s.Alive() {
		frame, err := bc.Conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.L().Warningf("[%s] backend %d read: %v", s.Name, bc.ID, err)
			}
			return
		}

		if s.ActiveBackend() == bc.ID {
			if err := s.handleActiveFrame(bc, frame); err != nil {
				return
			}
		} else {
			s.handleDummyFrame(bc, frame)
		}
	}
}

// handleActiveFrame relays one clientbound frame from the active
// backend: the full pipeline runs, then delivery to the client. A
// client write failure is fatal for the session; a per-frame pass error
// just drops the frame.
func (s *ClientSession) handleActiveFrame(bc *BackendConn, frame *protocol.Frame) error {
	lp := protocol.NewLazyPacket(protocol.ClientBound, bc.Conn.State(), frame)
	pctx := &PassContext{Dir: protocol.ClientBound, Session: s, Source: bc.ID, SourceConn: bc, Packet: lp}
	if err := s.state.Pipeline.Run(pctx); err != nil {
		logging.L().Warningf("[%s] clientbound pass: %v", s.Name, err)
		return nil
	}
	if pctx.Drop {
		return nil
	}

	out, err := lp.IntoRaw()
	if err != nil {
		logging.L().Warningf("[%s] clientbound encode: %v", s.Name, err)
		return nil
	}
	if err := s.clientConn.WriteFrame(out); err != nil {
		s.Close()
		return err
	}
	return nil
}
