package httpapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"patientzero/internal/buffer"
	"patientzero/internal/game"
	"patientzero/internal/protocol"
)

// bridgeConn is one connected platform bridge. Outbound traffic goes through
// a buffered channel so engine and sweep callers never block on a slow peer.
type bridgeConn struct {
	outbound chan any
}

func (bc *bridgeConn) send(msg any) {
	select {
	case bc.outbound <- msg:
	default:
		log.Printf("[bridge] outbound buffer full, dropping %T", msg)
	}
}

// BroadcastIntent fans a role-sync intent out to every connected bridge.
// With no bridge connected the intent is dropped; the periodic sweep
// re-emits cures, and state in the store stays canonical either way.
func (s *Server) BroadcastIntent(intent game.RoleIntent) {
	msg := protocol.RoleSync{
		Type:     protocol.TypeRoleSync,
		PlayerID: intent.PlayerID,
		Action:   string(intent.Action),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bridges) == 0 {
		log.Printf("[bridge] no bridge connected, dropping role %s for %d", intent.Action, intent.PlayerID)
		return
	}
	for bc := range s.bridges {
		bc.send(msg)
	}
}

func (s *Server) addBridge(bc *bridgeConn) {
	s.mu.Lock()
	s.bridges[bc] = struct{}{}
	s.mu.Unlock()
	s.metrics.BridgeConnections.Inc()
}

func (s *Server) removeBridge(bc *bridgeConn) {
	s.mu.Lock()
	delete(s.bridges, bc)
	s.mu.Unlock()
	s.metrics.BridgeConnections.Dec()
}

func (s *Server) handleBridgeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[bridge] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	bc := &bridgeConn{outbound: make(chan any, 64)}
	s.addBridge(bc)
	defer func() {
		// Removal happens under the same lock that guards sends, so once it
		// returns nothing can write to the channel and closing is safe.
		s.removeBridge(bc)
		close(bc.outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range bc.outbound {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[bridge] write failed: %v", err)
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		parsed, err := protocol.ParseBridgeMessage(raw)
		if err != nil {
			bc.send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "bad_event",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.MessageCreated:
			s.handleMessageCreated(r, bc, msg)
		case protocol.MessageDeleted:
			s.handleMessageDeleted(bc, msg)
		case protocol.RoleSyncResult:
			if !msg.OK {
				// The store, not the platform role, is canonical; the sweep
				// re-emits cures, so a failed sync is surfaced and dropped.
				s.metrics.RoleSyncFailures.Inc()
				log.Printf("[bridge] role %s for %d failed: %s", msg.Action, msg.PlayerID, msg.Detail)
			}
		}
	}
}

func (s *Server) handleMessageCreated(r *http.Request, bc *bridgeConn, msg protocol.MessageCreated) {
	ev := game.MessageEvent{
		AuthorID:    msg.AuthorID,
		ChannelID:   msg.ChannelID,
		MessageID:   msg.MessageID,
		Timestamp:   time.Unix(msg.TS, 0).UTC(),
		AuthorRoles: msg.AuthorRoles,
		Bot:         msg.Bot,
	}
	out, err := s.engine.HandleMessage(r.Context(), ev)
	if err != nil {
		bc.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			MessageID: msg.MessageID,
			Code:      "store_unavailable",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}
	if out.Intent != nil {
		bc.send(protocol.RoleSync{
			Type:     protocol.TypeRoleSync,
			PlayerID: out.Intent.PlayerID,
			Action:   string(out.Intent.Action),
		})
	}
	bc.send(protocol.EventAck{
		Type:       protocol.TypeEventAck,
		MessageID:  msg.MessageID,
		Transition: string(out.Transition),
	})
}

func (s *Server) handleMessageDeleted(bc *bridgeConn, msg protocol.MessageDeleted) {
	err := s.engine.HandleMessageDelete(msg.ChannelID, msg.MessageID)
	if err != nil && !errors.Is(err, buffer.ErrNotFound) && !errors.Is(err, buffer.ErrUnderflow) {
		bc.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			MessageID: msg.MessageID,
			Code:      "delete_failed",
			Retryable: false,
			Detail:    err.Error(),
		})
		return
	}
	// Stale deletes (already rotated out, or the channel's only record) are
	// expected and acknowledged like any other event.
	bc.send(protocol.EventAck{Type: protocol.TypeEventAck, MessageID: msg.MessageID})
}
