// internal/handlers/ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/qrfun/qrfun-service/internal/engine"
	"github.com/qrfun/qrfun-service/internal/middleware"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	subprotocol  = "room"
	readLimit    = 32 << 10
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
	// leaveTimeout bounds the disconnect transition run after the request
	// context is gone.
	leaveTimeout = 5 * time.Second
)

type closeFrame struct {
	code   int
	reason string
}

// WSHandler upgrades to the room websocket. The connection starts
// anonymous; join_room or stream_subscribe attaches it to a room.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: s.AllowedOrigins,
	})
	if err != nil {
		s.Log.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.CloseNow()

	if c.Subprotocol() != subprotocol {
		c.Close(protocol.CloseBadSubprotocol, "client must speak the room subprotocol")
		return
	}
	c.SetReadLimit(readLimit)

	fingerprint := r.URL.Query().Get("device")
	if fingerprint == "" {
		fingerprint = r.Header.Get("X-Device-Fingerprint")
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The write pump performs the close so frames queued before it still go out.
	closing := make(chan closeFrame, 1)
	conn := s.Sessions.Register(fingerprint, r.URL.Query().Get("session"), r.RemoteAddr, func(code int, reason string) {
		closing <- closeFrame{code: code, reason: reason}
	})
	middleware.LogWebSocketConnect(s.Log, r.RemoteAddr, conn.ID.String(), fingerprint)

	go s.writePump(ctx, c, conn, closing)
	readErr := s.readPump(ctx, c, conn)

	cancel()
	s.teardown(conn)
	middleware.LogWebSocketDisconnect(s.Log, r.RemoteAddr, conn.ID.String(), readErr)
}

// teardown removes conn from the session table and, when it was the last
// connection of its player, runs the room's disconnect transition.
func (s *Server) teardown(conn *session.Connection) {
	b := s.Sessions.Unregister(conn)
	s.leave(b)
}

func (s *Server) leave(b session.Binding) {
	if !b.Bound || s.Sessions.HasConnection(b.PlayerID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := s.Engine.PlayerDisconnected(ctx, b.PlayerID, b.RoomID); err != nil && !errors.Is(err, engine.ErrRoomNotFound) {
		s.Log.WithFields(logrus.Fields{"player": b.PlayerID, "room": b.RoomID}).Warnf("disconnect transition: %v", err)
	}
}

// readPump handles inbound frames until the socket closes. The returned
// error is nil for a normal close.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *session.Connection) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.Log.Warnf("conn %s: ignoring non-text frame", conn.ID)
			continue
		}

		action, err := protocol.Decode(msg)
		if err != nil {
			code := "invalid_payload"
			if errors.Is(err, protocol.ErrUnknownAction) {
				code = "unknown_action"
			}
			conn.Send(protocol.Encode(protocol.EventError, protocol.ErrorData{Code: code, Message: err.Error()}))
			continue
		}
		s.Sessions.Touch(conn)
		s.handleAction(ctx, conn, action)
	}
}

// handleAction runs session-level actions here and forwards the rest to the
// engine. Every failure goes back to the sender as an error event.
func (s *Server) handleAction(ctx context.Context, conn *session.Connection, action protocol.Action) {
	var err error
	switch a := action.(type) {
	case protocol.JoinRoom:
		err = s.joinRoom(ctx, conn, a)
	case protocol.Heartbeat:
		conn.Send(protocol.Encode(protocol.EventHeartbeatAck, protocol.HeartbeatAck{
			Timestamp:  a.Timestamp,
			ServerTime: time.Now().UnixMilli(),
		}))
	case protocol.StreamSubscribe:
		err = s.subscribe(ctx, conn, a)
	default:
		playerID, roomID, _ := s.Sessions.Binding(conn)
		if playerID == nil {
			err = engine.ErrNotInRoom
			break
		}
		err = s.Engine.Dispatch(ctx, *playerID, *roomID, action)
		if err == nil {
			if _, ok := action.(protocol.ExitGame); ok {
				s.Sessions.Unbind(conn)
			}
		}
	}
	if err != nil {
		s.sendError(conn, action.Type(), err)
	}
}

func (s *Server) joinRoom(ctx context.Context, conn *session.Connection, a protocol.JoinRoom) error {
	if s.Signer != nil && (a.Token != "" || s.AuthRequired) {
		if err := s.Signer.VerifyFor(a.Token, a.PlayerID, a.RoomID); err != nil {
			s.Log.WithFields(logrus.Fields{"player": a.PlayerID, "room": a.RoomID}).Warnf("join token rejected: %v", err)
			conn.Close(protocol.CloseInvalidAuthToken, "invalid token")
			return nil
		}
	}
	prev, err := s.Sessions.Join(ctx, conn, a.PlayerID, a.RoomID)
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return engine.ErrRoomNotFound
	case errors.Is(err, session.ErrPlayerNotInRoom):
		return engine.ErrNotInRoom
	case err != nil:
		return err
	}
	s.leave(prev)
	err = s.Engine.PlayerJoined(ctx, a.PlayerID, a.RoomID)
	if errors.Is(err, engine.ErrKicked) {
		s.Sessions.Unbind(conn)
		s.sendError(conn, a.Type(), err)
		conn.Close(protocol.CloseKicked, "removed by host")
		return nil
	}
	return err
}

func (s *Server) subscribe(ctx context.Context, conn *session.Connection, a protocol.StreamSubscribe) error {
	prev, err := s.Sessions.Subscribe(ctx, conn, a.RoomID)
	if errors.Is(err, session.ErrRoomNotFound) {
		return engine.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	s.leave(prev)
	return s.Engine.Sync(ctx, a.RoomID)
}

func (s *Server) sendError(conn *session.Connection, t protocol.ActionType, err error) {
	data := protocol.ErrorData{Action: string(t)}
	var ae *engine.ActionError
	if errors.As(err, &ae) {
		data.Code, data.Message = ae.Code, ae.Message
	} else {
		s.Log.WithFields(logrus.Fields{"conn": conn.ID, "action": t}).Errorf("action failed: %v", err)
		data.Code, data.Message = "internal", "internal error"
	}
	conn.Send(protocol.Encode(protocol.EventError, data))
}

// writePump drains the connection's queue onto the socket and keeps it
// alive with pings.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *session.Connection, closing <-chan closeFrame) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-closing:
			s.flush(c, conn)
			_ = c.Close(websocket.StatusCode(f.code), f.reason)
			return
		case data := <-conn.Out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Log.Debugf("conn %s: write failed: %v", conn.ID, err)
				c.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.Log.Debugf("conn %s: ping failed: %v", conn.ID, err)
				c.CloseNow()
				return
			}
		}
	}
}

func (s *Server) flush(c *websocket.Conn, conn *session.Connection) {
	for {
		select {
		case data := <-conn.Out:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		default:
			return
		}
	}
}
