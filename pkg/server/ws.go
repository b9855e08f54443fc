package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/driver"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/updates"
)

// websocketUpgrader is a thin rename of gorilla/websocket's Upgrader so the
// rest of the package doesn't need to import gorilla/websocket directly.
type websocketUpgrader = websocket.Upgrader

func newWebsocketUpgrader() websocketUpgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Flows are submitted over this socket from whatever origin the
		// operator's UI is served from; CORS-equivalent origin policy is
		// left to a reverse proxy in front of this server.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// wsObserver relays updates.Update values to a single websocket connection,
// matching the source's websocket_run send_update: dicts as JSON, narration
// strings as text frames.
type wsObserver struct {
	conn *websocket.Conn
}

func (o *wsObserver) OnUpdate(_ context.Context, update updates.Update) {
	if update.Kind == updates.KindNarration {
		_ = o.conn.WriteMessage(websocket.TextMessage, []byte(update.Message))
		return
	}
	_ = o.conn.WriteJSON(update)
}

// handleWSRun implements spec §6's websocket control loop: each inbound
// message is either a flow payload that starts a run, or {"stop": ...} that
// cancels the active one, relayed through a driver.Session bound to this
// connection.
func (s *Server) handleWSRun(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.activeConnections.Add(1)
	defer s.activeConnections.Add(-1)

	session := driver.NewSession(s.driver, &wsObserver{conn: conn})
	ctx := r.Context()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if session.Handle(ctx, msg) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("Closing connection"))
			return
		}
	}
}
