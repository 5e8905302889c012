package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	roomsWSWriteTimeout = 5 * time.Second
	roomsWSListTimeout  = 10 * time.Second
	maxRoomsWSReadBytes = 1 << 10
)

type roomsSnapshot struct {
	Rooms []roomView `json:"rooms"`
	At    time.Time  `json:"at"`
	Error string     `json:"error,omitempty"`
}

// handleRoomsWS streams the active room list until the client goes away. Clients never
// need to send anything; reads only detect the close.
func (s *server) handleRoomsWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Printf("rooms ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRoomsWSReadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.deps.RoomsPollInterval)
	defer ticker.Stop()
	for {
		if err := s.writeRoomsSnapshot(ctx, conn); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func (s *server) writeRoomsSnapshot(ctx context.Context, conn *websocket.Conn) error {
	listCtx, cancel := context.WithTimeout(ctx, roomsWSListTimeout)
	defer cancel()

	snapshot := roomsSnapshot{At: time.Now().UTC()}
	rooms, err := s.deps.Rooms.ListRooms(listCtx)
	if err != nil {
		s.deps.Logger.Printf("rooms ws list failed err=%v", err)
		snapshot.Rooms = []roomView{}
		snapshot.Error = "failed to list rooms"
	} else {
		snapshot.Rooms = toRoomViews(rooms)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(roomsWSWriteTimeout))
	return conn.WriteJSON(snapshot)
}

// Browsers send Origin; accept the configured frontend and same-host pages. Non-browser
// clients without Origin are allowed.
func (s *server) isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsedOrigin, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsedOrigin.Host) == "" {
		return false
	}
	if allowed, err := url.Parse(strings.TrimSpace(s.deps.AllowedOrigin)); err == nil && allowed.Host != "" {
		if strings.EqualFold(allowed.Scheme, parsedOrigin.Scheme) && strings.EqualFold(allowed.Host, parsedOrigin.Host) {
			return true
		}
	}
	return strings.EqualFold(parsedOrigin.Host, r.Host)
}
