package app

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

func (s *HTTPServer) upgrader() websocket.Upgrader {
	return websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
	}}
}

// handleStream pushes the current state of an open document followed by
// every change and save result until either side goes away.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request, documentID string) {
	state, err := s.service.State(documentID)
	if err != nil {
		s.fail(w, err)
		return
	}
	updates, cancel, err := s.service.Subscribe(documentID)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer cancel()

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("app: stream upgrade for %s: %v", documentID, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readLoop(conn, done)

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(StreamMessage{Type: StreamState, State: &state, Sync: state.Sync}); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "document closed"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readLoop discards client frames so control messages are processed, and
// closes done when the peer disconnects.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
