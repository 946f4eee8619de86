package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

// eventsHandler streams a full state snapshot on connect and after every
// change. Bursts of changes collapse into one message.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		listener := cfg.Store.Broadcaster().Subscribe()
		defer cfg.Store.Broadcaster().Unsubscribe(listener)

		// The UI never sends anything meaningful; reading only services
		// control frames and notices the close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func() bool {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(cfg.Store.Snapshot()); err != nil {
				cfg.Logger.Debug("websocket write failed", "error", err)
				return false
			}
			return true
		}

		if !send() {
			return
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case <-listener.C:
				if !send() {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
