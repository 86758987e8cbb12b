package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"crease/internal/domain"
	"crease/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveClient is one websocket subscriber. A slow client drops frames rather
// than blocking the broadcaster; only the newest snapshot matters.
type liveClient struct {
	conn *websocket.Conn
	send chan domain.Snapshot
}

// hub fans successful command snapshots out to each game's subscribers.
type hub struct {
	mu    sync.Mutex
	games map[string]map[*liveClient]bool
}

func newHub() *hub {
	return &hub{games: map[string]map[*liveClient]bool{}}
}

func (h *hub) subscribe(gameID string, c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.games[gameID] == nil {
		h.games[gameID] = map[*liveClient]bool{}
	}
	h.games[gameID][c] = true
	liveSubscribers.Inc()
}

func (h *hub) unsubscribe(gameID string, c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.games[gameID]; set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.games, gameID)
		}
		liveSubscribers.Dec()
	}
}

func (h *hub) broadcast(gameID string, snap domain.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.games[gameID] {
		select {
		case c.send <- snap:
		default:
		}
	}
}

// liveHandler upgrades to a websocket and streams snapshots: the current one
// on connect, then one per successful command until the client goes away.
func liveHandler(e *engine.Engine, h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		snap, err := e.Snapshot(r.Context(), gameID)
		if err != nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("live: upgrade: %v", err)
			return
		}
		c := &liveClient{conn: conn, send: make(chan domain.Snapshot, 8)}
		h.subscribe(gameID, c)
		c.send <- snap
		go c.writePump()
		c.readPump()
		// After unsubscribe no broadcast can reference c, so closing the
		// channel here cannot race a send.
		h.unsubscribe(gameID, c)
		close(c.send)
	}
}

func (c *liveClient) writePump() {
	defer c.conn.Close()
	for snap := range c.send {
		if err := c.conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

// readPump discards client frames; the feed is one-way. It returns when the
// peer closes or errors, which tears the client down.
func (c *liveClient) readPump() {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
