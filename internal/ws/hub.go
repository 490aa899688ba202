package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks which subscribers watch which auction. Rooms appear on first
// join and are pruned when the last subscriber leaves, so an idle process
// holds no per-auction state.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*streamConn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*streamConn]struct{})}
}

func (h *Hub) Join(auctionID string, c *streamConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[auctionID]
	if room == nil {
		room = make(map[*streamConn]struct{})
		h.rooms[auctionID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) Leave(auctionID string, c *streamConn) {
	h.mu.Lock()
	if room := h.rooms[auctionID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
	h.mu.Unlock()

	c.close()
}

// Broadcast fans one payload out to every subscriber of the auction. Writes
// happen outside the lock against a snapshot of the room; subscribers whose
// write fails are detached.
func (h *Hub) Broadcast(auctionID string, msg []byte) {
	h.mu.Lock()
	conns := make([]*streamConn, 0, len(h.rooms[auctionID]))
	for c := range h.rooms[auctionID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			h.Leave(auctionID, c)
		}
	}
}
