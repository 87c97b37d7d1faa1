package hub

import (
	"log/slog"
	"sync"

	"phone-party/domain"
)

// Hub is the registry of rooms by name. Rooms are created on first
// Register and removed when their last member unregisters.
type Hub struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]*Room),
	}
}

// Register and Unregister keep the hub lock while touching the room so an
// emptied room is never removed while a concurrent join is adding to it.
func (h *Hub) Register(conn domain.Connection) {
	h.mu.Lock()
	r, exists := h.rooms[conn.Room()]
	if !exists {
		r = NewRoom(conn.Room())
		r.onSendError = h.dropFailed
		h.rooms[conn.Room()] = r
	}
	r.Join(conn)
	count := r.Len()
	h.mu.Unlock()

	slog.Info("client connected", "room", conn.Room(), "clientId", conn.ID(), "clients", count)
}

func (h *Hub) Unregister(conn domain.Connection) {
	h.mu.Lock()
	r, exists := h.rooms[conn.Room()]
	if !exists {
		h.mu.Unlock()
		return
	}
	count := r.Leave(conn.ID())
	if count == 0 {
		delete(h.rooms, conn.Room())
	}
	h.mu.Unlock()

	slog.Info("client disconnected", "room", conn.Room(), "clientId", conn.ID(), "clients", count)
	if count == 0 {
		slog.Info("room removed", "room", conn.Room())
	}
}

func (h *Hub) Broadcast(sender domain.Connection, data []byte) {
	r := h.Room(sender.Room())
	if r == nil {
		return
	}
	r.Broadcast(data, sender.ID())
}

// Room returns the live room with the given name, or nil.
func (h *Hub) Room(name string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[name]
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		clients += r.Len()
	}
	return rooms, clients
}

// dropFailed runs under the room's read lock, so the cleanup is deferred
// to its own goroutine.
func (h *Hub) dropFailed(conn domain.Connection, _ error) {
	go func() {
		h.Unregister(conn)
		if err := conn.Close(); err != nil {
			slog.Debug("close after failed delivery", "clientId", conn.ID(), "error", err)
		}
	}()
}

// CloseAll closes every registered connection. Their read pumps then
// unregister them as usual.
func (h *Hub) CloseAll() {
	var conns []domain.Connection
	h.mu.RLock()
	for _, r := range h.rooms {
		r.mu.RLock()
		for _, c := range r.members {
			conns = append(conns, c)
		}
		r.mu.RUnlock()
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			slog.Debug("close on shutdown", "clientId", c.ID(), "error", err)
		}
	}
	slog.Info("closed all connections", "clients", len(conns))
}
