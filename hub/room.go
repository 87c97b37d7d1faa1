package hub

import (
	"log/slog"
	"sync"

	"phone-party/domain"
)

// Room is a named broadcast group. Membership is a live view: Broadcast
// reaches whoever is a member at the time it runs.
type Room struct {
	name    string
	members map[string]domain.Connection
	mu      sync.RWMutex

	onSendError func(conn domain.Connection, err error)
}

func NewRoom(name string) *Room {
	return &Room{
		name:    name,
		members: make(map[string]domain.Connection),
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) Join(conn domain.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[conn.ID()]; exists {
		return false
	}
	r.members[conn.ID()] = conn
	return true
}

// Leave removes the member with the given id and returns the remaining size.
func (r *Room) Leave(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, id)
	return len(r.members)
}

func (r *Room) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast sends data to every member except excludeID and returns the
// number of successful deliveries. A failed delivery is logged and reported
// through onSendError; it never stops delivery to the other members.
func (r *Room) Broadcast(data []byte, excludeID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, conn := range r.members {
		if id == excludeID {
			continue
		}
		if err := conn.Send(data); err != nil {
			slog.Warn("broadcast delivery failed", "room", r.name, "clientId", id, "error", err)
			if r.onSendError != nil {
				r.onSendError(conn, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}
