package protocol

import (
	"log/slog"

	"phone-party/domain"
)

// Reserved protocol messages, sent as bare text frames outside any envelope.
const (
	Ping = "ping"
	Pong = "pong"
)

// Handler relays every message verbatim to the sender's room, except the
// literal Ping which is answered with Pong.
type Handler struct {
	broadcaster domain.Broadcaster
}

func NewHandler(b domain.Broadcaster) *Handler {
	return &Handler{broadcaster: b}
}

func (h *Handler) OnConnect(conn domain.Connection) {
	h.broadcaster.Register(conn)
}

func (h *Handler) OnMessage(conn domain.Connection, data []byte) {
	if string(data) == Ping {
		if err := conn.Send([]byte(Pong)); err != nil {
			slog.Warn("pong failed", "clientId", conn.ID(), "error", err)
		}
		return
	}

	slog.Debug("relay message", "room", conn.Room(), "clientId", conn.ID(), "bytes", len(data))
	h.broadcaster.Broadcast(conn, data)
}

func (h *Handler) OnDisconnect(conn domain.Connection) {
	h.broadcaster.Unregister(conn)
}
