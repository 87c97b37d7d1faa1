// Package server wires the relay's HTTP surface: the WebSocket room
// endpoint plus health and stats.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"phone-party/domain"
	ws "phone-party/websocket"
)

// PartyPath is the prefix under which rooms live: /party/{room}.
const PartyPath = "/party"

type Options struct {
	MaxMessageSize int64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewRouter(broadcaster domain.Broadcaster, lifecycle domain.Lifecycle, opts Options) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(PartyPath+"/{room}", wsHandler(lifecycle, opts)).Methods(http.MethodGet)
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(broadcaster)).Methods(http.MethodGet)
	return r
}

func wsHandler(lifecycle domain.Lifecycle, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := mux.Vars(r)["room"]

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "room", room, "error", err)
			return
		}

		wsConn := ws.NewConn(uuid.NewString(), room, conn, lifecycle, opts.MaxMessageSize)
		wsConn.Start()
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func statsHandler(broadcaster domain.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, clients := broadcaster.Stats()
		writeJSON(w, map[string]int{"rooms": rooms, "clients": clients})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}
