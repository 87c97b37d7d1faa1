package protocol

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-party/domain"
)

type mockConn struct {
	id      string
	room    string
	sent    [][]byte
	sendErr error
	mu      sync.Mutex
}

func (m *mockConn) ID() string   { return m.id }
func (m *mockConn) Room() string { return m.room }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) getSent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

type mockBroadcaster struct {
	registered   []string
	unregistered []string
	broadcasts   []broadcastCall
	mu           sync.Mutex
}

type broadcastCall struct {
	senderID string
	data     []byte
}

func (m *mockBroadcaster) Register(conn domain.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, conn.ID())
}

func (m *mockBroadcaster) Unregister(conn domain.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, conn.ID())
}

func (m *mockBroadcaster) Stats() (int, int) { return 0, 0 }

func (m *mockBroadcaster) Broadcast(sender domain.Connection, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, broadcastCall{senderID: sender.ID(), data: data})
}

func (m *mockBroadcaster) getBroadcasts() []broadcastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcasts
}

func TestHandler_PingPong(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	handler := NewHandler(broadcaster)
	conn := &mockConn{id: "client1", room: "room1"}

	handler.OnMessage(conn, []byte("ping"))

	sent := conn.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pong", string(sent[0]))
	assert.Empty(t, broadcaster.getBroadcasts())
}

func TestHandler_PingSendFailure(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	handler := NewHandler(broadcaster)
	conn := &mockConn{id: "client1", room: "room1", sendErr: errors.New("closed")}

	handler.OnMessage(conn, []byte("ping"))

	assert.Empty(t, broadcaster.getBroadcasts())
}

func TestHandler_Broadcast(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "circle event", data: `{"type":"circle","px":0.5,"py":0.25,"color":"0.8,0.6,0.9,1.0"}`},
		{name: "malformed json", data: "not json"},
		{name: "unknown kind", data: `{"type":"square"}`},
		{name: "ping with whitespace", data: "ping "},
		{name: "pong from client", data: "pong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broadcaster := &mockBroadcaster{}
			handler := NewHandler(broadcaster)
			conn := &mockConn{id: "client1", room: "room1"}

			handler.OnMessage(conn, []byte(tt.data))

			broadcasts := broadcaster.getBroadcasts()
			require.Len(t, broadcasts, 1)
			assert.Equal(t, "client1", broadcasts[0].senderID)
			assert.Equal(t, tt.data, string(broadcasts[0].data))
			assert.Empty(t, conn.getSent())
		})
	}
}

func TestHandler_Lifecycle(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	handler := NewHandler(broadcaster)
	conn := &mockConn{id: "client1", room: "room1"}

	var _ domain.Lifecycle = handler

	handler.OnConnect(conn)
	handler.OnDisconnect(conn)

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	assert.Equal(t, []string{"client1"}, broadcaster.registered)
	assert.Equal(t, []string{"client1"}, broadcaster.unregistered)
}
