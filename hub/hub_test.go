package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	room     string
	received [][]byte
	closed   bool
	mu       sync.Mutex
	sendErr  error
}

func (m *mockConn) ID() string   { return m.id }
func (m *mockConn) Room() string { return m.room }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Hub) ([]*mockConn, *mockConn)
		wantReceived map[string]int
	}{
		{
			name: "broadcast to room members",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				sender := &mockConn{id: "sender", room: "room1"}
				receiver1 := &mockConn{id: "recv1", room: "room1"}
				receiver2 := &mockConn{id: "recv2", room: "room1"}
				h.Register(sender)
				h.Register(receiver1)
				h.Register(receiver2)
				return []*mockConn{sender, receiver1, receiver2}, sender
			},
			wantReceived: map[string]int{"sender": 0, "recv1": 1, "recv2": 1},
		},
		{
			name: "no cross-room broadcast",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				sender := &mockConn{id: "sender", room: "room1"}
				receiver := &mockConn{id: "recv1", room: "room2"}
				h.Register(sender)
				h.Register(receiver)
				return []*mockConn{receiver}, sender
			},
			wantReceived: map[string]int{"recv1": 0},
		},
		{
			name: "single client in room",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				sender := &mockConn{id: "sender", room: "room1"}
				h.Register(sender)
				return []*mockConn{sender}, sender
			},
			wantReceived: map[string]int{"sender": 0},
		},
		{
			name: "sender not registered",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				receiver := &mockConn{id: "recv1", room: "room1"}
				h.Register(receiver)
				return []*mockConn{receiver}, &mockConn{id: "ghost", room: "room9"}
			},
			wantReceived: map[string]int{"recv1": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			receivers, sender := tt.setup(h)

			h.Broadcast(sender, []byte("test message"))

			for _, r := range receivers {
				expected := tt.wantReceived[r.ID()]
				assert.Len(t, r.getReceived(), expected, "receiver %s", r.ID())
			}
		})
	}
}

func TestHub_Stats(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Hub)
		wantRooms   int
		wantClients int
	}{
		{
			name:        "empty hub",
			setup:       func(h *Hub) {},
			wantRooms:   0,
			wantClients: 0,
		},
		{
			name: "one room one client",
			setup: func(h *Hub) {
				h.Register(&mockConn{id: "c1", room: "r1"})
			},
			wantRooms:   1,
			wantClients: 1,
		},
		{
			name: "multiple rooms",
			setup: func(h *Hub) {
				h.Register(&mockConn{id: "c1", room: "r1"})
				h.Register(&mockConn{id: "c2", room: "r1"})
				h.Register(&mockConn{id: "c3", room: "r2"})
			},
			wantRooms:   2,
			wantClients: 3,
		},
		{
			name: "duplicate register",
			setup: func(h *Hub) {
				c := &mockConn{id: "c1", room: "r1"}
				h.Register(c)
				h.Register(c)
			},
			wantRooms:   1,
			wantClients: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)

			rooms, clients := h.Stats()

			assert.Equal(t, tt.wantRooms, rooms)
			assert.Equal(t, tt.wantClients, clients)
		})
	}
}

func TestHub_RoomCleanup(t *testing.T) {
	h := New()
	conn := &mockConn{id: "c1", room: "r1"}

	h.Register(conn)
	rooms, _ := h.Stats()
	require.Equal(t, 1, rooms)
	require.NotNil(t, h.Room("r1"))

	h.Unregister(conn)
	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
	assert.Nil(t, h.Room("r1"))

	h.Unregister(conn)
	rooms, _ = h.Stats()
	assert.Equal(t, 0, rooms)
}

func TestHub_FailedDeliveryDropsPeer(t *testing.T) {
	h := New()
	sender := &mockConn{id: "sender", room: "r1"}
	broken := &mockConn{id: "broken", room: "r1", sendErr: errors.New("queue full")}
	healthy := &mockConn{id: "healthy", room: "r1"}
	h.Register(sender)
	h.Register(broken)
	h.Register(healthy)

	h.Broadcast(sender, []byte("m"))

	assert.Len(t, healthy.getReceived(), 1)
	require.Eventually(t, broken.isClosed, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, clients := h.Stats()
		return clients == 2
	}, time.Second, 5*time.Millisecond)
	assert.False(t, healthy.isClosed())
}

func TestHub_ConcurrentMembership(t *testing.T) {
	h := New()
	sender := &mockConn{id: "sender", room: "r1"}
	h.Register(sender)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		c := &mockConn{id: fmt.Sprintf("c%d", i), room: "r1"}
		go func() {
			defer wg.Done()
			h.Register(c)
			h.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(sender, []byte("m"))
		}()
	}
	wg.Wait()

	rooms, clients := h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, clients)
	assert.Empty(t, sender.getReceived())
}

func TestHub_CloseAll(t *testing.T) {
	h := New()
	conns := []*mockConn{
		{id: "c1", room: "r1"},
		{id: "c2", room: "r1"},
		{id: "c3", room: "r2"},
	}
	for _, c := range conns {
		h.Register(c)
	}

	h.CloseAll()

	for _, c := range conns {
		assert.True(t, c.isClosed(), "conn %s", c.ID())
	}
}
