package domain

// Connection is one client link held by the relay. ID is unique per
// connection; Room is fixed for the connection's lifetime.
type Connection interface {
	ID() string
	Room() string
	Send(data []byte) error
	Close() error
}

type Broadcaster interface {
	Register(conn Connection)
	Unregister(conn Connection)
	Broadcast(sender Connection, data []byte)
	Stats() (rooms, clients int)
}

// Lifecycle receives the events of every relayed connection. OnMessage
// calls for one connection are made sequentially, in arrival order.
type Lifecycle interface {
	OnConnect(conn Connection)
	OnMessage(conn Connection, data []byte)
	OnDisconnect(conn Connection)
}
