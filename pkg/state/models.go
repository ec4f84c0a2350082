package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/schoolpool/realtime/pkg/rooms"
)

// Transport is the send side of a live connection as the state layer sees
// it. *transport.Connection satisfies it; tests substitute a capture fake.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Connection is the state-layer record of a single transport session.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Transport
	// User is nil until the identity is bound; it never changes afterwards.
	User      *User
	Rooms     map[rooms.ID]struct{}
	CreatedAt time.Time
}

// UserID returns the bound identity id, or "" when unbound.
func (c *Connection) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// User aggregates every live connection of one authenticated identity.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

// Room is a broadcast group. Membership is per connection, so two
// connections of the same identity each hold their own membership.
type Room struct {
	ID      rooms.ID
	Members map[uuid.UUID]*Connection
}
