package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state"
)

// InMemoryManager keeps all connection, user and room state in process
// memory. It is the only structure shared across connections besides the
// rate-limit table, and is safe for concurrent use.
type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[rooms.ID]*state.Room

	mu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[rooms.ID]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(t state.Transport, ipAddr string) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: t,
		Rooms:     make(map[rooms.ID]struct{}),
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// already deregistered
		return nil
	}
	delete(m.conns, connID)

	// drop any memberships that were not explicitly left
	for roomID := range conn.Rooms {
		m.leaveLocked(conn, roomID)
	}

	if conn.User != nil {
		user := conn.User
		delete(user.Connections, connID)
		if len(user.Connections) == 0 {
			delete(m.users, user.ID)
		}
		m.logger.Debug("Detached connection from user",
			slog.String("connID", connID.String()),
			slog.String("userID", user.ID),
		)
	}
	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

// --- User Management ---

func (m *InMemoryManager) AssociateUser(connID uuid.UUID, userID string) (*state.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("cannot associate user with unknown connection")
	}
	if conn.User != nil {
		return nil, errors.New("connection already has a bound identity")
	}

	user, exists := m.users[userID]
	if !exists {
		user = &state.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[userID] = user
		m.logger.Debug("Created new user session", slog.String("userID", userID))
	}

	conn.User = user
	user.Connections[connID] = conn

	m.logger.Debug("Associated connection with user",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
	)
	return user, nil
}

func (m *InMemoryManager) FindUser(userID string) (*state.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	return user, ok
}

func (m *InMemoryManager) GetUserConnections(userID string) ([]state.Transport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}

	conns := make([]state.Transport, 0, len(user.Connections))
	for _, c := range user.Connections {
		conns = append(conns, c.Transport)
	}
	return conns, nil
}

func (m *InMemoryManager) GetAllUsers() ([]*state.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*state.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomID rooms.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot join room: connection not found")
	}
	if _, held := conn.Rooms[roomID]; held {
		return nil
	}

	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomID] = room
	}

	room.Members[connID] = conn
	conn.Rooms[roomID] = struct{}{}

	m.logger.Debug("Connection joined room",
		slog.String("connID", connID.String()),
		slog.String("roomID", roomID.String()),
	)
	return nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomID rooms.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		m.logger.Warn("failed to leave room: connection doesn't exist",
			slog.String("connID", connID.String()),
			slog.String("roomID", roomID.String()),
		)
		return false, nil
	}
	return m.leaveLocked(conn, roomID), nil
}

// leaveLocked reports whether the connection held the room.
func (m *InMemoryManager) leaveLocked(conn *state.Connection, roomID rooms.ID) bool {
	if _, held := conn.Rooms[roomID]; !held {
		return false
	}
	delete(conn.Rooms, roomID)

	room, ok := m.rooms[roomID]
	if !ok {
		return true
	}
	delete(room.Members, conn.ID)

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID.String()))
	}
	return true
}

func (m *InMemoryManager) RoomMembers(roomID rooms.ID) ([]*state.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, errors.New("room not found")
	}

	members := make([]*state.Connection, 0, len(room.Members))
	for _, c := range room.Members {
		members = append(members, c)
	}
	return members, nil
}

func (m *InMemoryManager) RoomsOf(connID uuid.UUID) ([]rooms.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("connection not found")
	}
	held := make([]rooms.ID, 0, len(conn.Rooms))
	for roomID := range conn.Rooms {
		held = append(held, roomID)
	}
	return held, nil
}

func (m *InMemoryManager) FindRoom(roomID rooms.ID) (*state.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}
