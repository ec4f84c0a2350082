package state

import (
	"github.com/google/uuid"

	"github.com/schoolpool/realtime/pkg/rooms"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(t Transport, ipAddr string) (*Connection, error)
	// DeregisterConnection detaches the connection from its user and from
	// every room it still holds. Idempotent.
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)

	// --- User Management ---
	// AssociateUser links a connection to a user, creating the user if they
	// don't exist. The binding is permanent for the connection's life.
	AssociateUser(connID uuid.UUID, userID string) (*User, error)
	FindUser(userID string) (*User, bool)
	GetUserConnections(userID string) ([]Transport, error)
	GetAllUsers() ([]*User, error)

	// --- Room & Membership Management ---
	// Join adds a connection to a room, creating the room if it doesn't
	// exist. Joining a room already held is a no-op.
	Join(connID uuid.UUID, room rooms.ID) error
	// Leave reports whether the connection actually held the room, so
	// callers can tie presence notices to real membership changes.
	Leave(connID uuid.UUID, room rooms.ID) (bool, error)
	RoomMembers(room rooms.ID) ([]*Connection, error)
	// RoomsOf returns every room the connection currently holds.
	RoomsOf(connID uuid.UUID) ([]rooms.ID, error)
	FindRoom(room rooms.ID) (*Room, bool)
}
