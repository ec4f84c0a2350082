package realtime

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state"
)

// send delivers one event to a single connection.
func send(logger *slog.Logger, conn *state.Connection, event string, payload any) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		logger.Error("Failed to encode outbound event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}
	conn.Transport.Send(msg)
}

// sendError delivers a scoped error event to the originating connection
// only. Errors are never multicast to a room.
func sendError(logger *slog.Logger, conn *state.Connection, errType, message string) {
	send(logger, conn, protocol.EventError, protocol.ErrorEvent{Type: errType, Message: message})
}

// broadcast fans an event out to every member of a room, skipping the
// connection identified by exclude (uuid.Nil excludes nobody). A missing
// room is a normal case: nobody is listening.
func broadcast(logger *slog.Logger, stateManager state.Manager, room rooms.ID, event string, payload any, exclude uuid.UUID) {
	members, err := stateManager.RoomMembers(room)
	if err != nil {
		logger.Debug("Could not resolve room to connections",
			slog.String("roomID", room.String()),
			slog.Any("error", err),
		)
		return
	}

	targets := lo.Filter(members, func(c *state.Connection, _ int) bool {
		return c.ID != exclude
	})
	if len(targets) == 0 {
		return
	}

	msg, err := protocol.Encode(event, payload)
	if err != nil {
		logger.Error("Failed to encode broadcast event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}
	for _, c := range targets {
		c.Transport.Send(msg)
	}

	logger.Debug("Broadcast to room",
		slog.String("roomID", room.String()),
		slog.String("event", event),
		slog.Int("connections", len(targets)),
	)
}
