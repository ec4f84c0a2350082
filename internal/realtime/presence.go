package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state"
)

// BindConnection computes and joins the full initial room set for a newly
// authenticated connection (personal room plus every accessible group
// room), then signals readiness with the connected event. Setup is
// all-or-nothing: any failure reports CONNECTION_ERROR to the client and
// returns an error so the caller tears the connection down.
func (h *Handlers) BindConnection(ctx context.Context, conn *state.Connection) error {
	userID := conn.UserID()
	if userID == "" {
		sendError(h.logger, conn, protocol.ErrConnection, "Failed to establish connection")
		return fmt.Errorf("connection %s has no bound identity", conn.ID)
	}

	groupIDs, err := h.access.GetUserAccessibleGroupIDs(ctx, userID)
	if err != nil {
		sendError(h.logger, conn, protocol.ErrConnection, "Failed to establish connection")
		return fmt.Errorf("failed to compute initial rooms for user %s: %w", userID, err)
	}
	// An identity with zero groups still connects successfully; lo.Uniq
	// also normalises a nil collaborator result into an empty list.
	groupIDs = lo.Uniq(groupIDs)

	if err := h.stateManager.Join(conn.ID, rooms.Personal(userID)); err != nil {
		sendError(h.logger, conn, protocol.ErrConnection, "Failed to establish connection")
		return fmt.Errorf("failed to join personal room: %w", err)
	}
	for _, groupID := range groupIDs {
		if err := h.stateManager.Join(conn.ID, rooms.Group(groupID)); err != nil {
			sendError(h.logger, conn, protocol.ErrConnection, "Failed to establish connection")
			return fmt.Errorf("failed to join group room %s: %w", groupID, err)
		}
	}

	send(h.logger, conn, protocol.EventConnected, protocol.Connected{
		UserID:    userID,
		Groups:    groupIDs,
		Timestamp: h.now().UnixMilli(),
	})

	h.logger.Info("Connection setup complete",
		slog.String("connID", conn.ID.String()),
		slog.String("userID", userID),
		slog.Int("groups", len(groupIDs)),
	)
	return nil
}

// HandleDisconnect removes the connection from every room it held and
// broadcasts a presence notice to the remaining members of each group
// room. Personal, slot and week rooms never emit presence events.
func (h *Handlers) HandleDisconnect(connID uuid.UUID) {
	conn, ok := h.stateManager.GetConnection(connID)
	if !ok {
		return
	}
	userID := conn.UserID()

	held, err := h.stateManager.RoomsOf(connID)
	if err != nil {
		h.logger.Warn("Could not list rooms for disconnecting connection",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}

	// Deregister first so the leaver is excluded from its own notices.
	if err := h.stateManager.DeregisterConnection(connID); err != nil {
		h.logger.Error("Failed to deregister connection",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}

	for _, room := range held {
		if room.Kind != rooms.KindGroup {
			continue
		}
		broadcast(h.logger, h.stateManager, room, protocol.EventUserLeft,
			protocol.Presence{UserID: userID, GroupID: room.Ref}, uuid.Nil)
	}

	h.logger.Debug("Disconnect cleanup complete",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
	)
}
