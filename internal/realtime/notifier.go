package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/schoolpool/realtime/internal/collab"
	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state"
)

// Notifier computes derived state after schedule mutations and fans the
// resulting events out to the affected rooms.
type Notifier struct {
	logger       *slog.Logger
	stateManager state.Manager
	schedule     collab.ScheduleService
}

func NewNotifier(logger *slog.Logger, stateManager state.Manager, schedule collab.ScheduleService) *Notifier {
	return &Notifier{
		logger:       logger.With(slog.String("component", "notifier")),
		stateManager: stateManager,
		schedule:     schedule,
	}
}

// Mutation actions carried by the schedule:slot:updated inbound event. An
// empty action defaults to assign.
const (
	ActionAssignVehicle = "assign"
	ActionRemoveVehicle = "remove"
	ActionUpdateDriver  = "update_driver"
)

// SlotMutation is one requested change to a schedule slot.
type SlotMutation struct {
	ScheduleSlotID string
	VehicleID      string
	DriverID       string
	Action         string
}

// SlotUpdate is the broadcast payload: the full fresh slot state tagged
// with the acting identity.
type SlotUpdate struct {
	collab.ScheduleSlot
	UpdatedBy string `json:"updatedBy"`
}

// ApplySlotMutation performs the mutation against the scheduling
// collaborator, re-fetches the slot and broadcasts the fresh state to the
// slot's owning group room. On any failure only the originating connection
// is informed and nil is returned; the group never observes the error.
//
// The broadcast payload is the most recent state at re-fetch time, not a
// snapshot of this handler's own write: a concurrent mutation may land
// between the write and the read.
func (n *Notifier) ApplySlotMutation(ctx context.Context, conn *state.Connection, mut SlotMutation) *collab.ScheduleSlot {
	userID := conn.UserID()

	if err := n.applyMutation(ctx, userID, mut); err != nil {
		n.logger.Warn("Slot mutation failed",
			slog.String("slotID", mut.ScheduleSlotID),
			slog.String("action", mut.Action),
			slog.Any("error", err),
		)
		sendError(n.logger, conn, collab.ClassifyError(err), err.Error())
		return nil
	}

	slot, err := n.schedule.GetScheduleSlotDetails(ctx, mut.ScheduleSlotID)
	if err != nil {
		n.logger.Error("Slot re-fetch failed",
			slog.String("slotID", mut.ScheduleSlotID),
			slog.Any("error", err),
		)
		sendError(n.logger, conn, collab.ClassifyError(err), err.Error())
		return nil
	}
	if slot == nil {
		sendError(n.logger, conn, protocol.ErrSlotNotFound, "Schedule slot not found")
		return nil
	}

	broadcast(n.logger, n.stateManager, rooms.Group(slot.GroupID), protocol.EventSlotUpdate,
		SlotUpdate{ScheduleSlot: *slot, UpdatedBy: userID}, uuid.Nil)
	return slot
}

func (n *Notifier) applyMutation(ctx context.Context, userID string, mut SlotMutation) error {
	switch mut.Action {
	case ActionAssignVehicle, "":
		return n.schedule.AssignVehicleToSlot(ctx, mut.ScheduleSlotID, mut.VehicleID, userID)
	case ActionRemoveVehicle:
		return n.schedule.RemoveVehicleFromSlot(ctx, mut.ScheduleSlotID, mut.VehicleID, userID)
	case ActionUpdateDriver:
		return n.schedule.UpdateVehicleDriver(ctx, mut.ScheduleSlotID, mut.VehicleID, mut.DriverID, userID)
	default:
		return fmt.Errorf("unknown mutation action %q", mut.Action)
	}
}

// CheckCapacity is a point-in-time check of a slot's remaining seats. It
// must be invoked by the caller after a relevant mutation; nothing watches
// seat counts continuously.
func (n *Notifier) CheckCapacity(slot *collab.ScheduleSlot) {
	groupRoom := rooms.Group(slot.GroupID)
	switch {
	case slot.AvailableSeats == 0:
		broadcast(n.logger, n.stateManager, groupRoom, protocol.EventCapacityFull, protocol.CapacityFull{
			ScheduleSlotID: slot.ID,
			Message:        "This schedule slot is now full",
		}, uuid.Nil)
	case slot.AvailableSeats == 1:
		broadcast(n.logger, n.stateManager, groupRoom, protocol.EventCapacityWarning, protocol.CapacityWarning{
			ScheduleSlotID: slot.ID,
			AvailableSeats: slot.AvailableSeats,
			Message:        "Only 1 seat remaining for this schedule slot",
		}, uuid.Nil)
	}
}

// NotifyConflict delivers a conflict notice to each affected identity's
// personal room individually. Conflicts are user-specific concerns and are
// never sent group-wide.
func (n *Notifier) NotifyConflict(conflict collab.Conflict) {
	payload := protocol.ConflictDetected{
		ScheduleSlotID: conflict.ScheduleSlotID,
		ConflictType:   conflict.Type,
		AffectedUsers:  conflict.AffectedUserIDs,
		Message:        conflict.Message,
	}
	for _, userID := range conflict.AffectedUserIDs {
		broadcast(n.logger, n.stateManager, rooms.Personal(userID),
			protocol.EventConflictDetected, payload, uuid.Nil)
	}
}

// NotifyUser sends a generic notification to every connection in the
// user's personal room.
func (n *Notifier) NotifyUser(userID, notificationType, message string) {
	broadcast(n.logger, n.stateManager, rooms.Personal(userID), protocol.EventNotification,
		protocol.Notification{Type: notificationType, Message: message}, uuid.Nil)
}
