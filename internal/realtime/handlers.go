package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/schoolpool/realtime/internal/collab"
	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state"
)

// Handlers implements the inbound event vocabulary. Every state-changing
// handler follows the same shape: validate authentication, validate
// authorization against the access collaborator, perform the effect, then
// confirm or broadcast.
type Handlers struct {
	logger       *slog.Logger
	stateManager state.Manager
	access       collab.AccessService
	notifier     *Notifier

	now func() time.Time
}

func NewHandlers(logger *slog.Logger, stateManager state.Manager, access collab.AccessService, notifier *Notifier) *Handlers {
	return &Handlers{
		logger:       logger.With(slog.String("component", "event_handlers")),
		stateManager: stateManager,
		access:       access,
		notifier:     notifier,
		now:          time.Now,
	}
}

// Register binds every inbound event to its handler.
func (h *Handlers) Register(r *Router) {
	r.Handle(protocol.EventGroupJoin, h.handleGroupJoin)
	r.Handle(protocol.EventGroupLeave, h.handleGroupLeave)
	r.Handle(protocol.EventScheduleSlotJoin, h.handleSlotJoin)
	r.Handle(protocol.EventScheduleSlotLeave, h.handleSlotLeave)
	r.Handle(protocol.EventScheduleSubscribe, h.handleScheduleSubscribe)
	r.Handle(protocol.EventScheduleUnsubscribe, h.handleScheduleUnsubscribe)
	r.Handle(protocol.EventScheduleSlotUpdated, h.handleSlotUpdated)
	r.Handle(protocol.EventTypingStart, h.handleTypingStart)
	r.Handle(protocol.EventTypingStop, h.handleTypingStop)
	r.Handle(protocol.EventHeartbeat, h.handleHeartbeat)
}

// requireUser enforces the bound-identity invariant on gated handlers. An
// unbound identity should not occur post-handshake but is checked
// defensively on every gated action.
func (h *Handlers) requireUser(conn *state.Connection) (string, bool) {
	if conn.User == nil {
		sendError(h.logger, conn, protocol.ErrAuthentication, "Authentication required")
		return "", false
	}
	return conn.User.ID, true
}

// --- Group rooms ---

func (h *Handlers) handleGroupJoin(ctx context.Context, conn *state.Connection, payload []byte) {
	userID, ok := h.requireUser(conn)
	if !ok {
		return
	}
	groupID := gjson.GetBytes(payload, "groupId").String()
	if groupID == "" {
		sendError(h.logger, conn, protocol.ErrUnknown, "groupId is required")
		return
	}

	if !h.authorizeGroup(ctx, conn, userID, groupID, "Not authorized to access this group") {
		return
	}

	room := rooms.Group(groupID)
	if err := h.stateManager.Join(conn.ID, room); err != nil {
		h.logger.Error("Group join failed", slog.String("roomID", room.String()), slog.Any("error", err))
		sendError(h.logger, conn, protocol.ErrUnknown, "Failed to join group")
		return
	}
	broadcast(h.logger, h.stateManager, room, protocol.EventUserJoined,
		protocol.Presence{UserID: userID, GroupID: groupID}, conn.ID)
}

func (h *Handlers) handleGroupLeave(_ context.Context, conn *state.Connection, payload []byte) {
	userID, ok := h.requireUser(conn)
	if !ok {
		return
	}
	groupID := gjson.GetBytes(payload, "groupId").String()
	if groupID == "" {
		return
	}

	room := rooms.Group(groupID)
	left, err := h.stateManager.Leave(conn.ID, room)
	if err != nil {
		h.logger.Warn("Group leave failed", slog.String("roomID", room.String()), slog.Any("error", err))
		return
	}
	if !left {
		// never a member, so there is no departure to announce
		return
	}
	broadcast(h.logger, h.stateManager, room, protocol.EventUserLeft,
		protocol.Presence{UserID: userID, GroupID: groupID}, conn.ID)
}

// --- Schedule-slot rooms (field-level collaborative presence) ---

func (h *Handlers) handleSlotJoin(ctx context.Context, conn *state.Connection, payload []byte) {
	userID, ok := h.requireUser(conn)
	if !ok {
		return
	}
	slotID := gjson.GetBytes(payload, "scheduleSlotId").String()
	if slotID == "" {
		sendError(h.logger, conn, protocol.ErrUnknown, "scheduleSlotId is required")
		return
	}

	if !h.authorizeSlot(ctx, conn, userID, slotID) {
		return
	}

	if err := h.stateManager.Join(conn.ID, rooms.ScheduleSlot(slotID)); err != nil {
		h.logger.Error("Slot join failed", slog.String("slotID", slotID), slog.Any("error", err))
		sendError(h.logger, conn, protocol.ErrUnknown, "Failed to join schedule slot")
	}
}

func (h *Handlers) handleSlotLeave(_ context.Context, conn *state.Connection, payload []byte) {
	if _, ok := h.requireUser(conn); !ok {
		return
	}
	slotID := gjson.GetBytes(payload, "scheduleSlotId").String()
	if slotID == "" {
		return
	}
	if _, err := h.stateManager.Leave(conn.ID, rooms.ScheduleSlot(slotID)); err != nil {
		h.logger.Warn("Slot leave failed", slog.String("slotID", slotID), slog.Any("error", err))
	}
}

// --- Week-scoped schedule subscriptions ---

func (h *Handlers) handleScheduleSubscribe(ctx context.Context, conn *state.Connection, payload []byte) {
	userID, ok := h.requireUser(conn)
	if !ok {
		return
	}
	groupID := gjson.GetBytes(payload, "groupId").String()
	week := gjson.GetBytes(payload, "week").String()
	if groupID == "" || week == "" {
		sendError(h.logger, conn, protocol.ErrUnknown, "groupId and week are required")
		return
	}

	if !h.authorizeGroup(ctx, conn, userID, groupID, "Not authorized to access this group schedule") {
		return
	}

	if err := h.stateManager.Join(conn.ID, rooms.GroupWeek(groupID, week)); err != nil {
		h.logger.Error("Schedule subscribe failed",
			slog.String("groupID", groupID),
			slog.String("week", week),
			slog.Any("error", err),
		)
		sendError(h.logger, conn, protocol.ErrUnknown, "Failed to subscribe to group schedule")
	}
}

func (h *Handlers) handleScheduleUnsubscribe(_ context.Context, conn *state.Connection, payload []byte) {
	if _, ok := h.requireUser(conn); !ok {
		return
	}
	groupID := gjson.GetBytes(payload, "groupId").String()
	week := gjson.GetBytes(payload, "week").String()
	if groupID == "" || week == "" {
		return
	}
	if _, err := h.stateManager.Leave(conn.ID, rooms.GroupWeek(groupID, week)); err != nil {
		h.logger.Warn("Schedule unsubscribe failed", slog.String("groupID", groupID), slog.Any("error", err))
	}
}

// --- Typing indicators ---

func (h *Handlers) handleTypingStart(ctx context.Context, conn *state.Connection, payload []byte) {
	h.handleTyping(ctx, conn, payload, protocol.EventUserTyping)
}

func (h *Handlers) handleTypingStop(ctx context.Context, conn *state.Connection, payload []byte) {
	h.handleTyping(ctx, conn, payload, protocol.EventUserStoppedTyping)
}

// handleTyping broadcasts an ephemeral typing signal to the other members
// of the slot room. Nothing is persisted and no timeout is enforced; the
// client is trusted to send a matching stop.
func (h *Handlers) handleTyping(ctx context.Context, conn *state.Connection, payload []byte, event string) {
	userID, ok := h.requireUser(conn)
	if !ok {
		return
	}
	slotID := gjson.GetBytes(payload, "scheduleSlotId").String()
	if slotID == "" {
		return
	}

	if !h.authorizeSlot(ctx, conn, userID, slotID) {
		return
	}

	broadcast(h.logger, h.stateManager, rooms.ScheduleSlot(slotID), event,
		protocol.Typing{UserID: userID, ScheduleSlotID: slotID}, conn.ID)
}

// --- Schedule-slot mutations ---

func (h *Handlers) handleSlotUpdated(ctx context.Context, conn *state.Connection, payload []byte) {
	userID, ok := h.requireUser(conn)
	if !ok {
		return
	}

	mut := SlotMutation{
		ScheduleSlotID: gjson.GetBytes(payload, "scheduleSlotId").String(),
		VehicleID:      gjson.GetBytes(payload, "vehicleId").String(),
		DriverID:       gjson.GetBytes(payload, "driverId").String(),
		Action:         gjson.GetBytes(payload, "action").String(),
	}
	if mut.ScheduleSlotID == "" {
		sendError(h.logger, conn, protocol.ErrUnknown, "scheduleSlotId is required")
		return
	}

	if !h.authorizeSlot(ctx, conn, userID, mut.ScheduleSlotID) {
		return
	}

	slot := h.notifier.ApplySlotMutation(ctx, conn, mut)
	if slot == nil {
		// failure already reported to the originator
		return
	}
	h.notifier.CheckCapacity(slot)
	for _, conflict := range slot.Conflicts {
		h.notifier.NotifyConflict(conflict)
	}
}

// --- Heartbeat ---

// handleHeartbeat is a stateless echo. It does not refresh any session TTL.
func (h *Handlers) handleHeartbeat(_ context.Context, conn *state.Connection, _ []byte) {
	send(h.logger, conn, protocol.EventHeartbeatAck,
		protocol.HeartbeatAck{Timestamp: h.now().UnixMilli()})
}

// --- Authorization gate ---

// authorizeGroup re-checks group access at the moment of the request. A
// collaborator failure fails closed.
func (h *Handlers) authorizeGroup(ctx context.Context, conn *state.Connection, userID, groupID, denyMessage string) bool {
	allowed, err := h.access.CanUserAccessGroup(ctx, userID, groupID)
	if err != nil {
		h.logger.Error("Group access check failed",
			slog.String("userID", userID),
			slog.String("groupID", groupID),
			slog.Any("error", err),
		)
		allowed = false
	}
	if !allowed {
		sendError(h.logger, conn, protocol.ErrAuthorization, denyMessage)
		return false
	}
	return true
}

func (h *Handlers) authorizeSlot(ctx context.Context, conn *state.Connection, userID, slotID string) bool {
	allowed, err := h.access.CanUserAccessScheduleSlot(ctx, userID, slotID)
	if err != nil {
		h.logger.Error("Slot access check failed",
			slog.String("userID", userID),
			slog.String("slotID", slotID),
			slog.Any("error", err),
		)
		allowed = false
	}
	if !allowed {
		sendError(h.logger, conn, protocol.ErrAuthorization, "Not authorized to access this schedule slot")
		return false
	}
	return true
}
