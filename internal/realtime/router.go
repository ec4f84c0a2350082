package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/state"
)

// HandlerFunc processes one inbound event for an established connection.
type HandlerFunc func(ctx context.Context, conn *state.Connection, payload []byte)

// Router owns the inbound event vocabulary and routes each message to
// exactly one handler.
type Router struct {
	logger       *slog.Logger
	stateManager state.Manager
	handlers     map[string]HandlerFunc
}

func NewRouter(logger *slog.Logger, stateManager state.Manager) *Router {
	return &Router{
		logger:       logger.With(slog.String("component", "event_router")),
		stateManager: stateManager,
		handlers:     make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for an event name. Double registration is a
// programming error.
func (r *Router) Handle(event string, h HandlerFunc) {
	if _, exists := r.handlers[event]; exists {
		panic("event handler already registered: " + event)
	}
	r.handlers[event] = h
}

// HandleMessage is the transport-layer message callback. Messages from one
// connection arrive in order, so handlers for the same connection never
// overlap.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		r.logger.Warn("Failed to unmarshal client message",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		return
	}

	handler, ok := r.handlers[env.Event]
	if !ok {
		r.logger.Warn("Received unknown event",
			slog.String("event", env.Event),
			slog.String("connID", connID.String()),
		)
		return
	}

	conn, ok := r.stateManager.GetConnection(connID)
	if !ok {
		r.logger.Error("No connection profile for active connection",
			slog.String("connID", connID.String()),
		)
		return
	}

	r.logger.Debug("Dispatching event",
		slog.String("event", env.Event),
		slog.String("connID", connID.String()),
	)
	handler(ctx, conn, env.Payload)
}
