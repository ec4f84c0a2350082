package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/schoolpool/realtime/internal/collab"
	"github.com/schoolpool/realtime/internal/realtime"
	"github.com/schoolpool/realtime/internal/server/middleware"
	"github.com/schoolpool/realtime/pkg/config"
	"github.com/schoolpool/realtime/pkg/ratelimit"
	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state"
	"github.com/schoolpool/realtime/pkg/state/statemanager"
	"github.com/schoolpool/realtime/pkg/transport"
)

// App owns process-wide setup and teardown: the listener, the middleware
// chain, the per-connection wiring and the rate-limit table lifecycle.
type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *realtime.Router
	handlers     *realtime.Handlers
	notifier     *realtime.Notifier
	rateTable    *ratelimit.Table
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, access collab.AccessService, schedule collab.ScheduleService) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	notifier := realtime.NewNotifier(logger, stateManager, schedule)
	handlers := realtime.NewHandlers(logger, stateManager, access, notifier)
	eventRouter := realtime.NewRouter(logger, stateManager)
	handlers.Register(eventRouter)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		eventRouter:  eventRouter,
		handlers:     handlers,
		notifier:     notifier,
		rateTable:    ratelimit.New(cfg.Server.RateLimit.MaxPerWindow, cfg.Server.RateLimit.Window),
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	// Fixed order: metadata first, then logging, then admission control by
	// source address, then credential validation. Rate limiting runs before
	// the authenticator so connection floods never reach token parsing.
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewRateLimiter(app.logger, app.rateTable),
			middleware.NewAuthMiddleware(app.logger, cfg.Server.Auth.JWTSecret),
		),
	)

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Handler exposes the root HTTP handler, including the full middleware
// chain. Used to serve the app from a test listener.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.UserID == "" {
		// auth middleware guarantees a bound principal; defensive only
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.Server.AllowedOrigins,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)
	stateConn, err := a.stateManager.RegisterConnection(conn, reqMeta.IP)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}
	// bind the authenticated identity to the registered connection
	if _, err := a.stateManager.AssociateUser(stateConn.ID, reqMeta.UserID); err != nil {
		connLogger.Error("Failed to associate user with connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Debug("Connection closed, running disconnect cleanup", slog.String("connID", id.String()))
		a.handlers.HandleDisconnect(id)
	})
	// Pumps start before the initial room setup so a setup failure can
	// still deliver its error event ahead of the close frame.
	conn.Run()

	// All-or-nothing initial room setup. A collaborator failure here tears
	// the connection down instead of leaving it half-joined.
	if err := a.handlers.BindConnection(r.Context(), stateConn); err != nil {
		connLogger.Error("Failed to establish connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established")
	<-conn.Done()
}

// DisconnectUser force-closes every connection belonging to an identity,
// e.g. on administrative revocation. A notice is delivered first so clients
// can distinguish revocation from a network drop.
func (a *App) DisconnectUser(userID, reason string) int {
	a.notifier.NotifyUser(userID, "session_revoked", reason)

	members, err := a.stateManager.RoomMembers(rooms.Personal(userID))
	if err != nil {
		// no personal room means no live connections
		return 0
	}
	for _, member := range members {
		member.Transport.Close(fmt.Errorf("connection revoked: %s", reason))
	}
	return len(members)
}

// Shutdown runs the graceful teardown sequence: stop accepting, close every
// live connection, wait for the disconnect handlers, clear the rate-limit
// table. Room state is not persisted; reconnecting clients rebuild it.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	allUsers, err := a.stateManager.GetAllUsers()
	if err != nil {
		a.logger.Error(err.Error())
		return err
	}
	for _, user := range allUsers {
		for _, conn := range user.Connections {
			conn.Transport.Close(errors.New("graceful shutdown"))
		}
	}

	// wait for all connection goroutines to finish their cleanup
	a.wg.Wait()
	a.rateTable.Clear()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
