package realtime_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/schoolpool/realtime/internal/collab"
	"github.com/schoolpool/realtime/internal/realtime"
	"github.com/schoolpool/realtime/pkg/logging"
	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/state"
	"github.com/schoolpool/realtime/pkg/state/statemanager"
)

// --- Fakes ---

// fakeTransport records everything sent to one connection.
type fakeTransport struct {
	id     uuid.UUID
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{id: uuid.New()}
}

func (f *fakeTransport) ID() uuid.UUID { return f.id }

func (f *fakeTransport) Send(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeTransport) Close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// events decodes every recorded envelope.
func (f *fakeTransport) events(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(f.sent))
	for _, raw := range f.sent {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

// eventsNamed returns the payloads of every recorded event with that name.
func (f *fakeTransport) eventsNamed(t *testing.T, name string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range f.events(t) {
		if env.Event == name {
			out = append(out, env.Payload)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// fakeAccess answers authorization questions from static maps.
type fakeAccess struct {
	groups    map[string][]string // userID -> accessible group ids
	slots     map[string][]string // userID -> accessible slot ids
	groupsErr error
}

func (f *fakeAccess) GetUserAccessibleGroupIDs(_ context.Context, userID string) ([]string, error) {
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return f.groups[userID], nil
}

func (f *fakeAccess) CanUserAccessGroup(_ context.Context, userID, groupID string) (bool, error) {
	return lo.Contains(f.groups[userID], groupID), nil
}

func (f *fakeAccess) CanUserAccessScheduleSlot(_ context.Context, userID, slotID string) (bool, error) {
	return lo.Contains(f.slots[userID], slotID), nil
}

// fakeSchedule records mutation calls and serves a canned slot.
type fakeSchedule struct {
	mu sync.Mutex

	slot     *collab.ScheduleSlot
	fetchErr error

	assignErr, removeErr, driverErr error

	assignCalls, removeCalls, driverCalls, fetchCalls int
}

func (f *fakeSchedule) AssignVehicleToSlot(_ context.Context, slotID, vehicleID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	return f.assignErr
}

func (f *fakeSchedule) RemoveVehicleFromSlot(_ context.Context, slotID, vehicleID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	return f.removeErr
}

func (f *fakeSchedule) UpdateVehicleDriver(_ context.Context, slotID, vehicleID, driverID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driverCalls++
	return f.driverErr
}

func (f *fakeSchedule) GetScheduleSlotDetails(_ context.Context, slotID string) (*collab.ScheduleSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.slot, f.fetchErr
}

// --- Harness ---

type harness struct {
	t            *testing.T
	stateManager *statemanager.InMemoryManager
	access       *fakeAccess
	schedule     *fakeSchedule
	notifier     *realtime.Notifier
	handlers     *realtime.Handlers
	router       *realtime.Router
}

func newHarness(t *testing.T) *harness {
	logger := logging.Discard()
	stateManager := statemanager.NewInMemoryManager(logger)
	access := &fakeAccess{
		groups: make(map[string][]string),
		slots:  make(map[string][]string),
	}
	schedule := &fakeSchedule{}
	notifier := realtime.NewNotifier(logger, stateManager, schedule)
	handlers := realtime.NewHandlers(logger, stateManager, access, notifier)
	router := realtime.NewRouter(logger, stateManager)
	handlers.Register(router)

	return &harness{
		t:            t,
		stateManager: stateManager,
		access:       access,
		schedule:     schedule,
		notifier:     notifier,
		handlers:     handlers,
		router:       router,
	}
}

// connect registers, binds and room-sets-up one client connection.
func (h *harness) connect(userID string) (*fakeTransport, *state.Connection) {
	h.t.Helper()
	tr := newFakeTransport()
	stateConn, err := h.stateManager.RegisterConnection(tr, "127.0.0.1")
	require.NoError(h.t, err)
	_, err = h.stateManager.AssociateUser(tr.ID(), userID)
	require.NoError(h.t, err)
	require.NoError(h.t, h.handlers.BindConnection(context.Background(), stateConn))
	return tr, stateConn
}

// connectUnbound registers a connection without an identity.
func (h *harness) connectUnbound() (*fakeTransport, *state.Connection) {
	h.t.Helper()
	tr := newFakeTransport()
	stateConn, err := h.stateManager.RegisterConnection(tr, "127.0.0.1")
	require.NoError(h.t, err)
	return tr, stateConn
}

// dispatch feeds one inbound event through the router as the transport
// layer would.
func (h *harness) dispatch(connID uuid.UUID, event string, payload any) {
	h.t.Helper()
	msg, err := protocol.Encode(event, payload)
	require.NoError(h.t, err)
	h.router.HandleMessage(context.Background(), connID, msg)
}
