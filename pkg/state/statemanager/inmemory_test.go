package statemanager_test

import (
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolpool/realtime/pkg/logging"
	"github.com/schoolpool/realtime/pkg/rooms"
	"github.com/schoolpool/realtime/pkg/state/statemanager"
)

// --- Test Suite Setup ---

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(logging.Discard())
}

// fakeTransport satisfies state.Transport without a live socket.
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

// --- Connection and User Management Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	tr := newFakeTransport()

	stateConn, err := m.RegisterConnection(tr, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, tr.ID(), stateConn.ID)

	retrieved, found := m.GetConnection(tr.ID())
	require.True(t, found, "GetConnection failed to find registered connection")
	assert.Equal(t, tr.ID(), retrieved.ID)

	// double registration is rejected
	_, err = m.RegisterConnection(tr, "127.0.0.1")
	assert.Error(t, err)

	require.NoError(t, m.DeregisterConnection(tr.ID()))
	_, found = m.GetConnection(tr.ID())
	assert.False(t, found, "found connection after it should have been deregistered")

	// deregistering twice is a no-op
	assert.NoError(t, m.DeregisterConnection(tr.ID()))
}

func TestUserAssociation(t *testing.T) {
	m := newTestManager()
	userID := "user-1"
	tr1, tr2 := newFakeTransport(), newFakeTransport()

	m.RegisterConnection(tr1, "1.1.1.1")
	m.RegisterConnection(tr2, "2.2.2.2")

	user, err := m.AssociateUser(tr1.ID(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)

	// second connection of the same identity aggregates onto the same user
	_, err = m.AssociateUser(tr2.ID(), userID)
	require.NoError(t, err)

	conns, err := m.GetUserConnections(userID)
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	// the identity binding is immutable for the connection's life
	_, err = m.AssociateUser(tr1.ID(), "someone-else")
	assert.Error(t, err)

	// last connection gone removes the user record
	m.DeregisterConnection(tr1.ID())
	m.DeregisterConnection(tr2.ID())
	_, found := m.FindUser(userID)
	assert.False(t, found, "expected user record to be removed with its last connection")
}

func TestAssociateUserUnknownConnection(t *testing.T) {
	m := newTestManager()
	_, err := m.AssociateUser(uuid.New(), "user-1")
	assert.Error(t, err)
}

// --- Room Management Tests ---

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	tr1, tr2 := newFakeTransport(), newFakeTransport()
	m.RegisterConnection(tr1, "1.1.1.1")
	m.RegisterConnection(tr2, "2.2.2.2")
	m.AssociateUser(tr1.ID(), "user-room-1")
	m.AssociateUser(tr2.ID(), "user-room-2")

	room := rooms.Group("group-42")

	require.NoError(t, m.Join(tr1.ID(), room))
	require.NoError(t, m.Join(tr2.ID(), room))
	// joining a room already held is a no-op
	require.NoError(t, m.Join(tr1.ID(), room))

	members, err := m.RoomMembers(room)
	require.NoError(t, err)
	require.Len(t, members, 2)

	left, err := m.Leave(tr1.ID(), room)
	require.NoError(t, err)
	assert.True(t, left)

	members, err = m.RoomMembers(room)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "user-room-2", members[0].UserID())

	// empty room cleanup
	m.Leave(tr2.ID(), room)
	_, found := m.FindRoom(room)
	assert.False(t, found, "expected room to be deleted after last member left")
}

func TestLeaveWithoutMembershipReportsNoChange(t *testing.T) {
	m := newTestManager()
	tr := newFakeTransport()
	m.RegisterConnection(tr, "1.1.1.1")
	m.AssociateUser(tr.ID(), "user-1")

	left, err := m.Leave(tr.ID(), rooms.Group("never-joined"))
	require.NoError(t, err)
	assert.False(t, left, "leaving a room never held must report no change")

	// unknown connection behaves the same
	left, err = m.Leave(uuid.New(), rooms.Group("never-joined"))
	require.NoError(t, err)
	assert.False(t, left)
}

func TestRoomKindsAreDistinct(t *testing.T) {
	m := newTestManager()
	tr := newFakeTransport()
	m.RegisterConnection(tr, "1.1.1.1")
	m.AssociateUser(tr.ID(), "user-1")

	// same ref, different kinds: three separate rooms
	require.NoError(t, m.Join(tr.ID(), rooms.Group("g1")))
	require.NoError(t, m.Join(tr.ID(), rooms.GroupWeek("g1", "2026-W35")))
	require.NoError(t, m.Join(tr.ID(), rooms.Personal("user-1")))

	held, err := m.RoomsOf(tr.ID())
	require.NoError(t, err)
	assert.Len(t, held, 3)
}

func TestDeregisterLeavesHeldRooms(t *testing.T) {
	m := newTestManager()
	tr1, tr2 := newFakeTransport(), newFakeTransport()
	m.RegisterConnection(tr1, "1.1.1.1")
	m.RegisterConnection(tr2, "2.2.2.2")
	m.AssociateUser(tr1.ID(), "user-a")
	m.AssociateUser(tr2.ID(), "user-b")

	room := rooms.Group("g-cleanup")
	m.Join(tr1.ID(), room)
	m.Join(tr2.ID(), room)

	require.NoError(t, m.DeregisterConnection(tr1.ID()))

	members, err := m.RoomMembers(room)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "user-b", members[0].UserID())
}

func TestRoomMembersUnknownRoom(t *testing.T) {
	m := newTestManager()
	_, err := m.RoomMembers(rooms.Group("nope"))
	assert.Error(t, err)
}

// --- Concurrency smoke test ---

func TestConcurrentJoinLeave(t *testing.T) {
	m := newTestManager()
	const workers = 50
	var wg sync.WaitGroup

	trs := make([]*fakeTransport, workers)
	for i := range trs {
		trs[i] = newFakeTransport()
		_, err := m.RegisterConnection(trs[i], "10.0.0.1")
		require.NoError(t, err)
		_, err = m.AssociateUser(trs[i].ID(), "user-"+strconv.Itoa(i%10))
		require.NoError(t, err)
	}

	room := rooms.Group("contended")
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Join(trs[i].ID(), room)
			m.RoomMembers(room)
			m.Leave(trs[i].ID(), room)
		}(i)
	}
	wg.Wait()

	_, found := m.FindRoom(room)
	assert.False(t, found, "expected contended room to be empty and removed")
}
