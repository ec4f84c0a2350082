package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolpool/realtime/internal/collab"
	"github.com/schoolpool/realtime/internal/server"
	"github.com/schoolpool/realtime/pkg/config"
	"github.com/schoolpool/realtime/pkg/logging"
	"github.com/schoolpool/realtime/pkg/protocol"
)

const testSecret = "server-test-secret"

type stubAccess struct {
	groups    []string
	groupsErr error
}

func (s *stubAccess) GetUserAccessibleGroupIDs(context.Context, string) ([]string, error) {
	return s.groups, s.groupsErr
}

func (s *stubAccess) CanUserAccessGroup(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubAccess) CanUserAccessScheduleSlot(context.Context, string, string) (bool, error) {
	return false, nil
}

type stubSchedule struct{}

func (stubSchedule) AssignVehicleToSlot(context.Context, string, string, string) error { return nil }

func (stubSchedule) RemoveVehicleFromSlot(context.Context, string, string, string) error { return nil }

func (stubSchedule) UpdateVehicleDriver(context.Context, string, string, string, string) error {
	return nil
}

func (stubSchedule) GetScheduleSlotDetails(context.Context, string) (*collab.ScheduleSlot, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:   ":0",
			Auth:      config.AuthConfig{JWTSecret: testSecret},
			RateLimit: config.RateLimitConfig{Window: time.Minute, MaxPerWindow: 100},
		},
		Transport: config.TransportConfig{ReadTimeout: time.Minute},
	}
}

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dial(t *testing.T, srv *httptest.Server, sub string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signedToken(t, sub)
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	return c
}

func readEnvelope(t *testing.T, c *websocket.Conn) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// A failed room setup must deliver its fatal error event over the wire
// before the connection is torn down, not just a clean close frame.
func TestFailedSetupDeliversErrorBeforeClose(t *testing.T) {
	access := &stubAccess{groupsErr: errors.New("authorization service unavailable")}
	app := server.NewApp(logging.Discard(), context.Background(), testConfig(), access, stubSchedule{})
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	c := dial(t, srv, "family-1")
	defer c.Close(websocket.StatusNormalClosure, "")

	env := readEnvelope(t, c)
	require.Equal(t, protocol.EventError, env.Event, "the error event must arrive before the close frame")
	var ev protocol.ErrorEvent
	require.NoError(t, json.Unmarshal(env.Payload, &ev))
	assert.Equal(t, protocol.ErrConnection, ev.Type)
	assert.Equal(t, "Failed to establish connection", ev.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Error(t, err, "the connection must be closed after the error event")
}

func TestDisconnectUserNotifiesThenCloses(t *testing.T) {
	app := server.NewApp(logging.Discard(), context.Background(), testConfig(), &stubAccess{}, stubSchedule{})
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	c := dial(t, srv, "family-2")
	defer c.Close(websocket.StatusNormalClosure, "")

	env := readEnvelope(t, c)
	require.Equal(t, protocol.EventConnected, env.Event)

	closed := app.DisconnectUser("family-2", "revoked by an administrator")
	assert.Equal(t, 1, closed)

	env = readEnvelope(t, c)
	require.Equal(t, protocol.EventNotification, env.Event)
	var note protocol.Notification
	require.NoError(t, json.Unmarshal(env.Payload, &note))
	assert.Equal(t, "session_revoked", note.Type)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Error(t, err, "all of the identity's connections must be closed")

	assert.Equal(t, 0, app.DisconnectUser("family-3", "no such user"))
}
