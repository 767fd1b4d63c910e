// Package testhelpers provides common utilities for exercising the relay
// server over real HTTP and WebSocket connections in tests.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/identity"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// TestSecret signs the tokens produced by IssueToken.
var TestSecret = []byte("test-secret")

// Tokens returns the token service matching TestSecret.
func Tokens() *identity.JWTService {
	return identity.NewJWTService(TestSecret, time.Hour)
}

// IssueToken signs a token for userID with TestSecret.
func IssueToken(t *testing.T, userID, name string) string {
	t.Helper()
	token, _, err := Tokens().Issue(identity.Identity{UserID: userID, DisplayName: name})
	require.NoError(t, err)
	return token
}

// WebSocketURL converts an httptest server URL into its /ws endpoint.
func WebSocketURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

// ConnectWebSocket dials url with the test origin and, when token is not
// empty, the token cookie.
func ConnectWebSocket(url, token string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)
	if token != "" {
		headers.Set("Cookie", identity.DefaultCookieName+"="+token)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect is ConnectWebSocket that fails the test on error and closes
// the connection on cleanup.
func MustConnect(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadJSON reads one JSON frame within timeout.
func ReadJSON(conn *websocket.Conn, timeout time.Duration) (map[string]interface{}, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var message map[string]interface{}
	err := conn.ReadJSON(&message)
	return message, err
}

// ReadUntil reads frames until match returns true or timeout elapses.
func ReadUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg, err := ReadJSON(conn, time.Until(deadline))
		if err != nil {
			t.Fatalf("no matching frame before timeout: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatal("no matching frame before timeout")
	return nil
}

// IsRoster reports whether frame is a roster snapshot.
func IsRoster(frame map[string]interface{}) bool {
	_, ok := frame["online"]
	return ok
}

// OnlineUserIDs extracts the user ids of a roster frame.
func OnlineUserIDs(frame map[string]interface{}) []string {
	list, _ := frame["online"].([]interface{})
	ids := make([]string, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]interface{}); ok {
			if id, ok := m["userId"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
