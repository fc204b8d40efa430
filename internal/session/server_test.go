package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/landrop/landrop/internal/peer"
	"github.com/landrop/landrop/internal/protocol"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) *protocol.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg protocol.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestWebSocketSession(t *testing.T) {
	h, table, _ := newTestHub(t)
	srv := NewServer(h, "127.0.0.1:0", discardLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteJSON(&protocol.ClientMessage{Type: protocol.TypeGetLocalInfo}))
	msg := readWS(t, conn)
	require.Equal(t, protocol.TypeLocalInfo, msg.Type)
	require.Equal(t, table.LocalID(), *msg.PeerID)
	require.Equal(t, "local-pc", msg.Hostname)

	// A frame that is not JSON does not cost the client its session.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("definitely not json")))
	require.NoError(t, conn.WriteJSON(&protocol.ClientMessage{Type: protocol.TypePing}))
	require.Equal(t, protocol.TypePong, readWS(t, conn).Type)

	// Discovery notifications reach live sockets.
	h.PeerDiscovered(peer.Peer{ID: uuid.New(), Address: "192.168.1.2:7879", Hostname: "other"})
	msg = readWS(t, conn)
	require.Equal(t, protocol.TypePeerDiscovered, msg.Type)
	require.NotNil(t, msg.Peer)
	require.Equal(t, "other", msg.Peer.Hostname)
	require.Equal(t, "192.168.1.2:7879", msg.Peer.Address)
}

func TestWebSocketPeerRemovedNotification(t *testing.T) {
	h, _, _ := newTestHub(t)
	srv := NewServer(h, "127.0.0.1:0", discardLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts)

	// A round trip first, so the client is registered before the push.
	require.NoError(t, conn.WriteJSON(&protocol.ClientMessage{Type: protocol.TypePing}))
	require.Equal(t, protocol.TypePong, readWS(t, conn).Type)

	id := uuid.New()
	h.PeerRemoved(id)
	msg := readWS(t, conn)
	require.Equal(t, protocol.TypePeerRemoved, msg.Type)
	require.Equal(t, id, *msg.PeerID)
}

func TestHealthEndpoint(t *testing.T) {
	h, table, _ := newTestHub(t)
	srv := NewServer(h, "127.0.0.1:0", discardLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, table.LocalID().String(), body["peer_id"])
}
