package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func allowAll(*http.Request) bool { return true }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, hub *Hub, conn *websocket.Conn, wallet string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", WalletAddress: wallet}))
	require.Eventually(t, func() bool { return hub.Subscribers(wallet) > 0 }, time.Second, 5*time.Millisecond)
}

func readUpdate(t *testing.T, conn *websocket.Conn) Update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var u Update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

func TestHub_BroadcastByWallet(t *testing.T) {
	hub := NewHub(zap.NewNop(), allowAll)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	w1 := dial(t, srv)
	w2 := dial(t, srv)
	subscribe(t, hub, w1, "W1")
	subscribe(t, hub, w2, "W2")

	hub.Broadcast(Update{Type: "bet_settled", WalletAddress: "W2", Payload: []byte(`{"betId":"b2"}`)})
	hub.Broadcast(Update{Type: "bet_settled", WalletAddress: "W1", Payload: []byte(`{"betId":"b1"}`)})

	got := readUpdate(t, w1)
	assert.Equal(t, "W1", got.WalletAddress)
	assert.JSONEq(t, `{"betId":"b1"}`, string(got.Payload))

	got = readUpdate(t, w2)
	assert.Equal(t, "W2", got.WalletAddress)
}

func TestHub_PingAndUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop(), allowAll)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	subscribe(t, hub, conn, "W1")
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", WalletAddress: "W1"}))
	assert.Eventually(t, func() bool { return hub.Subscribers("W1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_DisconnectCleansSubscriptions(t *testing.T) {
	hub := NewHub(zap.NewNop(), allowAll)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	subscribe(t, hub, conn, "W1")
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("W1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestRedisRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewHub(zap.NewNop(), allowAll)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRedisSubscriber(ctx, zap.NewNop(), rdb, PubSubChannel, hub)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(PubSubChannel)[PubSubChannel] == 1
	}, time.Second, 5*time.Millisecond)

	conn := dial(t, srv)
	subscribe(t, hub, conn, "W1")

	n := NewNotifier(rdb, PubSubChannel)
	require.NoError(t, n.Notify(ctx, "intent_rejected", "W1", map[string]string{"reason": "AMOUNT_MISMATCH"}))

	got := readUpdate(t, conn)
	assert.Equal(t, "intent_rejected", got.Type)
	assert.JSONEq(t, `{"reason":"AMOUNT_MISMATCH"}`, string(got.Payload))
}
