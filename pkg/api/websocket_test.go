package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscription(t *testing.T, hub *Hub, channel string) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.subscribed(channel) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"orders"}})
	require.NoError(t, err)
	waitForSubscription(t, s.hub, "orders")

	receipt := orders.Receipt{
		Action:  "start_limit",
		Account: common.HexToAddress(aliceHex),
		ID:      3,
	}
	s.hub.BroadcastReceipt(receipt)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event WSReceiptEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	require.Equal(t, "orders:"+strings.ToLower(aliceHex), event.Channel)
	require.Equal(t, "start_limit", event.Receipt.Action)
	require.Equal(t, uint64(3), event.Receipt.ID)
}

func TestHubFiltersByAccountChannel(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	// Subscribed to alice's channel only; a receipt for another account
	// must not arrive.
	channel := "orders:" + strings.ToLower(aliceHex)
	err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{channel}})
	require.NoError(t, err)
	waitForSubscription(t, s.hub, channel)

	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	s.hub.BroadcastReceipt(orders.Receipt{Action: "start_grid", Account: other})
	s.hub.BroadcastReceipt(orders.Receipt{Action: "start_smart", Account: common.HexToAddress(aliceHex)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event WSReceiptEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	require.Equal(t, "start_smart", event.Receipt.Action)
}
