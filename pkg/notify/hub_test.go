package notify

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/events"
)

func TestHubBroadcastsBusEventsToWebsocketClient(t *testing.T) {
	bus := events.NewBus()
	hub := New(bus, zap.NewNop())

	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give ServeHTTP's goroutine time to register the subscriber before
	// emitting, since the bus subscription it rides on (h.pump) is separate
	// from the per-connection registration done in ServeHTTP.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 1
	}, time.Second, 10*time.Millisecond)

	bus.Emit(events.ContractCreated, map[string]any{"contract_id": uint64(7)})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(payload), `"kind":"ContractCreated"`)
	require.Contains(t, string(payload), `"contract_id":7`)
}

func TestHubDropsSlowSubscriberWithoutBlockingBroadcast(t *testing.T) {
	bus := events.NewBus()
	hub := New(bus, zap.NewNop())

	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 1
	}, time.Second, 10*time.Millisecond)

	// Flood well past sendBuffer without ever reading; the hub must drop the
	// subscriber rather than block the broadcaster.
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*4; i++ {
			bus.Emit(events.ContractUpdated, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 0
	}, time.Second, 10*time.Millisecond, "slow subscriber must eventually be dropped")
}
