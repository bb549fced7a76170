// Package notify broadcasts the core's event stream over websocket,
// filling the role neo-go's RPC notification service plays for block and
// transaction events.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/threefoldtech/tfchain-billing/pkg/events"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans events.Bus events out to connected websocket subscribers. Each
// connection gets its own buffered outbound queue and writer goroutine; a
// slow subscriber is dropped rather than blocking the broadcaster.
type Hub struct {
	bus *events.Bus
	log *zap.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan events.Event
}

// New creates a Hub that subscribes to bus and fans its events out to
// connected websocket clients. The bus subscription is never released.
func New(bus *events.Bus, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		bus:  bus,
		log:  log.With(zap.String("component", "notify")),
		subs: make(map[*subscriber]struct{}),
	}
	go h.pump()
	return h
}

func (h *Hub) pump() {
	ch, cancel := h.bus.Subscribe()
	defer cancel()
	for ev := range ch {
		h.broadcast(ev)
	}
}

func (h *Hub) broadcast(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			h.log.Warn("dropping slow websocket subscriber")
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) removeLocked(sub *subscriber) {
	delete(h.subs, sub)
	close(sub.send)
	sub.conn.Close()
}

// ServeHTTP upgrades the request to a websocket and streams events.Bus
// events to it as key-ordered JSON until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sub := &subscriber{conn: conn, send: make(chan events.Event, sendBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	h.writeLoop(sub)
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; ok {
			h.removeLocked(sub)
		}
		h.mu.Unlock()
	}()

	for ev := range sub.send {
		payload, err := ev.Encode()
		if err != nil {
			h.log.Error("failed to encode event", zap.Error(err))
			continue
		}
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
