package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prasenjit/stub-console/internal/store"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// EventSource is what the stream subscribes to
type EventSource interface {
	Subscribe() (string, <-chan *store.Event)
	Unsubscribe(id string)
	Snapshot() *store.Snapshot
}

// EventStream streams store events to websocket clients
type EventStream struct {
	source   EventSource
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewEventStream creates a new websocket handler
func NewEventStream(source EventSource, log zerolog.Logger) *EventStream {
	return &EventStream{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away or the store closes the subscription. The first message is
// the current state.
func (h *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	subID, events := h.source.Subscribe()
	defer h.source.Unsubscribe(subID)
	h.log.Debug().Str("subscriber", subID).Msg("event stream opened")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine notices the close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, &store.Event{Type: store.EventState, Timestamp: time.Now(), State: h.source.Snapshot()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "store closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.write(conn, ev); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			h.log.Debug().Str("subscriber", subID).Msg("event stream closed")
			return
		}
	}
}

func (h *EventStream) write(conn *websocket.Conn, ev *store.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal event")
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.Debug().Err(err).Msg("failed to send event")
		return err
	}
	return nil
}
