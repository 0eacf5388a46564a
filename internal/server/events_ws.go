package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/nvasko/cardsentry/internal/events"
)

// wsSendBuffer bounds per-client queues. A client that stops reading loses
// its connection rather than stalling publishers.
const wsSendBuffer = 64

// EventsHandler streams refresh progress events over a websocket.
// Each connection gets its own buffered channel fed by the event bus.
type EventsHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsHandler creates the websocket events handler.
func NewEventsHandler(bus *events.Bus, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		log: log.With().Str("handlers", "events_ws").Logger(),
	}
}

// ServeHTTP upgrades the connection and forwards events until the client
// disconnects.
// GET /api/events/ws
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	ch := make(chan *events.Event, wsSendBuffer)

	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		select {
		case ch <- event:
		default:
			// Client is too slow; drop rather than block the bus
		}
	})
	defer unsubscribe()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Websocket client connected")

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Websocket ping failed, closing")
				return
			}

		case event := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed, closing")
				return
			}
		}
	}
}
