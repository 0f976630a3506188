/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package nowplaying serves the now-playing websocket push: a thin
// subscriber on the events.Bus that relays every now_playing event to
// connected browsers so a web player can update its UI without polling
// GET /.
package nowplaying

import (
	"net/http"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/cache"
	"github.com/palisade-radio/driftcast/internal/events"
)

// Message is the JSON payload pushed to subscribers on every track change.
type Message struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Handler upgrades requests to a websocket and streams now_playing events.
type Handler struct {
	bus    *events.Bus
	cache  *cache.Cache
	logger zerolog.Logger
}

// New constructs a now-playing websocket handler subscribed to bus. cache
// supplies the last-known value so a freshly connected client learns the
// current track immediately instead of waiting for the next change.
func New(bus *events.Bus, c *cache.Cache, logger zerolog.Logger) *Handler {
	return &Handler{bus: bus, cache: c, logger: logger.With().Str("component", "nowplaying").Logger()}
}

// ServeHTTP accepts a websocket connection and pushes every subsequent
// now_playing event until the client disconnects or the request context
// ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	ctx := r.Context()
	sub := h.bus.Subscribe(events.EventNowPlaying)
	defer h.bus.Unsubscribe(events.EventNowPlaying, sub)

	if np, ok := h.cache.GetNowPlaying(ctx); ok {
		msg := Message{ID: np.ID, Title: np.Title, Artist: np.Artist}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			h.logger.Debug().Err(err).Msg("websocket write failed, disconnecting")
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			msg := payloadToMessage(payload)
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				h.logger.Debug().Err(err).Msg("websocket write failed, disconnecting")
				return
			}
		}
	}
}

func payloadToMessage(p events.Payload) Message {
	var m Message
	if v, ok := p["id"].(string); ok {
		m.ID = v
	}
	if v, ok := p["title"].(string); ok {
		m.Title = v
	}
	if v, ok := p["artist"].(string); ok {
		m.Artist = v
	}
	return m
}
