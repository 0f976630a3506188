/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api implements the public HTTP surface: station status, the live
// MP3 stream, and the offline-queue sample.
package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/broadcast"
	"github.com/palisade-radio/driftcast/internal/cache"
	"github.com/palisade-radio/driftcast/internal/catalogue"
)

// PrefetchDepth reports how many tracks are currently queued ahead of the
// broadcaster. Implemented by *prefetch.Queue via a small adapter closure.
type PrefetchDepth func() int

// API bundles the handlers for the public HTTP surface.
type API struct {
	broadcaster   *broadcast.Broadcaster
	catalogue     *catalogue.Catalogue
	cache         *cache.Cache
	sourceBase    string
	queueCap      int
	prefetchDepth PrefetchDepth
	logger        zerolog.Logger
}

// New constructs the API handlers.
func New(b *broadcast.Broadcaster, cat *catalogue.Catalogue, c *cache.Cache, sourceBase string, listenerQueueCap int, depth PrefetchDepth, logger zerolog.Logger) *API {
	return &API{
		broadcaster:   b,
		catalogue:     cat,
		cache:         c,
		sourceBase:    sourceBase,
		queueCap:      listenerQueueCap,
		prefetchDepth: depth,
		logger:        logger,
	}
}

// Routes mounts the public surface on r. It opens its own sub-router scope
// so Use is never called on a mux that already has routes registered on it.
func (a *API) Routes(r chi.Router) {
	r.Route("/", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.Get("/", a.handleStatus)
		r.Get("/stream", a.handleStream)
		r.Get("/api/offline-queue", a.handleOfflineQueue)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type nowPlayingView struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type statusResponse struct {
	Status     string          `json:"status"`
	Quality    string          `json:"quality"`
	Listeners  int             `json:"listeners"`
	NowPlaying *nowPlayingView `json:"now_playing"`
	Queue      int             `json:"queue"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:    "on_air",
		Quality:   "192kbps CBR MP3",
		Listeners: a.broadcaster.ListenerCount(),
		Queue:     a.prefetchDepth(),
	}

	if info := a.broadcaster.Current(); info != nil {
		resp.NowPlaying = &nowPlayingView{
			ID:     info.Track.ID,
			Title:  info.Track.Title,
			Artist: info.Track.Artist,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	listenerID := uuid.NewString()
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Listener-Id", listenerID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	listener := a.broadcaster.Join(listenerID, a.queueCap, "http")
	defer a.broadcaster.Leave(listenerID, "http")

	logger := a.logger.With().Str("listener_id", listenerID).Str("transport", "http").Logger()
	logger.Info().Msg("listener connected")
	defer logger.Info().Msg("listener disconnected")

	for {
		chunk, ok := listener.Recv()
		if !ok {
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		flusher.Flush()
	}
}

type offlineQueueEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	DownloadURL string `json:"download_url"`
}

const offlineQueueSampleSize = 15

func (a *API) handleOfflineQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cached, ok := a.cache.GetOfflineQueue(ctx); ok {
		writeJSON(w, http.StatusOK, map[string]any{"queue": cached})
		return
	}

	sample := a.sampleOfflineQueue()
	entries := make([]cache.OfflineQueueEntry, len(sample))
	for i, e := range sample {
		entries[i] = cache.OfflineQueueEntry(e)
	}
	if err := a.cache.SetOfflineQueue(ctx, entries); err != nil {
		a.logger.Debug().Err(err).Msg("failed to cache offline queue sample")
	}

	writeJSON(w, http.StatusOK, map[string]any{"queue": sample})
}

// sampleOfflineQueue draws up to offlineQueueSampleSize tracks uniformly
// without replacement from the catalogue.
func (a *API) sampleOfflineQueue() []offlineQueueEntry {
	tracks := a.catalogue.Tracks()
	n := offlineQueueSampleSize
	if n > len(tracks) {
		n = len(tracks)
	}

	perm := rand.Perm(len(tracks))
	out := make([]offlineQueueEntry, n)
	for i := 0; i < n; i++ {
		t := tracks[perm[i]]
		out[i] = offlineQueueEntry{
			ID:          t.ID,
			Title:       t.Title,
			Artist:      t.Artist,
			DownloadURL: strings.TrimRight(a.sourceBase, "/") + "/" + t.Filename,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
