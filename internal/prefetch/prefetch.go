/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package prefetch runs a single background worker that keeps a bounded
// queue of locally-cached, ready-to-play tracks filled ahead of the
// broadcaster, so fetch latency never stalls the stream.
package prefetch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/events"
	"github.com/palisade-radio/driftcast/internal/fetcher"
)

// Ready is a track that has been fetched and is ready to hand to the encoder.
type Ready struct {
	Track     catalogue.Track
	LocalPath string
}

// Selector yields the next track to prefetch. Implemented by *selector.Selector.
type Selector interface {
	Next() catalogue.Track
}

// Fetcher resolves a track to a local file. Implemented by *fetcher.Fetcher.
type Fetcher interface {
	Ensure(ctx context.Context, track catalogue.Track) (string, fetcher.Backend, error)
}

// Queue is a bounded, blocking pipeline of ready tracks between the
// prefetch worker and the broadcaster.
type Queue struct {
	sel    Selector
	fetch  Fetcher
	bus    *events.Bus
	logger zerolog.Logger
	ch     chan Ready

	retryDelay  time.Duration
	fullPoll    time.Duration
}

// New constructs a prefetch Queue with the given capacity.
func New(sel Selector, fetch Fetcher, bus *events.Bus, capacity int, logger zerolog.Logger) *Queue {
	return &Queue{
		sel:        sel,
		fetch:      fetch,
		bus:        bus,
		logger:     logger,
		ch:         make(chan Ready, capacity),
		retryDelay: 2 * time.Second,
		fullPoll:   time.Second,
	}
}

// Run drives the prefetch worker until ctx is cancelled. It is meant to run
// in its own goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		track := q.sel.Next()

		localPath, _, err := q.fetch.Ensure(ctx, track)
		if err != nil {
			q.logger.Warn().Err(err).Str("track", track.ID).Msg("prefetch: fetch failed, skipping track")
			q.bus.Publish(events.EventFetchFailed, events.Payload{"track_id": track.ID, "error": err.Error()})
			q.bus.Publish(events.EventTrackSkipped, events.Payload{"track_id": track.ID, "reason": "fetch_failed"})
			if !sleepOrDone(ctx, q.retryDelay) {
				return
			}
			continue
		}

		if !q.enqueue(ctx, Ready{Track: track, LocalPath: localPath}) {
			return
		}
	}
}

// enqueue blocks until the ready track is accepted, the context is
// cancelled, or a fullPoll tick passes (allowing periodic liveness checks
// without busy-looping).
func (q *Queue) enqueue(ctx context.Context, r Ready) bool {
	for {
		select {
		case q.ch <- r:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(q.fullPoll):
			// queue still full; loop and retry the blocking send.
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Next blocks until a ready track is available or ctx is cancelled.
func (q *Queue) Next(ctx context.Context) (Ready, bool) {
	select {
	case r := <-q.ch:
		return r, true
	case <-ctx.Done():
		return Ready{}, false
	}
}

// Depth reports how many fetched tracks are currently buffered ahead of
// the broadcaster, for the GET / status response.
func (q *Queue) Depth() int {
	return len(q.ch)
}
