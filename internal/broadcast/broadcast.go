/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast runs the single live encode-and-fanout loop: it pulls
// ready tracks from the prefetch queue, spawns an encoder per track, and
// dispatches fixed-size MP3 chunks to every connected listener, never
// blocking on a slow consumer.
package broadcast

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/encoder"
	"github.com/palisade-radio/driftcast/internal/events"
	"github.com/palisade-radio/driftcast/internal/prefetch"
	"github.com/palisade-radio/driftcast/internal/telemetry"
)

// TrackInfo is the currently-playing descriptor read by status endpoints.
type TrackInfo struct {
	Track     catalogue.Track
	StartedAt time.Time
}

// ReadyQueue supplies the next ready track. Implemented by *prefetch.Queue.
type ReadyQueue interface {
	Next(ctx context.Context) (prefetch.Ready, bool)
}

// Config controls chunking and queue sizing.
type Config struct {
	ChunkSize        int
	BurstCap         int
	ListenerQueueCap int
	EncoderBin       string
	EncoderArgs      []string
}

// Broadcaster owns the burst buffer and listener registry and drives the
// single encode-and-fanout loop for the process lifetime.
type Broadcaster struct {
	cfg      Config
	queue    ReadyQueue
	bus      *events.Bus
	logger   zerolog.Logger
	burst    *BurstBuffer
	registry *Registry
	current  atomic.Pointer[TrackInfo]

	// joinMu serializes dispatch against Join so a newly joined listener's
	// burst snapshot and its registration happen atomically with respect to
	// any concurrent chunk dispatch: a listener registered under this lock
	// either sees a chunk in its snapshot or receives it live, never both
	// and never neither.
	joinMu sync.Mutex
}

// New constructs a Broadcaster. Call Run in its own goroutine.
func New(cfg Config, queue ReadyQueue, bus *events.Bus, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		cfg:      cfg,
		queue:    queue,
		bus:      bus,
		logger:   logger,
		burst:    NewBurstBuffer(cfg.BurstCap),
		registry: NewRegistry(),
	}
}

// Registry exposes the listener registry for the HTTP /stream handler and
// the WebRTC data-channel fanout, which both join through it.
func (b *Broadcaster) Registry() *Registry { return b.registry }

// Burst exposes the burst buffer for snapshot-then-register joins.
func (b *Broadcaster) Burst() *BurstBuffer { return b.burst }

// Current returns the track currently being broadcast, or nil before the
// first track has started.
func (b *Broadcaster) Current() *TrackInfo {
	return b.current.Load()
}

// ListenerCount returns the number of connected listeners across all
// transports sharing this registry.
func (b *Broadcaster) ListenerCount() int {
	return b.registry.Count()
}

// Run drives the broadcast loop until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		ready, ok := b.queue.Next(ctx)
		if !ok {
			return
		}

		info := &TrackInfo{Track: ready.Track, StartedAt: time.Now()}
		b.current.Store(info)
		b.bus.Publish(events.EventNowPlaying, events.Payload{
			"id":     ready.Track.ID,
			"title":  ready.Track.Title,
			"artist": ready.Track.Artist,
		})

		b.playTrack(ctx, ready)
	}
}

func (b *Broadcaster) playTrack(ctx context.Context, ready prefetch.Ready) {
	logger := b.logger.With().Str("track", ready.Track.ID).Logger()

	session, err := encoder.Start(ctx, encoder.Config{
		Bin:       b.cfg.EncoderBin,
		ExtraArgs: b.cfg.EncoderArgs,
		ChunkSize: b.cfg.ChunkSize,
	}, ready.LocalPath, logger)
	if err != nil {
		logger.Error().Err(err).Msg("broadcast: failed to start encoder")
		b.bus.Publish(events.EventEncoderCrash, events.Payload{"track_id": ready.Track.ID, "error": err.Error()})
		sleepOrDone(ctx, time.Second)
		return
	}
	telemetry.EncoderRestartsTotal.Inc()
	defer session.Kill()

	buf := make([]byte, b.cfg.ChunkSize)
	produced := 0
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := session.ReadChunk(buf)
		produced += n
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.dispatch(chunk)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn().Err(err).Msg("broadcast: encoder read error")
			break
		}
	}

	if err := session.Wait(); err != nil {
		logger.Warn().Err(err).Msg("broadcast: encoder exited with error")
		b.bus.Publish(events.EventEncoderCrash, events.Payload{"track_id": ready.Track.ID, "error": err.Error()})
	}
	if produced == 0 {
		// An encoder that emitted nothing must not turn Run into a hot loop.
		logger.Warn().Msg("broadcast: encoder produced no output")
		sleepOrDone(ctx, time.Second)
	}
}

// dispatch appends chunk to the burst buffer and fans it out to every
// listener currently registered, applying the drop-oldest slow-consumer
// policy per listener. It never blocks on any individual listener.
func (b *Broadcaster) dispatch(chunk []byte) {
	b.joinMu.Lock()
	defer b.joinMu.Unlock()
	b.burst.Append(chunk)
	b.registry.ForEach(func(l *Listener) {
		if l.Send(chunk) {
			telemetry.ChunksDroppedTotal.WithLabelValues("slow_listener").Inc()
		} else {
			telemetry.ChunksDispatchedTotal.Inc()
		}
	})
}

// Join registers a new listener, pre-filling its queue with the current
// burst-buffer snapshot before the queue becomes visible to dispatch. The
// snapshot-then-register ordering is serialized against dispatch via
// joinMu so no live chunk can be missed between the snapshot and
// registration. transport is a metrics/log label ("http" or "webrtc").
func (b *Broadcaster) Join(id string, queueCap int, transport string) *Listener {
	b.joinMu.Lock()
	defer b.joinMu.Unlock()

	l := b.registry.Add(id, queueCap)
fill:
	for _, chunk := range b.burst.Snapshot() {
		select {
		case l.queue <- chunk:
		default:
			break fill
		}
	}

	telemetry.ListenersCurrent.Set(float64(b.registry.Count()))
	b.bus.Publish(events.EventListenerStats, events.Payload{
		"event":     "joined",
		"transport": transport,
		"listeners": b.registry.Count(),
	})
	return l
}

// Leave unregisters a listener on client disconnect. It takes joinMu so a
// concurrent dispatch that already captured this listener in its ForEach
// snapshot (registry.go) cannot send on the queue after Remove closes it.
func (b *Broadcaster) Leave(id string, transport string) {
	b.joinMu.Lock()
	b.registry.Remove(id)
	b.joinMu.Unlock()
	telemetry.ListenersCurrent.Set(float64(b.registry.Count()))
	b.bus.Publish(events.EventListenerStats, events.Payload{
		"event":     "left",
		"transport": transport,
		"listeners": b.registry.Count(),
	})
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
