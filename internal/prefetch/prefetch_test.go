package prefetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/events"
	"github.com/palisade-radio/driftcast/internal/fetcher"
)

type fakeSelector struct {
	mu    sync.Mutex
	ids   []string
	index int
}

func (f *fakeSelector) Next() catalogue.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.ids[f.index%len(f.ids)]
	f.index++
	return catalogue.Track{ID: id, Filename: id + ".mp3"}
}

type fakeFetcher struct {
	mu       sync.Mutex
	failIDs  map[string]bool
	fetched  []string
}

func (f *fakeFetcher) Ensure(ctx context.Context, track catalogue.Track) (string, fetcher.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, track.ID)
	if f.failIDs[track.ID] {
		return "", "", errors.New("simulated fetch failure")
	}
	return "/cache/" + track.Filename, fetcher.BackendHTTP, nil
}

func TestQueueDeliversReadyTracks(t *testing.T) {
	sel := &fakeSelector{ids: []string{"a", "b", "c"}}
	ff := &fakeFetcher{failIDs: map[string]bool{}}
	q := New(sel, ff, events.NewBus(), 2, zerolog.Nop())
	q.fullPoll = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for _, want := range []string{"a", "b", "c"} {
		ready, ok := q.Next(ctx)
		if !ok {
			t.Fatal("expected a ready track")
		}
		if ready.Track.ID != want {
			t.Fatalf("expected track %q, got %q", want, ready.Track.ID)
		}
	}
}

func TestQueueSkipsFailedFetchesAndContinues(t *testing.T) {
	sel := &fakeSelector{ids: []string{"bad", "good"}}
	ff := &fakeFetcher{failIDs: map[string]bool{"bad": true}}
	q := New(sel, ff, events.NewBus(), 2, zerolog.Nop())
	q.retryDelay = time.Millisecond
	q.fullPoll = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	ready, ok := q.Next(ctx)
	if !ok {
		t.Fatal("expected a ready track")
	}
	if ready.Track.ID != "good" {
		t.Fatalf("expected skip-over-failure to deliver %q, got %q", "good", ready.Track.ID)
	}
}

func TestQueueStopsOnContextCancel(t *testing.T) {
	sel := &fakeSelector{ids: []string{"a"}}
	ff := &fakeFetcher{failIDs: map[string]bool{}}
	q := New(sel, ff, events.NewBus(), 1, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Next(ctx)
	if ok {
		t.Fatal("expected Next to report closed context")
	}
}
