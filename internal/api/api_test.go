package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/broadcast"
	"github.com/palisade-radio/driftcast/internal/cache"
	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/events"
)

func newTestCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	cat, err := catalogue.New([]catalogue.Track{
		{ID: "a", Title: "A", Artist: "Artist", Filename: "a.mp3"},
		{ID: "b", Title: "B", Artist: "Artist", Filename: "b.mp3"},
		{ID: "c", Title: "C", Artist: "Artist", Filename: "c.mp3"},
	})
	if err != nil {
		t.Fatalf("build catalogue: %v", err)
	}
	return cat
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{RedisAddr: "127.0.0.1:1", DisableOnError: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func TestHandleStatusReportsListenerCountAndQueueDepth(t *testing.T) {
	b := broadcast.New(broadcast.Config{ChunkSize: 4, BurstCap: 2, ListenerQueueCap: 4}, nil, events.NewBus(), zerolog.Nop())
	a := New(b, newTestCatalogue(t), newTestCache(t), "https://cdn.example.test", 10, func() int { return 3 }, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	a.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Queue != 3 {
		t.Fatalf("expected queue depth 3, got %d", body.Queue)
	}
	if body.Listeners != 0 {
		t.Fatalf("expected 0 listeners, got %d", body.Listeners)
	}
	if body.Status != "on_air" {
		t.Fatalf("expected status on_air, got %q", body.Status)
	}
}

func TestHandleOfflineQueueSamplesWithoutReplacement(t *testing.T) {
	b := broadcast.New(broadcast.Config{ChunkSize: 4, BurstCap: 2, ListenerQueueCap: 4}, nil, events.NewBus(), zerolog.Nop())
	a := New(b, newTestCatalogue(t), newTestCache(t), "https://cdn.example.test", 10, func() int { return 0 }, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/offline-queue", nil)
	rec := httptest.NewRecorder()
	a.handleOfflineQueue(rec, req)

	var body struct {
		Queue []offlineQueueEntry `json:"queue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Queue) != 3 {
		t.Fatalf("expected all 3 catalogue tracks sampled, got %d", len(body.Queue))
	}
	seen := map[string]bool{}
	for _, e := range body.Queue {
		if seen[e.ID] {
			t.Fatalf("duplicate id %q in offline queue sample", e.ID)
		}
		seen[e.ID] = true
		if e.DownloadURL == "" {
			t.Fatalf("expected non-empty download url for %q", e.ID)
		}
	}
}

func TestHandleStreamWritesDispatchedChunks(t *testing.T) {
	b := broadcast.New(broadcast.Config{ChunkSize: 4, BurstCap: 2, ListenerQueueCap: 4}, nil, events.NewBus(), zerolog.Nop())
	a := New(b, newTestCatalogue(t), newTestCache(t), "https://cdn.example.test", 10, func() int { return 0 }, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		a.handleStream(rec, req)
		close(done)
	}()

	// Give handleStream time to register its listener, then send it a
	// chunk and remove it so the handler drains its queue and returns.
	time.Sleep(20 * time.Millisecond)

	var listenerID string
	b.Registry().ForEach(func(l *broadcast.Listener) {
		listenerID = l.ID
		l.Send([]byte("abcd"))
	})
	if listenerID == "" {
		t.Fatal("expected handleStream to register a listener")
	}
	b.Leave(listenerID, "http")
	<-done

	if got := rec.Body.String(); got != "abcd" {
		t.Fatalf("expected dispatched chunk in response body, got %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("expected Content-Type audio/mpeg, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("expected Cache-Control no-cache, got %q", cc)
	}
	if rec.Header().Get("X-Listener-Id") == "" {
		t.Fatal("expected X-Listener-Id header to be set")
	}
}
