/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/api"
	"github.com/palisade-radio/driftcast/internal/broadcast"
	"github.com/palisade-radio/driftcast/internal/cache"
	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/config"
	"github.com/palisade-radio/driftcast/internal/events"
	"github.com/palisade-radio/driftcast/internal/fetcher"
	"github.com/palisade-radio/driftcast/internal/nowplaying"
	"github.com/palisade-radio/driftcast/internal/prefetch"
	"github.com/palisade-radio/driftcast/internal/selector"
	"github.com/palisade-radio/driftcast/internal/telemetry"
	"github.com/palisade-radio/driftcast/internal/webrtcfanout"
)

// Server bundles the HTTP router and every background service the
// broadcast pipeline needs.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	bus          *events.Bus
	cat          *catalogue.Catalogue
	fetch        *fetcher.Fetcher
	prefetch     *prefetch.Queue
	broadcaster  *broadcast.Broadcaster
	cacheClient  *cache.Cache
	api          *api.API
	nowPlaying   *nowplaying.Handler
	webrtcFanout *webrtcfanout.Fanout

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires every dependency.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("driftcast-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for connections that are meant to stay open
	// indefinitely: the audio stream and the now-playing websocket push.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/stream" || r.URL.Path == "/ws/now-playing" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:        addr,
		Handler:     srv.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout left at 0: /stream holds its connection open for the
		// lifetime of a listener and manages its own flush cadence.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	cat, err := catalogue.Load(s.cfg.CataloguePath)
	if err != nil {
		return fmt.Errorf("load catalogue: %w", err)
	}
	s.cat = cat
	s.logger.Info().Int("tracks", len(cat.Tracks())).Msg("catalogue loaded")

	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", s.cfg.CacheDir, err)
	}

	ctx := context.Background()
	f, err := fetcher.New(ctx, fetcher.Config{
		CacheDir:       s.cfg.CacheDir,
		SourceBase:     s.cfg.SourceBase,
		MinValidBytes:  s.cfg.MinValidBytes,
		FetchTimeout:   s.cfg.FetchTimeout,
		RateLimitRPS:   s.cfg.FetchRateLimitRPS,
		S3Bucket:       s.cfg.S3Bucket,
		S3Region:       s.cfg.S3Region,
		S3Endpoint:     s.cfg.S3Endpoint,
		S3AccessKeyID:  s.cfg.S3AccessKeyID,
		S3SecretKey:    s.cfg.S3SecretKey,
		S3UsePathStyle: s.cfg.S3UsePathStyle,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("initialize fetcher: %w", err)
	}
	s.fetch = f

	sel := selector.New(cat, s.cfg.HistoryWindow, rand.New(rand.NewSource(time.Now().UnixNano())))
	s.prefetch = prefetch.New(sel, f, s.bus, s.cfg.PrefetchCap, s.logger)

	s.broadcaster = broadcast.New(broadcast.Config{
		ChunkSize:        s.cfg.ChunkSize,
		BurstCap:         s.cfg.BurstCap,
		ListenerQueueCap: s.cfg.ListenerQueueCap,
		EncoderBin:       s.cfg.EncoderBin,
		EncoderArgs:      s.cfg.EncoderArgs,
	}, s.prefetch, s.bus, s.logger)

	cacheClient, err := cache.New(cache.Config{
		RedisAddr:       s.cfg.RedisAddr,
		RedisPassword:   s.cfg.RedisPassword,
		RedisDB:         s.cfg.RedisDB,
		OfflineQueueTTL: cache.DefaultOfflineQueueTTL,
		NowPlayingTTL:   cache.DefaultNowPlayingTTL,
		DisableOnError:  true,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	s.cacheClient = cacheClient
	s.DeferClose(cacheClient.Close)

	s.api = api.New(s.broadcaster, s.cat, s.cacheClient, s.cfg.SourceBase, s.cfg.ListenerQueueCap, s.prefetchDepth, s.logger)
	s.nowPlaying = nowplaying.New(s.bus, s.cacheClient, s.logger)

	if s.cfg.WebRTCEnabled {
		s.webrtcFanout = webrtcfanout.New(webrtcfanout.Config{
			STUNURL: s.cfg.WebRTCSTUNURL,
			TURNURL: s.cfg.WebRTCTURNURL,
		}, s.broadcaster, s.cfg.ListenerQueueCap, s.logger)
		s.logger.Info().Bool("turn_enabled", s.cfg.WebRTCTURNURL != "").Msg("webrtc fanout initialized")
	}

	return nil
}

// prefetchDepth reports how many tracks are buffered ahead of the
// broadcaster, for the GET / status response.
func (s *Server) prefetchDepth() int {
	return s.prefetch.Depth()
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook run in LIFO order by Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.prefetch.Run(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.broadcaster.Run(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.syncNowPlayingCache(ctx)
	}()
}

// syncNowPlayingCache mirrors every now_playing event into the Redis
// handover cache so a second process (e.g. the old instance during a
// blue/green deploy) can still answer GET /ws/now-playing correctly.
func (s *Server) syncNowPlayingCache(ctx context.Context) {
	sub := s.bus.Subscribe(events.EventNowPlaying)
	defer s.bus.Unsubscribe(events.EventNowPlaying, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			np := cache.NowPlaying{}
			if v, ok := payload["id"].(string); ok {
				np.ID = v
			}
			if v, ok := payload["title"].(string); ok {
				np.Title = v
			}
			if v, ok := payload["artist"].(string); ok {
				np.Artist = v
			}
			if err := s.cacheClient.SetNowPlaying(ctx, np); err != nil {
				s.logger.Debug().Err(err).Msg("failed to cache now-playing handover value")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)

	s.router.Get("/ws/now-playing", s.nowPlaying.ServeHTTP)

	if s.webrtcFanout != nil {
		s.router.Post("/webrtc/offer", s.handleWebRTCOffer)
	}
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := s.webrtcFanout.Answer(offer)
	if err != nil {
		s.logger.Error().Err(err).Msg("webrtc offer/answer exchange failed")
		http.Error(w, "webrtc negotiation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}
