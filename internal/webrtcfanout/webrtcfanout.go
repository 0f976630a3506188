/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webrtcfanout offers WebRTC listeners a second, lower-latency
// delivery path for the same MP3 chunk stream the HTTP /stream handler
// serves, using an unreliable, unordered RTCDataChannel instead of a
// byte stream so it never needs re-encoding.
package webrtcfanout

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/broadcast"
)

const dataChannelLabel = "audio"

// Config holds ICE server configuration.
type Config struct {
	STUNURL string
	TURNURL string
}

// Fanout answers WebRTC offers and bridges each accepted peer's DataChannel
// into the shared broadcast.Registry as an ordinary listener.
type Fanout struct {
	cfg         Config
	broadcaster *broadcast.Broadcaster
	queueCap    int
	api         *webrtc.API
	logger      zerolog.Logger

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection
}

// New constructs a Fanout bridging peers into broadcaster's listener registry.
func New(cfg Config, broadcaster *broadcast.Broadcaster, queueCap int, logger zerolog.Logger) *Fanout {
	m := &webrtc.MediaEngine{}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	return &Fanout{
		cfg:         cfg,
		broadcaster: broadcaster,
		queueCap:    queueCap,
		api:         api,
		logger:      logger,
		peers:       make(map[string]*webrtc.PeerConnection),
	}
}

// Answer accepts a client SDP offer, creates a data-channel-only peer
// connection, and returns the local SDP answer once ICE gathering
// completes. The DataChannel is wired to the registry lazily, once the
// channel opens on the remote side.
func (f *Fanout) Answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	var iceServers []webrtc.ICEServer
	if f.cfg.STUNURL != "" {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{f.cfg.STUNURL}})
	}
	if f.cfg.TURNURL != "" {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{f.cfg.TURNURL}})
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	peerID := uuid.NewString()
	logger := f.logger.With().Str("peer_id", peerID).Logger()

	ordered := false
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	dc.OnOpen(func() {
		f.attachListener(peerID, pc, dc, logger)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed || s == webrtc.PeerConnectionStateDisconnected {
			f.detach(peerID, pc, logger)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	f.mu.Lock()
	f.peers[peerID] = pc
	f.mu.Unlock()

	return pc.LocalDescription(), nil
}

func (f *Fanout) attachListener(peerID string, pc *webrtc.PeerConnection, dc *webrtc.DataChannel, logger zerolog.Logger) {
	listener := f.broadcaster.Join(peerID, f.queueCap, "webrtc")
	logger.Info().Msg("webrtc listener joined")

	go func() {
		for {
			chunk, ok := listener.Recv()
			if !ok {
				return
			}
			if err := dc.Send(chunk); err != nil {
				logger.Debug().Err(err).Msg("webrtc data channel send failed, dropping peer")
				f.detach(peerID, pc, logger)
				return
			}
		}
	}()
}

func (f *Fanout) detach(peerID string, pc *webrtc.PeerConnection, logger zerolog.Logger) {
	f.mu.Lock()
	_, ok := f.peers[peerID]
	delete(f.peers, peerID)
	f.mu.Unlock()
	if !ok {
		return
	}
	f.broadcaster.Leave(peerID, "webrtc")
	pc.Close()
	logger.Info().Msg("webrtc listener left")
}

// PeerCount returns the number of currently connected WebRTC peers.
func (f *Fanout) PeerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}
