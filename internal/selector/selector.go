/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selector implements the shuffle-bag-with-history track selection
// policy: an endless sequence that plays every catalogue track exactly once
// per cycle, in uniformly random order, with no repeats inside a sliding
// window of recently played ids.
package selector

import (
	"math/rand"
	"sync"

	"github.com/palisade-radio/driftcast/internal/catalogue"
)

// Selector yields an endless ordered sequence of tracks from a catalogue.
type Selector struct {
	mu      sync.Mutex
	cat     *catalogue.Catalogue
	bag     []catalogue.Track
	history []string
	window  int
	rng     *rand.Rand
}

// New constructs a Selector over cat with the given no-repeat history
// window. A nil rng uses a process-seeded source.
func New(cat *catalogue.Catalogue, historyWindow int, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Selector{
		cat:    cat,
		window: historyWindow,
		rng:    rng,
	}
}

// Next pops the next track from the shuffle bag, refilling and reshuffling
// it when exhausted.
func (s *Selector) Next() catalogue.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bag) == 0 {
		s.refill()
	}

	last := len(s.bag) - 1
	track := s.bag[last]
	s.bag = s.bag[:last]

	s.pushHistory(track.ID)
	return track
}

// refill copies the full catalogue into the bag, shuffles it, and swaps any
// track in recent history out of the bag's tail (the next window pops) with
// a random earlier track that is not in history — this prevents a freshly
// refilled bag from repeating a track played at the end of the previous
// cycle. When the catalogue is too small to supply such a track, the
// remaining tail positions are left as shuffled.
func (s *Selector) refill() {
	s.bag = s.cat.Tracks()
	s.rng.Shuffle(len(s.bag), func(i, j int) {
		s.bag[i], s.bag[j] = s.bag[j], s.bag[i]
	})

	for p := len(s.bag) - 1; p >= 0 && p >= len(s.bag)-s.window; p-- {
		if !s.inHistory(s.bag[p].ID) {
			continue
		}
		var free []int
		for i := 0; i < len(s.bag)-s.window; i++ {
			if !s.inHistory(s.bag[i].ID) {
				free = append(free, i)
			}
		}
		if len(free) == 0 {
			break
		}
		swapWith := free[s.rng.Intn(len(free))]
		s.bag[p], s.bag[swapWith] = s.bag[swapWith], s.bag[p]
	}
}

func (s *Selector) inHistory(id string) bool {
	for _, h := range s.history {
		if h == id {
			return true
		}
	}
	return false
}

func (s *Selector) pushHistory(id string) {
	s.history = append(s.history, id)
	if len(s.history) > s.window {
		s.history = s.history[len(s.history)-s.window:]
	}
}
