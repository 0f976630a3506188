/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalogue holds the static, read-only set of track descriptors
// the broadcast pipeline draws from. It is loaded once at startup and never
// mutated afterward.
package catalogue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Track is an immutable track descriptor.
type Track struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Artist   string `yaml:"artist"`
	URL      string `yaml:"url"`
	Filename string `yaml:"filename"`
	Weight   int    `yaml:"weight"`
}

// document is the on-disk YAML shape.
type document struct {
	Tracks []Track `yaml:"tracks"`
}

// Catalogue is the immutable, process-global set of known tracks.
type Catalogue struct {
	tracks []Track
	byID   map[string]Track
}

// Load reads and validates a catalogue document from a YAML file.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalogue yaml: %w", err)
	}

	return New(doc.Tracks)
}

// New builds a Catalogue from an in-memory track list, validating
// invariants (non-empty, unique non-empty ids, non-empty filenames) and
// defaulting non-positive weights to 1.
func New(tracks []Track) (*Catalogue, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("catalogue must contain at least one track")
	}

	byID := make(map[string]Track, len(tracks))
	cp := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			return nil, fmt.Errorf("track with empty id")
		}
		if _, exists := byID[t.ID]; exists {
			return nil, fmt.Errorf("duplicate track id %q", t.ID)
		}
		if t.Filename == "" {
			return nil, fmt.Errorf("track %q: filename must not be empty", t.ID)
		}
		if t.Weight <= 0 {
			t.Weight = 1
		}
		byID[t.ID] = t
		cp = append(cp, t)
	}

	return &Catalogue{tracks: cp, byID: byID}, nil
}

// Tracks returns a defensive copy of the full track list.
func (c *Catalogue) Tracks() []Track {
	out := make([]Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Lookup finds a track by id.
func (c *Catalogue) Lookup(id string) (Track, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Len returns the number of tracks in the catalogue.
func (c *Catalogue) Len() int {
	return len(c.tracks)
}
