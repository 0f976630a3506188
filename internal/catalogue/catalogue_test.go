package catalogue

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewRejectsEmptyCatalogue(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty catalogue")
	}
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	tracks := []Track{
		{ID: "a", Filename: "a.mp3"},
		{ID: "a", Filename: "b.mp3"},
	}
	if _, err := New(tracks); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
}

func TestNewDefaultsWeight(t *testing.T) {
	cat, err := New([]Track{{ID: "a", Filename: "a.mp3", Weight: 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	track, ok := cat.Lookup("a")
	if !ok {
		t.Fatal("expected to find track a")
	}
	if track.Weight != 1 {
		t.Fatalf("expected default weight 1, got %d", track.Weight)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	contents := `
tracks:
  - id: track-1
    title: First
    artist: Someone
    url: https://cdn.example.test/tracks/track-1.mp3
    filename: track-1.mp3
    weight: 2
  - id: track-2
    title: Second
    artist: Someone Else
    url: https://cdn.example.test/tracks/track-2.mp3
    filename: track-2.mp3
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write catalogue file: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("load catalogue: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 tracks, got %d", cat.Len())
	}
	tr, ok := cat.Lookup("track-1")
	if !ok || tr.Title != "First" {
		t.Fatalf("unexpected lookup result: %+v ok=%v", tr, ok)
	}
}

func TestTracksReturnsDefensiveCopy(t *testing.T) {
	cat, err := New([]Track{{ID: "a", Filename: "a.mp3"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tracks := cat.Tracks()
	tracks[0].Title = "mutated"

	tr, _ := cat.Lookup("a")
	if tr.Title == "mutated" {
		t.Fatal("Tracks() copy leaked mutation into catalogue")
	}
}
