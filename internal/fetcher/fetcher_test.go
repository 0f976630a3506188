package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/palisade-radio/driftcast/internal/catalogue"
)

func TestEnsureDownloadsOverHTTPAndCaches(t *testing.T) {
	const body = "not-really-mp3-bytes-but-long-enough-to-pass-validation-00000000000000000000"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f, err := New(context.Background(), Config{
		CacheDir:      dir,
		MinValidBytes: int64(len(body)),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	track := catalogue.Track{ID: "t1", Filename: "t1.mp3", URL: srv.URL + "/t1.mp3"}
	path, backend, err := f.Ensure(context.Background(), track)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if backend != BackendHTTP {
		t.Fatalf("expected http backend, got %q", backend)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != body {
		t.Fatalf("unexpected cached content: %q", data)
	}

	// Second call should be served from cache without hitting the server.
	srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be contacted on cache hit")
	})
	path2, backend2, err := f.Ensure(context.Background(), track)
	if err != nil {
		t.Fatalf("Ensure (cached): %v", err)
	}
	if path2 != path || backend2 != "" {
		t.Fatalf("expected cache hit, got path=%q backend=%q", path2, backend2)
	}
}

func TestEnsureRedownloadsTruncatedCache(t *testing.T) {
	const goodBody = "0123456789abcdefghij"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodBody))
	}))
	defer srv.Close()

	dir := t.TempDir()
	track := catalogue.Track{ID: "t1", Filename: "t1.mp3", URL: srv.URL + "/t1.mp3"}
	if err := os.WriteFile(filepath.Join(dir, track.Filename), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed truncated cache file: %v", err)
	}

	f, err := New(context.Background(), Config{
		CacheDir:      dir,
		MinValidBytes: int64(len(goodBody)),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, _, err := f.Ensure(context.Background(), track)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != goodBody {
		t.Fatalf("expected re-download of truncated cache, got %q", data)
	}
}

func TestEnsureFailsWithoutSourceURLOrBase(t *testing.T) {
	dir := t.TempDir()
	f, err := New(context.Background(), Config{CacheDir: dir, MinValidBytes: 1}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	track := catalogue.Track{ID: "t1", Filename: "t1.mp3"}
	if _, _, err := f.Ensure(context.Background(), track); err == nil {
		t.Fatal("expected error when track has no URL and no source base configured")
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://my-bucket/path/to/file.mp3")
	if err != nil {
		t.Fatalf("parseS3URL: %v", err)
	}
	if bucket != "my-bucket" || key != "path/to/file.mp3" {
		t.Fatalf("unexpected parse result: bucket=%q key=%q", bucket, key)
	}
}
