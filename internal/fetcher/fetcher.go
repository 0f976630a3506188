/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fetcher resolves catalogue track filenames to a locally cached
// file, downloading from HTTP(S) or S3-compatible object storage sources
// on a cache miss and re-downloading when a cached file looks truncated.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/telemetry"
)

const readBufferSize = 64 * 1024

// Backend identifies which transport resolved a track, used as a metrics label.
type Backend string

const (
	BackendHTTP Backend = "http"
	BackendS3   Backend = "s3"
)

// Config controls cache location, validation, and S3 access.
type Config struct {
	CacheDir       string
	SourceBase     string
	MinValidBytes  int64
	FetchTimeout   time.Duration
	RateLimitRPS   float64

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3UsePathStyle bool
}

// Fetcher ensures catalogue source files are present in the local cache.
type Fetcher struct {
	cfg      Config
	logger   zerolog.Logger
	limiter  *rate.Limiter
	client   *http.Client
	s3Client *s3.Client
}

// New constructs a Fetcher. The S3 client is built here only when
// cfg.S3Bucket is set; without it, s3:// sources fail at download time.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Fetcher, error) {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 4.0
	}

	f := &Fetcher{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
		client:  &http.Client{Timeout: cfg.FetchTimeout},
	}

	if cfg.S3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("configure s3 client: %w", err)
		}
		f.s3Client = client
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return f, nil
}

func newS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID, cfg.S3SecretKey, "",
		)))
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: cfg.S3Endpoint, HostnameImmutable: true, SigningRegion: cfg.S3Region}, nil
			}
			return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// Ensure returns the local path for track, downloading or re-downloading it
// if missing or smaller than MinValidBytes. It reports the backend used so
// callers can label fetch duration metrics.
func (f *Fetcher) Ensure(ctx context.Context, track catalogue.Track) (string, Backend, error) {
	localPath := filepath.Join(f.cfg.CacheDir, track.Filename)

	if info, err := os.Stat(localPath); err == nil && info.Size() >= f.cfg.MinValidBytes {
		return localPath, "", nil
	} else if err == nil {
		f.logger.Warn().Str("track", track.ID).Int64("size", info.Size()).Msg("cached file too small, re-downloading")
	}

	sourceURL := track.URL
	if sourceURL == "" && f.cfg.SourceBase != "" {
		sourceURL = strings.TrimRight(f.cfg.SourceBase, "/") + "/" + track.Filename
	}
	if sourceURL == "" {
		return "", "", fmt.Errorf("track %q has no source URL and no source base is configured", track.ID)
	}

	fetchCtx := ctx
	cancel := func() {}
	if f.cfg.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, f.cfg.FetchTimeout)
	}
	defer cancel()

	if err := f.limiter.Wait(fetchCtx); err != nil {
		return "", "", fmt.Errorf("rate limiter: %w", err)
	}

	var backend Backend
	var err error
	start := time.Now()
	if strings.HasPrefix(sourceURL, "s3://") {
		backend = BackendS3
		err = f.downloadS3(fetchCtx, sourceURL, localPath)
	} else {
		backend = BackendHTTP
		err = f.downloadHTTP(fetchCtx, sourceURL, localPath)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	telemetry.FetchDuration.WithLabelValues(string(backend), outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", backend, fmt.Errorf("fetch track %q: %w", track.ID, err)
	}

	return localPath, backend, nil
}

func (f *Fetcher) downloadHTTP(ctx context.Context, sourceURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, sourceURL)
	}

	return streamToFile(resp.Body, localPath)
}

func (f *Fetcher) downloadS3(ctx context.Context, sourceURL, localPath string) error {
	if f.s3Client == nil {
		return errors.New("s3 source requested but no s3 client is configured")
	}

	bucket, key, err := parseS3URL(sourceURL)
	if err != nil {
		return err
	}
	if bucket == "" {
		bucket = f.cfg.S3Bucket
	}

	out, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	return streamToFile(out.Body, localPath)
}

func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// streamToFile copies src into a temp file beside dest and renames it into
// place, so a crash mid-download never leaves a corrupt file at dest.
func streamToFile(src io.Reader, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	buf := make([]byte, readBufferSize)
	if _, err := io.CopyBuffer(tmp, src, buf); err != nil {
		tmp.Close()
		return fmt.Errorf("copy body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
