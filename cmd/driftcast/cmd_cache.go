/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palisade-radio/driftcast/internal/catalogue"
	"github.com/palisade-radio/driftcast/internal/config"
	"github.com/palisade-radio/driftcast/internal/fetcher"
	"github.com/palisade-radio/driftcast/internal/logging"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local track cache",
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Download every catalogue track into the local cache ahead of time",
	Long:  "Pre-fetches every track in the catalogue so the broadcaster never blocks on a cold cache once it goes live.",
	RunE:  runCacheWarm,
}

func init() {
	cacheCmd.AddCommand(cacheWarmCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheWarm(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.Environment)

	cat, err := catalogue.Load(cfg.CataloguePath)
	if err != nil {
		return fmt.Errorf("load catalogue: %w", err)
	}

	ctx := context.Background()
	f, err := fetcher.New(ctx, fetcher.Config{
		CacheDir:       cfg.CacheDir,
		SourceBase:     cfg.SourceBase,
		MinValidBytes:  cfg.MinValidBytes,
		FetchTimeout:   cfg.FetchTimeout,
		RateLimitRPS:   cfg.FetchRateLimitRPS,
		S3Bucket:       cfg.S3Bucket,
		S3Region:       cfg.S3Region,
		S3Endpoint:     cfg.S3Endpoint,
		S3AccessKeyID:  cfg.S3AccessKeyID,
		S3SecretKey:    cfg.S3SecretKey,
		S3UsePathStyle: cfg.S3UsePathStyle,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize fetcher: %w", err)
	}

	tracks := cat.Tracks()
	failed := 0
	for i, t := range tracks {
		path, backend, err := f.Ensure(ctx, t)
		if err != nil {
			logger.Error().Err(err).Str("track_id", t.ID).Msg("failed to warm track")
			failed++
			continue
		}
		logger.Info().Str("track_id", t.ID).Str("backend", string(backend)).Str("path", path).
			Int("progress", i+1).Int("total", len(tracks)).Msg("track cached")
	}

	fmt.Printf("warmed %d/%d tracks (%d failed)\n", len(tracks)-failed, len(tracks), failed)
	if failed > 0 {
		return fmt.Errorf("%d tracks failed to warm", failed)
	}
	return nil
}
