// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process-level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	CacheDir       string
	SourceBase     string
	CataloguePath  string
	EncoderBin     string
	EncoderArgs    []string

	ChunkSize         int
	BurstCap          int
	ListenerQueueCap  int
	PrefetchCap       int
	MinValidBytes     int64
	HistoryWindow     int
	FetchTimeout      time.Duration
	FetchRateLimitRPS float64

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKeyID   string
	S3SecretKey     string
	S3UsePathStyle  bool

	WebRTCEnabled bool
	WebRTCSTUNURL string
	WebRTCTURNURL string

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"DRIFTCAST_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"DRIFTCAST_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"DRIFTCAST_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"DRIFTCAST_METRICS_BIND"}, "127.0.0.1:9000"),

		CacheDir:      getEnvAny([]string{"DRIFTCAST_CACHE_DIR"}, "./cache"),
		SourceBase:    getEnvAny([]string{"DRIFTCAST_SOURCE_BASE"}, ""),
		CataloguePath: getEnvAny([]string{"DRIFTCAST_CATALOGUE_PATH"}, "./catalogue.yaml"),
		EncoderBin:    getEnvAny([]string{"DRIFTCAST_ENCODER_BIN"}, "ffmpeg"),
		EncoderArgs:   splitArgs(getEnvAny([]string{"DRIFTCAST_ENCODER_ARGS"}, "")),

		ChunkSize:         getEnvIntAny([]string{"DRIFTCAST_CHUNK_SIZE"}, 16384),
		BurstCap:          getEnvIntAny([]string{"DRIFTCAST_BURST_CAP"}, 10),
		ListenerQueueCap:  getEnvIntAny([]string{"DRIFTCAST_LISTENER_QUEUE_CAP"}, 500),
		PrefetchCap:       getEnvIntAny([]string{"DRIFTCAST_PREFETCH_CAP"}, 3),
		MinValidBytes:     int64(getEnvIntAny([]string{"DRIFTCAST_MIN_VALID_BYTES"}, 100000)),
		HistoryWindow:     getEnvIntAny([]string{"DRIFTCAST_HISTORY_WINDOW"}, 5),
		FetchTimeout:      time.Duration(getEnvIntAny([]string{"DRIFTCAST_FETCH_TIMEOUT_SECONDS"}, 30)) * time.Second,
		FetchRateLimitRPS: getEnvFloatAny([]string{"DRIFTCAST_FETCH_RATE_LIMIT_PER_SEC"}, 4.0),

		RedisAddr:     getEnvAny([]string{"DRIFTCAST_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"DRIFTCAST_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"DRIFTCAST_REDIS_DB"}, 0),

		S3Bucket:       getEnvAny([]string{"DRIFTCAST_S3_BUCKET"}, ""),
		S3Region:       getEnvAny([]string{"DRIFTCAST_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:     getEnvAny([]string{"DRIFTCAST_S3_ENDPOINT"}, ""),
		S3AccessKeyID:  getEnvAny([]string{"DRIFTCAST_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretKey:    getEnvAny([]string{"DRIFTCAST_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3UsePathStyle: getEnvBoolAny([]string{"DRIFTCAST_S3_USE_PATH_STYLE"}, false),

		WebRTCEnabled: getEnvBoolAny([]string{"DRIFTCAST_WEBRTC_ENABLED"}, false),
		WebRTCSTUNURL: getEnvAny([]string{"DRIFTCAST_WEBRTC_STUN_URL"}, "stun:stun.l.google.com:19302"),
		WebRTCTURNURL: getEnvAny([]string{"DRIFTCAST_WEBRTC_TURN_URL"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"DRIFTCAST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"DRIFTCAST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"DRIFTCAST_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.CataloguePath == "" {
		return nil, fmt.Errorf("DRIFTCAST_CATALOGUE_PATH must be provided")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("DRIFTCAST_CHUNK_SIZE must be positive")
	}
	if cfg.BurstCap <= 0 {
		return nil, fmt.Errorf("DRIFTCAST_BURST_CAP must be positive")
	}
	if cfg.ListenerQueueCap <= 0 {
		return nil, fmt.Errorf("DRIFTCAST_LISTENER_QUEUE_CAP must be positive")
	}
	if cfg.PrefetchCap <= 0 {
		return nil, fmt.Errorf("DRIFTCAST_PREFETCH_CAP must be positive")
	}

	return cfg, nil
}

func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
