// Package config provides runtime configuration for the console sync core.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the knobs for the transport, cache and pollers.
type Config struct {
	BaseURL        string        // REST endpoint, e.g. http://localhost:8000
	AuthToken      string        // optional bearer credential
	SeqDBPath      string        // SQLite file for the id allocator counters
	QuietPeriod    time.Duration // cache notification coalescing window
	JobsInterval   time.Duration // push-job poll interval
	RequestTimeout time.Duration
	BackoffMin     time.Duration // push-channel reconnect backoff floor
	BackoffMax     time.Duration // push-channel reconnect backoff ceiling
	Jitter         time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durenvms(key string, defMs int) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return time.Duration(defMs) * time.Millisecond
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(defMs) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		BaseURL:        getenv("ESL_BASE_URL", "http://localhost:8000"),
		AuthToken:      getenv("ESL_AUTH_TOKEN", ""),
		SeqDBPath:      getenv("ESL_SEQ_DB", "esl-seq.db"),
		QuietPeriod:    durenvms("ESL_QUIET_MS", 250),
		JobsInterval:   durenvms("ESL_JOBS_POLL_MS", 1000),
		RequestTimeout: durenvms("ESL_REQUEST_TIMEOUT_MS", 30000),
		BackoffMin:     durenvms("ESL_BACKOFF_MIN_MS", 1000),
		BackoffMax:     durenvms("ESL_BACKOFF_MAX_MS", 30000),
		Jitter:         durenvms("ESL_JITTER_MS", 300),
	}
}
