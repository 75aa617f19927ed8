// Package config loads the runtime configuration for the pgbr core's
// demo/CLI surface from the environment, the way the rest of the codebase
// reads IN_CONTAINER and friends directly with os.Getenv — gathered here
// into one struct and checked once at startup instead of scattered
// Getenv calls (spec.md §4.17/SPEC_FULL.md ambient stack).
package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds every environment-derived setting the pgbr binary needs.
type Config struct {
	RepoPath     string `validate:"required"`
	StanzaName   string `validate:"required"`
	BlockSize    int    `validate:"gt=0"`
	ChecksumSize int    `validate:"gte=3,lte=16"`
	CompressType string `validate:"omitempty,oneof=none gzip deflate zstd bzip2 lz4"`
	CipherPass   string
	MetricsAddr  string
	RedisAddr    string
	WorkerCount  int `validate:"gt=0"`
	InContainer  bool
}

var validate = validator.New()

// Load reads the Config from the process environment and validates it,
// applying the same defaults the teacher's CLI hard-codes inline
// (IN_CONTAINER, default ports) instead of failing on their absence.
func Load() (*Config, error) {
	cfg := &Config{
		RepoPath:     envDefault("PGBR_REPO_PATH", "./repo"),
		StanzaName:   envDefault("PGBR_STANZA", "main"),
		BlockSize:    envInt("PGBR_BLOCK_SIZE", 1024*1024),
		ChecksumSize: envInt("PGBR_CHECKSUM_SIZE", 6),
		CompressType: envDefault("PGBR_COMPRESS", "zstd"),
		CipherPass:   os.Getenv("PGBR_CIPHER_PASSPHRASE"),
		MetricsAddr:  envDefault("PGBR_METRICS_ADDR", ":9201"),
		RedisAddr:    envDefault("PGBR_REDIS_ADDR", "localhost:6379"),
		WorkerCount:  envInt("PGBR_WORKER_COUNT", 4),
		InContainer:  os.Getenv("IN_CONTAINER") == "true",
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
