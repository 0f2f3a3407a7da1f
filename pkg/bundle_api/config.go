package bundle_api

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the service needs at construction time.
// Core packages never read the environment themselves.
type Config struct {
	ListenAddr  string
	DatabaseDSN string
	UploadDir   string
	MirrorRoot  string
	Retention   time.Duration
}

// ConfigFromEnv builds a Config from the process environment, falling
// back to the historical defaults (sqlite next to the uploads, 12 hour
// retention, the Sugar Labs mirror).
func ConfigFromEnv() Config {
	cfg := Config{
		ListenAddr:  ":8000",
		DatabaseDSN: "data/data.db",
		UploadDir:   "data/uploads",
		MirrorRoot:  "https://download.sugarlabs.org/activities2/",
		Retention:   12 * time.Hour,
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("MIRROR_ROOT"); v != "" {
		cfg.MirrorRoot = v
	}
	if v := os.Getenv("DELETE_AFTER"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Retention = time.Duration(secs) * time.Second
		}
	}

	return cfg
}
