package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment   string
	HTTPPort      string
	DatabasePath  string
	DataDir       string
	RulesetDir    string
	SnapshotDir   string
	EngineAdmin   string // Caddy admin API base URL
	NotifyURLs    string // comma-separated shoutrrr URLs, optional
	RefreshCron   string // cron spec for ruleset refresh
	ACMEEmail     string
	ACMEStaging   bool
	AccessLogPath string
	ApplyRetries  int
	ApplyDebug    bool
}

// Load reads env vars and falls back to defaults so the server can boot with
// zero configuration.
func Load() (Config, error) {
	dataDir := getEnv("AEGIS_DATA_DIR", "data")
	cfg := Config{
		Environment:   getEnv("AEGIS_ENV", "development"),
		HTTPPort:      getEnv("AEGIS_HTTP_PORT", "8080"),
		DatabasePath:  getEnv("AEGIS_DB_PATH", filepath.Join(dataDir, "aegis.db")),
		DataDir:       dataDir,
		RulesetDir:    getEnv("AEGIS_RULESET_DIR", filepath.Join(dataDir, "rulesets")),
		SnapshotDir:   getEnv("AEGIS_SNAPSHOT_DIR", filepath.Join(dataDir, "snapshots")),
		EngineAdmin:   getEnv("AEGIS_ENGINE_ADMIN", "http://localhost:2019"),
		NotifyURLs:    getEnv("AEGIS_NOTIFY_URLS", ""),
		RefreshCron:   getEnv("AEGIS_RULESET_REFRESH_CRON", "0 3 * * *"),
		ACMEEmail:     getEnv("AEGIS_ACME_EMAIL", ""),
		ACMEStaging:   getEnv("AEGIS_ACME_STAGING", "") == "true",
		AccessLogPath: getEnv("AEGIS_ACCESS_LOG", ""),
		ApplyRetries:  getEnvInt("AEGIS_APPLY_RETRIES", 3),
		ApplyDebug:    getEnv("AEGIS_ENV", "development") == "development",
	}

	for _, dir := range []string{filepath.Dir(cfg.DatabasePath), cfg.RulesetDir, cfg.SnapshotDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
