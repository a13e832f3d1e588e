package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load builds the process configuration once from the environment. Nothing
// here is mutated afterwards; every component receives the struct by
// reference.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := intEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 {
		return nil, errors.New("PORT must be positive")
	}
	cfg.Server.Port = port

	if cfg.Server.ReadTimeout, err = durationEnv("READ_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = durationEnv("WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	maxUpload, err := intEnv("MAX_UPLOAD_MB", 15)
	if err != nil {
		return nil, err
	}
	cfg.Upload.MaxUploadMB = int64(maxUpload)

	maxMem, err := intEnv("MAX_MULTIPART_MEMORY_MB", 32)
	if err != nil {
		return nil, err
	}
	cfg.Upload.MaxMultipartMemoryMB = int64(maxMem)

	rps, err := floatEnv("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, err
	}
	cfg.Upload.RequestsPerSecond = rps
	if cfg.Upload.Burst, err = intEnv("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	cfg.CORS.AllowedOrigins = listEnv("ALLOW_ORIGINS")

	cfg.Database.DSN = getEnv("DATABASE_DSN", "")
	if cfg.Database.DSN == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	cfg.Redis.Nodes = listEnv("REDIS_NODES")
	if len(cfg.Redis.Nodes) == 0 {
		return nil, errors.New("REDIS_NODES is required")
	}
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if cfg.Redis.DatabaseID, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.HealthCheckInterval, err = durationEnv("REDIS_HEALTH_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis.DialTimeout, err = durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis.ReadTimeout, err = durationEnv("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis.WriteTimeout, err = durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	cfg.R2.AccountID = getEnv("R2_ACCOUNT_ID", "")
	cfg.R2.BucketName = getEnv("R2_BUCKET", "")
	cfg.R2.AccessKeyID = getEnv("R2_ACCESS_KEY_ID", "")
	cfg.R2.SecretKey = getEnv("R2_SECRET_ACCESS_KEY", "")
	cfg.R2.Endpoint = getEnv("R2_ENDPOINT", "")
	cfg.R2.PublicBaseURL = strings.TrimRight(getEnv("R2_PUBLIC_BASE_URL", ""), "/")
	if cfg.R2.BucketName == "" {
		return nil, errors.New("R2_BUCKET is required")
	}
	if cfg.R2.AccountID == "" && cfg.R2.Endpoint == "" {
		return nil, errors.New("either R2_ACCOUNT_ID or R2_ENDPOINT is required")
	}
	if cfg.R2.AccessKeyID == "" || cfg.R2.SecretKey == "" {
		return nil, errors.New("R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY are required")
	}
	if cfg.R2.MaxRetries, err = intEnv("R2_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.R2.RetryBaseDelay, err = durationEnv("R2_RETRY_BASE_DELAY", 300*time.Millisecond); err != nil {
		return nil, err
	}

	cfg.Tokens.Secret = strings.TrimSpace(getEnv("TOKEN_SECRET", ""))
	if len(cfg.Tokens.Secret) < 32 {
		return nil, errors.New("TOKEN_SECRET must be at least 32 characters")
	}
	if cfg.Tokens.TTL, err = durationEnv("TOKEN_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	cfg.Janitor.Enabled = boolEnv("JANITOR_ENABLED", false)
	cfg.Janitor.Stream = getEnv("JANITOR_STREAM", "imgc:orphans")
	cfg.Janitor.Group = getEnv("JANITOR_GROUP", "janitor")
	cfg.Janitor.Consumer = getEnv("JANITOR_CONSUMER", hostnameOr("janitor-1"))
	if cfg.Janitor.Workers, err = intEnv("JANITOR_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.Janitor.MaxAttempts, err = intEnv("JANITOR_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	maxLen, err := intEnv("JANITOR_MAX_LEN", 10000)
	if err != nil {
		return nil, err
	}
	cfg.Janitor.MaxLen = int64(maxLen)
	if cfg.Janitor.BackoffBase, err = durationEnv("JANITOR_BACKOFF_BASE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Janitor.BlockTimeout, err = durationEnv("JANITOR_BLOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	cfg.Sentry.DSN = getEnv("SENTRY_DSN", "")
	cfg.Sentry.Environment = getEnv("SENTRY_ENVIRONMENT", "development")

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func listEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return dur, nil
}

func boolEnv(key string, def bool) bool {
	val := getEnv(key, "")
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func hostnameOr(def string) string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return def
}
