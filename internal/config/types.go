package config

import "time"

type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	CORS     CORSConfig
	Database DatabaseConfig
	Redis    RedisConfig
	R2       R2Config
	Tokens   TokenConfig
	Janitor  JanitorConfig
	Sentry   SentryConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type UploadConfig struct {
	MaxUploadMB          int64
	MaxMultipartMemoryMB int64
	RequestsPerSecond    float64
	Burst                int
}

type CORSConfig struct {
	// AllowedOrigins holds exact origins plus *.suffix wildcard entries.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	Nodes               []string
	Password            string
	DatabaseID          int
	HealthCheckInterval time.Duration
	DialTimeout         time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
}

type R2Config struct {
	AccountID      string
	BucketName     string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string // optional override, defaults to the R2 account endpoint
	PublicBaseURL  string // when set, upload responses include public URLs
	MaxRetries     int
	RetryBaseDelay time.Duration
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type JanitorConfig struct {
	Enabled      bool
	Stream       string        // redis stream name
	Group        string        // consumer group name
	Consumer     string        // consumer name within the group
	Workers      int           // number of concurrent goroutines
	MaxAttempts  int           // max delete attempts before giving up
	MaxLen       int64         // stream max length before trim
	BackoffBase  time.Duration // base retry delay
	BlockTimeout time.Duration // XREADGROUP block timeout
}

type SentryConfig struct {
	DSN         string
	Environment string
}
