package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS Services
	AWSRegion    string
	SESFromEmail string
	SNSRegion    string // AWS region for SNS (SMS)

	// Ops queue for exhausted-delivery reports
	OpsQueueURL    string
	OpsQueueRegion string

	// Webhook config
	WebhookTimeout int // Timeout for contact webhook requests in seconds

	// Dispatch config
	DispatchParallelism int           // Concurrent deliveries per trigger
	AttemptTimeout      time.Duration // Per-delivery attempt timeout
	RequireLocation     bool          // Reject triggers without a position

	// Retry config
	MaxAttempts       int           // Total attempts per recipient before exhaustion
	RetryBase         time.Duration // First retry delay, doubles per attempt
	RetryMax          time.Duration // Backoff cap
	RetryPollInterval time.Duration // How often the retry loop scans the ledger
	RetryBatchSize    int           // Max rows claimed per scan
	PendingGrace      time.Duration // Age before a stranded pending row is reclaimed

	// Session config
	SessionTTL time.Duration

	// Rate limiting for the trigger endpoint
	TriggerRateLimit  int
	TriggerRateWindow time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "callout",
		DBPassword: "",
		DBName:     "callout",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion:    "us-east-1",
		SESFromEmail: "alerts@callout.local",

		WebhookTimeout: 30,

		DispatchParallelism: 4,
		AttemptTimeout:      15 * time.Second,

		MaxAttempts:       5,
		RetryBase:         30 * time.Second,
		RetryMax:          10 * time.Minute,
		RetryPollInterval: 15 * time.Second,
		RetryBatchSize:    25,
		PendingGrace:      2 * time.Minute,

		SessionTTL: 30 * 24 * time.Hour,

		TriggerRateLimit:  10,
		TriggerRateWindow: time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	// SNS config for SMS
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	// Ops queue config
	if url := os.Getenv("OPS_QUEUE_URL"); url != "" {
		cfg.OpsQueueURL = url
	}

	if region := os.Getenv("OPS_QUEUE_REGION"); region != "" {
		cfg.OpsQueueRegion = region
	} else {
		cfg.OpsQueueRegion = cfg.AWSRegion
	}

	// Webhook config
	if timeout := os.Getenv("WEBHOOK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.WebhookTimeout = t
	}

	// Dispatch config
	if par := os.Getenv("DISPATCH_PARALLELISM"); par != "" {
		p, err := strconv.Atoi(par)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_PARALLELISM: %w", err)
		}
		cfg.DispatchParallelism = p
	}

	if timeout := os.Getenv("ATTEMPT_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid ATTEMPT_TIMEOUT: %w", err)
		}
		cfg.AttemptTimeout = d
	}

	if req := os.Getenv("REQUIRE_LOCATION"); req != "" {
		b, err := strconv.ParseBool(req)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRE_LOCATION: %w", err)
		}
		cfg.RequireLocation = b
	}

	// Retry config
	if attempts := os.Getenv("MAX_ATTEMPTS"); attempts != "" {
		a, err := strconv.Atoi(attempts)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = a
	}

	if base := os.Getenv("RETRY_BASE"); base != "" {
		d, err := time.ParseDuration(base)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BASE: %w", err)
		}
		cfg.RetryBase = d
	}

	if max := os.Getenv("RETRY_MAX"); max != "" {
		d, err := time.ParseDuration(max)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_MAX: %w", err)
		}
		cfg.RetryMax = d
	}

	if interval := os.Getenv("RETRY_POLL_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_POLL_INTERVAL: %w", err)
		}
		cfg.RetryPollInterval = d
	}

	if size := os.Getenv("RETRY_BATCH_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_BATCH_SIZE: %w", err)
		}
		cfg.RetryBatchSize = s
	}

	if grace := os.Getenv("PENDING_GRACE"); grace != "" {
		d, err := time.ParseDuration(grace)
		if err != nil {
			return nil, fmt.Errorf("invalid PENDING_GRACE: %w", err)
		}
		cfg.PendingGrace = d
	}

	// Session config
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}

	// Rate limit config
	if limit := os.Getenv("TRIGGER_RATE_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid TRIGGER_RATE_LIMIT: %w", err)
		}
		cfg.TriggerRateLimit = l
	}

	if window := os.Getenv("TRIGGER_RATE_WINDOW"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return nil, fmt.Errorf("invalid TRIGGER_RATE_WINDOW: %w", err)
		}
		cfg.TriggerRateWindow = d
	}

	return cfg, nil
}
