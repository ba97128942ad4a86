package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the ingest daemon.
// Values are loaded from environment variables; see the validate subcommand
// output for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	// NotifyMode: "channel" (in-memory bus, single process) or "amqp".
	NotifyMode   string `json:"notify_mode"`
	AMQPURL      string `json:"amqp_url,omitempty"`
	AMQPExchange string `json:"amqp_exchange"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	Workers    int `json:"workers"`
	QueryLimit int `json:"query_limit"`

	ExecutionTimeout    time.Duration `json:"-"`
	ExecutionTimeoutStr string        `json:"execution_timeout"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`
	DrainTimeout           time.Duration `json:"-"`
	DrainTimeoutStr        string        `json:"drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	WatchdogEnabled      bool          `json:"watchdog_enabled"`
	WatchdogInterval     time.Duration `json:"-"`
	WatchdogIntervalStr  string        `json:"watchdog_interval"`
	// WatchdogThreshold must exceed ExecutionTimeout or the watchdog may
	// close executions that are still inside their deadline.
	WatchdogThreshold    time.Duration `json:"-"`
	WatchdogThresholdStr string        `json:"watchdog_threshold"`
	WatchdogBatchSize    int           `json:"watchdog_batch_size"`

	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		AMQPURL:                os.Getenv("AMQP_URL"),
		AMQPExchange:           os.Getenv("AMQP_EXCHANGE"),
		TickIntervalStr:        os.Getenv("TICK_INTERVAL"),
		ExecutionTimeoutStr:    os.Getenv("EXECUTION_TIMEOUT"),
		DBOpTimeoutStr:         os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:   os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:   os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DrainTimeoutStr:        os.Getenv("DRAIN_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		WatchdogEnabled:        os.Getenv("WATCHDOG_ENABLED") != "false",
		WatchdogIntervalStr:    os.Getenv("WATCHDOG_INTERVAL"),
		WatchdogThresholdStr:   os.Getenv("WATCHDOG_THRESHOLD"),
		AnalyticsRetentionStr:  os.Getenv("ANALYTICS_RETENTION"),
	}

	cfg.NotifyMode = os.Getenv("NOTIFY_MODE")
	if cfg.NotifyMode == "" {
		if cfg.AMQPURL != "" {
			cfg.NotifyMode = "amqp"
		} else {
			cfg.NotifyMode = "channel"
		}
	}

	if workersStr := os.Getenv("WORKER_COUNT"); workersStr != "" {
		if n, err := parseInt(workersStr); err == nil && n > 0 {
			cfg.Workers = n
		} else {
			log.Printf("config: invalid WORKER_COUNT %q (must be a positive integer), using default 4", workersStr)
		}
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}

	if limitStr := os.Getenv("QUERY_LIMIT"); limitStr != "" {
		if n, err := parseInt(limitStr); err == nil && n > 0 {
			cfg.QueryLimit = n
		} else {
			log.Printf("config: invalid QUERY_LIMIT %q (must be a positive integer), using default 100", limitStr)
		}
	}
	if cfg.QueryLimit == 0 {
		cfg.QueryLimit = 100
	}

	if batchStr := os.Getenv("WATCHDOG_BATCH_SIZE"); batchStr != "" {
		if batch, err := parseInt(batchStr); err == nil && batch > 0 {
			cfg.WatchdogBatchSize = batch
		}
	}
	if cfg.WatchdogBatchSize == 0 {
		cfg.WatchdogBatchSize = 100
	}

	cfg.CircuitBreakerThreshold = 5
	if thresholdStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); thresholdStr != "" {
		if n, err := parseInt(thresholdStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q (must be a non-negative integer), using default 5", thresholdStr)
		}
	}
	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 460911", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 460911
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	cfg.LeaderRetryIntervalStr = os.Getenv("LEADER_RETRY_INTERVAL")
	cfg.LeaderHeartbeatIntervalStr = os.Getenv("LEADER_HEARTBEAT_INTERVAL")

	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = "ingest.files"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.ExecutionTimeoutStr == "" {
		cfg.ExecutionTimeoutStr = "5m"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.DrainTimeoutStr == "" {
		cfg.DrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.WatchdogIntervalStr == "" {
		cfg.WatchdogIntervalStr = "5m"
	}
	if cfg.WatchdogThresholdStr == "" {
		cfg.WatchdogThresholdStr = "15m"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "720h"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.ExecutionTimeoutStr); err == nil {
		cfg.ExecutionTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DrainTimeoutStr); err == nil {
		cfg.DrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.WatchdogIntervalStr); err == nil {
		cfg.WatchdogInterval = d
	}
	if d, err := time.ParseDuration(cfg.WatchdogThresholdStr); err == nil {
		cfg.WatchdogThreshold = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		NotifyMode              string `json:"notify_mode"`
		AMQPURL                 string `json:"amqp_url,omitempty"`
		AMQPExchange            string `json:"amqp_exchange"`
		TickInterval            string `json:"tick_interval"`
		Workers                 int    `json:"workers"`
		QueryLimit              int    `json:"query_limit"`
		ExecutionTimeout        string `json:"execution_timeout"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		DrainTimeout            string `json:"drain_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		WatchdogEnabled         bool   `json:"watchdog_enabled"`
		WatchdogInterval        string `json:"watchdog_interval"`
		WatchdogThreshold       string `json:"watchdog_threshold"`
		WatchdogBatchSize       int    `json:"watchdog_batch_size"`
		AnalyticsRetention      string `json:"analytics_retention"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		NotifyMode:              c.NotifyMode,
		AMQPURL:                 maskSecret(c.AMQPURL),
		AMQPExchange:            c.AMQPExchange,
		TickInterval:            c.TickIntervalStr,
		Workers:                 c.Workers,
		QueryLimit:              c.QueryLimit,
		ExecutionTimeout:        c.ExecutionTimeoutStr,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		DrainTimeout:            c.DrainTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		WatchdogEnabled:         c.WatchdogEnabled,
		WatchdogInterval:        c.WatchdogIntervalStr,
		WatchdogThreshold:       c.WatchdogThresholdStr,
		WatchdogBatchSize:       c.WatchdogBatchSize,
		AnalyticsRetention:      c.AnalyticsRetentionStr,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://", "amqp://", "amqps://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
