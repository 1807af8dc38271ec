package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	platformstrings "tcr/pkg/platform/strings"
)

// Config holds application configuration.
type Config struct {
	Server     Server
	Log        LogConfig
	Auth       AuthConfig
	Registry   RegistryConfig
	Arbitrator ArbitratorConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Audit      AuditConfig
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Metrics    MetricsConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string
}

// AuthConfig holds party token settings.
type AuthConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTAudience   string        `mapstructure:"jwt_audience"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// RegistryConfig is the raw registry parameter set. Addresses stay strings
// here; the server parses them at startup.
type RegistryConfig struct {
	Arbitrator                 string
	ArbitratorExtraData        string        `mapstructure:"arbitrator_extra_data"`
	MetaEvidence               string        `mapstructure:"meta_evidence"`
	Blacklist                  bool          `mapstructure:"blacklist"`
	AppendOnly                 bool          `mapstructure:"append_only"`
	RechallengePossible        bool          `mapstructure:"rechallenge_possible"`
	Stake                      uint64        `mapstructure:"stake"`
	ChallengePeriod            time.Duration `mapstructure:"challenge_period"`
	ArbitrationFeesWaitingTime time.Duration `mapstructure:"arbitration_fees_waiting_time"`
	FeeGovernor                string        `mapstructure:"fee_governor"`
	FeeStake                   uint64        `mapstructure:"fee_stake"`
}

// ArbitratorConfig selects and tunes the arbitrator backend.
type ArbitratorConfig struct {
	// Mode is "centralized" (in-process) or "http".
	Mode    string
	BaseURL string `mapstructure:"base_url"`
	// Fee is the flat arbitration cost of the centralized arbitrator.
	Fee     uint64
	Timeout time.Duration
	// TokenHash is the bcrypt hash of the token arbitrator callbacks present.
	TokenHash        string `mapstructure:"token_hash"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	SuccessThreshold int    `mapstructure:"success_threshold"`
}

// DatabaseConfig holds Postgres settings. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL          string
	Migrate      bool
	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RulingTTL    time.Duration `mapstructure:"ruling_ttl"`
}

// KafkaConfig holds broker and topic settings. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers          []string
	ClientID         string `mapstructure:"client_id"`
	RulingTopic      string `mapstructure:"ruling_topic"`
	RulingGroup      string `mapstructure:"ruling_group"`
	AuditTopicPrefix string `mapstructure:"audit_topic_prefix"`
	AuditGroup       string `mapstructure:"audit_group"`
	EnsureTopics     bool   `mapstructure:"ensure_topics"`
}

// AuditConfig tunes the outbox relay.
type AuditConfig struct {
	RelayInterval  time.Duration `mapstructure:"relay_interval"`
	RelayBatchSize int           `mapstructure:"relay_batch_size"`
}

// RateLimitConfig caps authenticated mutations per party. The window is
// shared through Redis when it is configured.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from an optional file and the environment.
// Env var overrides use prefix TCR_, with "." replaced by "_"
// (TCR_REGISTRY_STAKE, TCR_KAFKA_BROKERS=a:9092,b:9092).
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if cfgPath := os.Getenv("TCR_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	v.SetEnvPrefix("TCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Kafka.Brokers = platformstrings.DedupeAndTrim(c.Kafka.Brokers)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")

	// Use a default for development - should be overridden in production
	v.SetDefault("auth.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("auth.jwt_issuer", "tcr")
	v.SetDefault("auth.jwt_audience", "tcr-api")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("registry.arbitrator", "0x0000000000000000000000000000000000000a7b")
	v.SetDefault("registry.arbitrator_extra_data", "")
	v.SetDefault("registry.meta_evidence", "")
	v.SetDefault("registry.blacklist", false)
	v.SetDefault("registry.append_only", false)
	v.SetDefault("registry.rechallenge_possible", false)
	v.SetDefault("registry.stake", 10)
	v.SetDefault("registry.challenge_period", time.Hour)
	v.SetDefault("registry.arbitration_fees_waiting_time", time.Hour)
	v.SetDefault("registry.fee_governor", "")
	v.SetDefault("registry.fee_stake", 0)

	v.SetDefault("arbitrator.mode", "centralized")
	v.SetDefault("arbitrator.base_url", "")
	v.SetDefault("arbitrator.fee", 4)
	v.SetDefault("arbitrator.timeout", 5*time.Second)
	v.SetDefault("arbitrator.token_hash", "")
	v.SetDefault("arbitrator.failure_threshold", 5)
	v.SetDefault("arbitrator.success_threshold", 2)

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.ruling_ttl", 30*24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "tcr")
	v.SetDefault("kafka.ruling_topic", "tcr.rulings")
	v.SetDefault("kafka.ruling_group", "tcr-rulings")
	v.SetDefault("kafka.audit_topic_prefix", "tcr.audit")
	v.SetDefault("kafka.audit_group", "tcr-audit")
	v.SetDefault("kafka.ensure_topics", true)

	v.SetDefault("audit.relay_interval", time.Second)
	v.SetDefault("audit.relay_batch_size", 100)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("metrics.enabled", true)
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Registry.Stake == 0 {
		errs = append(errs, errors.New("registry.stake must be positive"))
	}
	if c.Registry.ChallengePeriod < 0 {
		errs = append(errs, errors.New("registry.challenge_period must not be negative"))
	}
	switch c.Arbitrator.Mode {
	case "centralized":
	case "http":
		if c.Arbitrator.BaseURL == "" {
			errs = append(errs, errors.New("arbitrator.base_url is required in http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("arbitrator.mode %q must be centralized or http", c.Arbitrator.Mode))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive when enabled"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwt_signing_key must be set"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether any broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
