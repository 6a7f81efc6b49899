package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TOKENS"

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	GRPC       GRPCSettings       `mapstructure:"grpc"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	JWT        JWTSettings        `mapstructure:"jwt"`
	Revocation RevocationSettings `mapstructure:"revocation"`
	Audit      AuditSettings      `mapstructure:"audit"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	RateLimit  RateLimitSettings  `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

// DSN renders a libpq style connection URL.
func (p PostgresSettings) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	q := u.Query()
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisSettings configures the cache tier. Timeouts are kept short so the
// revocation store fails over to Postgres instead of stalling requests.
type RedisSettings struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DB           int           `mapstructure:"db"`
	Password     string        `mapstructure:"password"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	ClientID    string   `mapstructure:"client_id"`
}

type JWTSettings struct {
	KeyDirectory      string        `mapstructure:"key_directory"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          string        `mapstructure:"audience"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `mapstructure:"refresh_token_ttl"`
	RememberMeTTL     time.Duration `mapstructure:"remember_me_ttl"`
	AllowEphemeralKey bool          `mapstructure:"allow_ephemeral_key"`
}

type RevocationSettings struct {
	DegradationPolicy    string        `mapstructure:"degradation_policy"`
	MinBlacklistTTL      time.Duration `mapstructure:"min_blacklist_ttl"`
	DefaultBlacklistTTL  time.Duration `mapstructure:"default_blacklist_ttl"`
	TokenVersionTTL      time.Duration `mapstructure:"token_version_ttl"`
	BreakerRecheck       time.Duration `mapstructure:"breaker_recheck"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	SweepReplayBatchSize int           `mapstructure:"sweep_replay_batch_size"`
}

type AuditSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings bounds login attempts per client IP. A zero limit disables it.
type RateLimitSettings struct {
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	WindowDuration   time.Duration `mapstructure:"window_duration"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.shutdown_timeout",
		"grpc.enabled",
		"grpc.host",
		"grpc.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.query_timeout",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"redis.pool_size",
		"redis.min_idle_conns",
		"redis.dial_timeout",
		"redis.read_timeout",
		"redis.write_timeout",
		"redis.pool_timeout",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.client_id",
		"jwt.key_directory",
		"jwt.issuer",
		"jwt.audience",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.remember_me_ttl",
		"jwt.allow_ephemeral_key",
		"revocation.degradation_policy",
		"revocation.min_blacklist_ttl",
		"revocation.default_blacklist_ttl",
		"revocation.token_version_ttl",
		"revocation.breaker_recheck",
		"revocation.sweep_interval",
		"revocation.sweep_replay_batch_size",
		"audit.timeout",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.login_max_attempts",
		"rate_limit.window_duration",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("jwt.access_token_ttl must be positive")
	}
	if c.JWT.RefreshTokenTTL < c.JWT.AccessTokenTTL {
		return fmt.Errorf("jwt.refresh_token_ttl must not be shorter than the access token ttl")
	}
	if c.JWT.RememberMeTTL < c.JWT.RefreshTokenTTL {
		return fmt.Errorf("jwt.remember_me_ttl must not be shorter than jwt.refresh_token_ttl")
	}
	if c.Revocation.MinBlacklistTTL <= 0 {
		return fmt.Errorf("revocation.min_blacklist_ttl must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Revocation.DegradationPolicy)) {
	case "strict", "lenient", "fail-open", "fail_open":
	default:
		return fmt.Errorf("revocation.degradation_policy must be strict or lenient, got %q", c.Revocation.DegradationPolicy)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must be set when kafka is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "token-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout", "10s")

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "tokens")
	v.SetDefault("postgres.password", "tokens_password")
	v.SetDefault("postgres.database", "tokens")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.query_timeout", "500ms")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "tokens")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 4)
	v.SetDefault("redis.dial_timeout", "200ms")
	v.SetDefault("redis.read_timeout", "100ms")
	v.SetDefault("redis.write_timeout", "100ms")
	v.SetDefault("redis.pool_timeout", "150ms")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "tokens")
	v.SetDefault("kafka.client_id", "token-service")

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.issuer", "token-service")
	v.SetDefault("jwt.audience", "platform")
	v.SetDefault("jwt.access_token_ttl", "1h")
	v.SetDefault("jwt.refresh_token_ttl", "168h")
	v.SetDefault("jwt.remember_me_ttl", "720h")
	v.SetDefault("jwt.allow_ephemeral_key", false)

	v.SetDefault("revocation.degradation_policy", "strict")
	v.SetDefault("revocation.min_blacklist_ttl", "60s")
	v.SetDefault("revocation.default_blacklist_ttl", "168h")
	v.SetDefault("revocation.token_version_ttl", "8760h")
	v.SetDefault("revocation.breaker_recheck", "60s")
	v.SetDefault("revocation.sweep_interval", "5m")
	v.SetDefault("revocation.sweep_replay_batch_size", 500)

	v.SetDefault("audit.timeout", "2s")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "token-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.window_duration", "1m")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
