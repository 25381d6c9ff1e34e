package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Redirect  RedirectConfig  `mapstructure:"redirect"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// BaseURL is the public origin used to build short URLs and QR asset links.
	BaseURL   string `mapstructure:"base_url"`
	StaticDir string `mapstructure:"static_dir"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTAlgorithm  string        `mapstructure:"jwt_algorithm"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
}

type RedirectConfig struct {
	// EnforceLinkState controls whether inactive, expired, or over-limit
	// links answer 410 instead of redirecting. Deployment policy, not a
	// hard invariant.
	EnforceLinkState bool          `mapstructure:"enforce_link_state"`
	CallbackTimeout  time.Duration `mapstructure:"callback_timeout"`
	GeoTimeout       time.Duration `mapstructure:"geo_timeout"`
	GeoBaseURL       string        `mapstructure:"geo_base_url"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.static_dir", "./static")

	v.SetDefault("auth.jwt_algorithm", "HS256")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("redirect.enforce_link_state", true)
	v.SetDefault("redirect.callback_timeout", "3s")
	v.SetDefault("redirect.geo_timeout", "3s")
	v.SetDefault("redirect.geo_base_url", "https://ipwho.is")
	v.SetDefault("redirect.cache_ttl", "5m")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.max_age", "8760h")
	v.SetDefault("retention.interval", "1h")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.addr", "LISTEN_ADDR")
	v.BindEnv("server.base_url", "BASE_URL")
	v.BindEnv("server.static_dir", "STATIC_DIR")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.jwt_algorithm", "JWT_ALGORITHM")
	v.BindEnv("auth.admin_user", "ADMIN_USER")
	v.BindEnv("auth.admin_password", "ADMIN_PASSWORD")

	// Redirect pipeline
	v.BindEnv("redirect.enforce_link_state", "ENFORCE_LINK_STATE")
	v.BindEnv("redirect.geo_base_url", "GEO_BASE_URL")
}
