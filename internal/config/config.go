package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/regulacao-api/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       logger.Config   `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MetricsPath     string        `mapstructure:"metrics_path"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
	Issuer      string `mapstructure:"issuer"`
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"` // minio or memory
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	MaxSize   int64  `mapstructure:"max_size"`
}

type BrokerConfig struct {
	Driver string         `mapstructure:"driver"` // redis or rabbitmq
	Redis  RedisConfig    `mapstructure:"redis"`
	AMQP   RabbitMQConfig `mapstructure:"amqp"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QuotaConfig struct {
	Enforce  bool          `mapstructure:"enforce"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type IntakeConfig struct {
	DuplicateWindowDays int `mapstructure:"duplicate_window_days"`
	Concurrency         int `mapstructure:"concurrency"`
}

type NotifyConfig struct {
	ResultBaseURL string `mapstructure:"result_base_url"`
	CountryCode   string `mapstructure:"country_code"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	BcryptCost        int      `mapstructure:"bcrypt_cost"`
	PasswordMinLength int      `mapstructure:"password_min_length"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// BootstrapConfig seeds the first admin account on an empty staff table.
type BootstrapConfig struct {
	AdminName     string `mapstructure:"admin_name"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// Secrets are read from the environment only and override the file.
type Secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	StorageAccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `envconfig:"STORAGE_SECRET_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	AdminPassword    string `envconfig:"ADMIN_PASSWORD"`
}

const EnvPrefix = "REGULACAO"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<20)
	v.SetDefault("server.metrics_path", "/health/metrics")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("jwt.expiry_hours", 12)
	v.SetDefault("jwt.issuer", "regulacao-api")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.driver", "minio")
	v.SetDefault("storage.bucket", "regulacao")
	v.SetDefault("storage.max_size", 10<<20)

	v.SetDefault("broker.driver", "redis")
	v.SetDefault("broker.redis.url", "redis://localhost:6379/0")
	v.SetDefault("broker.redis.max_retries", 3)
	v.SetDefault("broker.redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("broker.redis.pool_size", 10)
	v.SetDefault("broker.amqp.exchange", "regulacao.notifications")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("quota.enforce", false)
	v.SetDefault("quota.cache_ttl", 30*time.Second)

	v.SetDefault("intake.duplicate_window_days", 30)
	v.SetDefault("intake.concurrency", 4)

	v.SetDefault("notify.country_code", "55")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.password_min_length", 8)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 500*time.Millisecond)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("bootstrap.admin_name", "Administrador")
}

// LoadConfig reads config.yml from the usual locations, applies
// REGULACAO_* environment overrides and then the secrets.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(EnvPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.StorageAccessKey != "" {
		c.Storage.AccessKey = s.StorageAccessKey
	}
	if s.StorageSecretKey != "" {
		c.Storage.SecretKey = s.StorageSecretKey
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
	if s.AdminPassword != "" {
		c.Bootstrap.AdminPassword = s.AdminPassword
	}
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	var missing []string
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.name")
	}
	if c.Storage.Driver == "minio" && c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	if c.Notify.ResultBaseURL == "" {
		missing = append(missing, "notify.result_base_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	switch c.Broker.Driver {
	case "redis", "rabbitmq":
	default:
		return fmt.Errorf("unknown broker driver %q", c.Broker.Driver)
	}
	switch c.Storage.Driver {
	case "minio", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
