// Package config provides configuration loading for the utility server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NullAggregatorID owns sites registered directly by device certificates.
const NullAggregatorID int64 = 0

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sep2     Sep2Config     `mapstructure:"sep2"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	AzureAD  AzureADConfig  `mapstructure:"azure_ad"`
	NMI      NMIConfig      `mapstructure:"nmi"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// AdminConfig holds credentials for the JSON management API. ReadUsername
// may only perform GETs.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ReadUsername string `mapstructure:"read_username"`
	ReadPassword string `mapstructure:"read_password"`
	// RateLimitPerMinute bounds admin requests per credential.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	// AllowedOrigins is the CORS allow-list for browser-based tooling.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
}

// DatabaseConfig holds PostgreSQL configuration. URL, when set, wins over
// the discrete fields.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns the postgres:// URL used by golang-migrate.
func (c DatabaseConfig) MigrationURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Sep2Config holds protocol-surface configuration.
type Sep2Config struct {
	// CertHeader carries the forwarded client TLS material (PEM or
	// SHA-256 fingerprint) from the terminating proxy.
	CertHeader string `mapstructure:"cert_header"`
	// AllowDeviceRegistration permits non-aggregator certs to register.
	AllowDeviceRegistration bool `mapstructure:"allow_device_registration"`
	// HrefPrefix is prepended to every generated href.
	HrefPrefix string `mapstructure:"href_prefix"`
	// IanaPEN is embedded in every MRID minted by this deployment.
	IanaPEN uint32 `mapstructure:"iana_pen"`
	// InstallCSIPV11aOptInMiddleware enables the namespace-swap shim for
	// clients that have not opted in to the v1.1a namespace.
	InstallCSIPV11aOptInMiddleware bool `mapstructure:"install_csip_v11a_opt_in_middleware"`
	// Timezone is the default site timezone served from /tm.
	Timezone string `mapstructure:"timezone"`

	// Fallback default-control limits, watts. Nil = field absent.
	DefaultDOEImportActiveWatts *float64 `mapstructure:"default_doe_import_active_watts"`
	DefaultDOEExportActiveWatts *float64 `mapstructure:"default_doe_export_active_watts"`
	DefaultDOEGenerationWatts   *float64 `mapstructure:"default_doe_generation_watts"`
	DefaultDOELoadWatts         *float64 `mapstructure:"default_doe_load_watts"`
	DefaultDOERampRatePercent   *int32   `mapstructure:"default_doe_ramp_rate_percent"`
}

// NotifyConfig holds pub/sub configuration.
type NotifyConfig struct {
	// Enabled gates the whole notification engine.
	Enabled bool `mapstructure:"enabled"`
	// RabbitMQBrokerURL selects the AMQP broker; empty runs in-memory.
	RabbitMQBrokerURL string `mapstructure:"rabbit_mq_broker_url"`
	// TransmitTimeout bounds each webhook POST.
	TransmitTimeout time.Duration `mapstructure:"transmit_timeout"`
}

// AzureADConfig holds optional managed-identity configuration. TenantID
// empty disables the whole feature.
type AzureADConfig struct {
	TenantID      string        `mapstructure:"tenant_id"`
	ClientID      string        `mapstructure:"client_id"`
	IssuerID      string        `mapstructure:"issuer_id"`
	DBResourceID  string        `mapstructure:"db_resource_id"`
	DBRefreshSecs time.Duration `mapstructure:"db_refresh_secs"`
}

// Enabled reports whether managed-identity auth is configured.
func (c AzureADConfig) Enabled() bool {
	return c.TenantID != ""
}

// NMIConfig holds connection-point identifier validation settings.
type NMIConfig struct {
	ValidationEnabled       bool   `mapstructure:"validation_enabled"`
	ValidationParticipantID string `mapstructure:"validation_participant_id"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/csip-core")

	v.SetEnvPrefix("CSIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Nested struct env binding is unreliable with AutomaticEnv alone.
	v.BindEnv("database.url", "CSIP_DATABASE_URL")
	v.BindEnv("sep2.cert_header", "CSIP_SEP2_CERT_HEADER")
	v.BindEnv("sep2.iana_pen", "CSIP_SEP2_IANA_PEN")
	v.BindEnv("notify.rabbit_mq_broker_url", "CSIP_NOTIFY_RABBIT_MQ_BROKER_URL")
	v.BindEnv("azure_ad.tenant_id", "CSIP_AZURE_AD_TENANT_ID")
	v.BindEnv("azure_ad.client_id", "CSIP_AZURE_AD_CLIENT_ID")
	v.BindEnv("azure_ad.issuer_id", "CSIP_AZURE_AD_ISSUER_ID")
	v.BindEnv("azure_ad.db_resource_id", "CSIP_AZURE_AD_DB_RESOURCE_ID")
	v.BindEnv("admin.password", "CSIP_ADMIN_PASSWORD")
	v.BindEnv("admin.read_password", "CSIP_ADMIN_READ_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8443)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "csip")
	v.SetDefault("database.password", "csip")
	v.SetDefault("database.database", "csip")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sep2.cert_header", "x-forwarded-client-cert")
	v.SetDefault("sep2.allow_device_registration", false)
	v.SetDefault("sep2.href_prefix", "")
	v.SetDefault("sep2.iana_pen", 0)
	v.SetDefault("sep2.install_csip_v11a_opt_in_middleware", false)
	v.SetDefault("sep2.timezone", "Australia/Brisbane")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.rabbit_mq_broker_url", "")
	v.SetDefault("notify.transmit_timeout", "60s")

	v.SetDefault("azure_ad.db_refresh_secs", "14400s")

	v.SetDefault("nmi.validation_enabled", false)
	v.SetDefault("nmi.validation_participant_id", "")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.read_username", "readonly")
	v.SetDefault("admin.rate_limit_per_minute", 600)
}
