package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Nova      NovaConfig      `mapstructure:"nova"`
	Pass      PassConfig      `mapstructure:"pass"`
	Push      PushConfig      `mapstructure:"push"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Secondary SecondaryConfig `mapstructure:"secondary"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// AESConfig carries the at-rest encryption key ring. Keys is an ordered list
// of 32-byte hex-encoded keys: the first encrypts, all are tried on decrypt
// so keys can be rotated without re-encrypting stored secrets up front.
type AESConfig struct {
	Keys []string `mapstructure:"keys"`
}

// NovaConfig holds ledger-level tunables.
type NovaConfig struct {
	FeeRateBps int64 `mapstructure:"fee_rate_bps"` // merchant fee, basis points of Nova redeemed
}

// PassConfig identifies the wallet pass this service issues.
type PassConfig struct {
	TypeID       string `mapstructure:"type_id"`       // e.g. pass.com.nerava.nova
	TeamID       string `mapstructure:"team_id"`       // issuer team identifier
	Organization string `mapstructure:"organization"`  // display name on the pass
	SerialPrefix string `mapstructure:"serial_prefix"` // prepended to the wallet pass token
}

type PushConfig struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Workers    int           `mapstructure:"workers"`
}

// ProcessorConfig points at the OAuth-connected payment processor used to
// verify order totals during redemption.
type ProcessorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecondaryConfig points at the secondary wallet platform that accepts
// direct object updates (fire-and-forget sink).
type SecondaryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: NOVA_.
// Nested keys use underscore: NOVA_DATABASE_HOST, NOVA_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "nova")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "nova-ledger")
	v.SetDefault("aes.keys", []string{})
	v.SetDefault("nova.fee_rate_bps", 1500)
	v.SetDefault("pass.type_id", "pass.com.nerava.nova")
	v.SetDefault("pass.team_id", "")
	v.SetDefault("pass.organization", "Nerava")
	v.SetDefault("pass.serial_prefix", "nova-")
	v.SetDefault("push.gateway_url", "")
	v.SetDefault("push.timeout", "5s")
	v.SetDefault("push.workers", 1)
	v.SetDefault("processor.base_url", "")
	v.SetDefault("processor.timeout", "5s")
	v.SetDefault("secondary.base_url", "")
	v.SetDefault("secondary.enabled", false)
	v.SetDefault("secondary.timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: NOVA_DATABASE_HOST -> database.host
	v.SetEnvPrefix("NOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
