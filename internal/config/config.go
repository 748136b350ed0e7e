// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds server configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the ops gRPC server (health checks). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN for the tenant store; empty runs the in-memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPublicKey is the PEM-encoded public key or path to file used to verify bearer tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the PEM-encoded private key or path to file. Only needed to issue dev tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer is the expected iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the lifetime of issued dev tokens (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BootstrapTimeout bounds a single bootstrap request (e.g. "20s").
	BootstrapTimeout string `mapstructure:"BOOTSTRAP_TIMEOUT"`
	// QueryTimeout bounds membership and workspace reads (e.g. "10s").
	QueryTimeout string `mapstructure:"QUERY_TIMEOUT"`
	// BootstrapAllowedDomains is a comma-separated email domain allowlist for provisioning. Empty allows all.
	BootstrapAllowedDomains string `mapstructure:"BOOTSTRAP_ALLOWED_DOMAINS"`
	// BootstrapPolicyFile optionally replaces the built-in Rego bootstrap policy.
	BootstrapPolicyFile string `mapstructure:"BOOTSTRAP_POLICY_FILE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of brokers for provisioning events. Empty disables events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// ProvisioningTopic is the Kafka topic for provisioning events.
	ProvisioningTopic string `mapstructure:"PROVISIONING_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the events worker (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "nova-auth")
	v.SetDefault("JWT_AUDIENCE", "nova-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("BOOTSTRAP_TIMEOUT", "20s")
	v.SetDefault("QUERY_TIMEOUT", "10s")
	v.SetDefault("BOOTSTRAP_ALLOWED_DOMAINS", "")
	v.SetDefault("BOOTSTRAP_POLICY_FILE", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("PROVISIONING_KAFKA_TOPIC", "nova-provisioning")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "nova-provisioning-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if _, err := time.ParseDuration(cfg.BootstrapTimeout); err != nil {
		return nil, errors.New("config: BOOTSTRAP_TIMEOUT must be a duration")
	}
	if _, err := time.ParseDuration(cfg.QueryTimeout); err != nil {
		return nil, errors.New("config: QUERY_TIMEOUT must be a duration")
	}
	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parsePositive(c.JWTAccessTTL, time.Hour)
}

// BootstrapTimeoutDuration returns the bootstrap deadline. Returns 20s if unset or invalid.
func (c *Config) BootstrapTimeoutDuration() time.Duration {
	return parsePositive(c.BootstrapTimeout, 20*time.Second)
}

// QueryTimeoutDuration returns the read deadline. Returns 10s if unset or invalid.
func (c *Config) QueryTimeoutDuration() time.Duration {
	return parsePositive(c.QueryTimeout, 10*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if provisioning events are enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AllowedDomainsList returns the lowercased email domain allowlist.
func (c *Config) AllowedDomainsList() []string {
	if c == nil {
		return nil
	}
	out := splitList(c.BootstrapAllowedDomains)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	v.AutomaticEnv()
	return v
}

func parsePositive(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
